package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/layer-3/chainauth/core"
)

const weiDecimals = 18

var ErrReceiptPending = errors.New("transaction receipt not available yet")

// Receipt is the subset of eth_getTransactionReceipt callers act on.
type Receipt struct {
	TransactionHash common.Hash     `json:"transactionHash"`
	BlockHash       common.Hash     `json:"blockHash"`
	BlockNumber     *hexutil.Big    `json:"blockNumber"`
	From            common.Address  `json:"from"`
	To              *common.Address `json:"to"`
	ContractAddress *common.Address `json:"contractAddress"`
	GasUsed         hexutil.Uint64  `json:"gasUsed"`
	Status          hexutil.Uint64  `json:"status"`
}

func (r *Receipt) Succeeded() bool { return r.Status == 1 }

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := c.CallResult(ctx, "eth_chainId", nil, &id); err != nil {
		return nil, err
	}
	return id.ToInt(), nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := c.CallResult(ctx, "eth_blockNumber", nil, &n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var p hexutil.Big
	if err := c.CallResult(ctx, "eth_gasPrice", nil, &p); err != nil {
		return nil, err
	}
	return p.ToInt(), nil
}

// GetBalance returns the latest balance of address in ether.
func (c *Client) GetBalance(ctx context.Context, address common.Address) (decimal.Decimal, error) {
	var wei hexutil.Big
	if err := c.CallResult(ctx, "eth_getBalance", []any{address, "latest"}, &wei); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(wei.ToInt(), -weiDecimals), nil
}

func (c *Client) GetCode(ctx context.Context, address common.Address) ([]byte, error) {
	var code hexutil.Bytes
	if err := c.CallResult(ctx, "eth_getCode", []any{address, "latest"}, &code); err != nil {
		return nil, err
	}
	return code, nil
}

func (c *Client) SendRawTransaction(ctx context.Context, rawTx []byte) (common.Hash, error) {
	var hash common.Hash
	err := c.CallResult(ctx, "eth_sendRawTransaction", []any{hexutil.Bytes(rawTx)}, &hash)
	return hash, err
}

// GetTransactionReceipt returns ErrReceiptPending while the transaction is
// not yet mined.
func (c *Client) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	raw, err := c.Call(ctx, "eth_getTransactionReceipt", []any{hash}, false)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, ErrReceiptPending
	}
	var r Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// WaitForReceipt polls for the receipt of hash until it is mined or ctx is
// done. Pending receipts and retryable endpoint errors are polled again,
// any other error is returned at once.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash, interval time.Duration) (*Receipt, error) {
	if interval <= 0 {
		interval = time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxInterval = 8 * interval
	b.MaxElapsedTime = 0

	var receipt *Receipt
	err := backoff.RetryNotify(func() error {
		r, err := c.GetTransactionReceipt(ctx, hash)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if !errors.Is(err, ErrReceiptPending) && !core.IsRetryable(lastEndpointError(err)) {
				return backoff.Permanent(err)
			}
			return err
		}
		receipt = r
		return nil
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		if !errors.Is(err, ErrReceiptPending) {
			c.lg.Debug("receipt poll failed", "tx", hash.Hex(), "retry_in", next, "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}
