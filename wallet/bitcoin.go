package wallet

import (
	"encoding/base64"
	"encoding/hex"
	"net/url"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"

	"github.com/layer-3/chainauth/core"
)

// bitcoinProtocol drives Xverse and UniSat style wallets. Payments use a
// BIP-21 URI, so any Bitcoin wallet registered for bitcoin: can complete
// them.
type bitcoinProtocol struct {
	network string
	params  *chaincfg.Params
}

func newBitcoinProtocol(network string) *bitcoinProtocol {
	p := &bitcoinProtocol{network: network, params: &chaincfg.MainNetParams}
	switch network {
	case "testnet":
		p.params = &chaincfg.TestNet3Params
	case "signet":
		p.params = &chaincfg.SigNetParams
	case "regtest":
		p.params = &chaincfg.RegressionNetParams
	default:
		p.network = "mainnet"
	}
	return p
}

func (p *bitcoinProtocol) BlockchainType() core.BlockchainType { return core.BlockchainBitcoin }

func (p *bitcoinProtocol) Capabilities() []Capability {
	return []Capability{CapConnect, CapDisconnect, CapSignMessage, CapSendTransaction}
}

func (p *bitcoinProtocol) BuildURI(info WalletInfo, req *Request) (string, error) {
	q := url.Values{}
	q.Set("requestId", req.ID)
	q.Set("redirect", req.Redirect)

	switch req.Op {
	case CapConnect:
		q.Set("appName", req.App.Name)
		q.Set("appUrl", req.App.URL)
		if req.App.Icon != "" {
			q.Set("appIcon", req.App.Icon)
		}
		q.Set("network", p.network)
		return info.DeepLink + "connect?" + q.Encode(), nil

	case CapSignMessage:
		q.Set("address", req.Session.Address)
		q.Set("message", string(req.Message))
		return info.DeepLink + "signMessage?" + q.Encode(), nil

	case CapSendTransaction:
		return p.paymentURI(req)
	}
	return "", core.NewError(core.KindConnection, core.CodeUnsupportedCapability, string(req.Op), nil)
}

// paymentURI builds bitcoin:<address>?amount=<btc>&label=&message=. The
// request id and redirect ride along as extension parameters, which
// wallets that do not know them ignore.
func (p *bitcoinProtocol) paymentURI(req *Request) (string, error) {
	addr, err := btcutil.DecodeAddress(req.Tx.To, p.params)
	if err != nil || !addr.IsForNet(p.params) {
		return "", opFailure(req.Op, "invalid recipient "+req.Tx.To, err)
	}
	if req.Tx.Value == nil || req.Tx.Value.Sign() <= 0 {
		return "", opFailure(req.Op, "amount must be positive", nil)
	}
	if !req.Tx.Value.IsInt64() || req.Tx.Value.Int64() > btcutil.MaxSatoshi {
		return "", opFailure(req.Op, "amount exceeds the bitcoin supply", nil)
	}

	q := url.Values{}
	q.Set("amount", SatoshiToBTC(req.Tx.Value.Int64()))
	if req.Tx.Label != "" {
		q.Set("label", req.Tx.Label)
	}
	if req.Tx.Memo != "" {
		q.Set("message", req.Tx.Memo)
	}
	q.Set("requestId", req.ID)
	q.Set("redirect", req.Redirect)
	return "bitcoin:" + addr.EncodeAddress() + "?" + q.Encode(), nil
}

// SatoshiToBTC formats an amount in satoshi as BTC without trailing zeros.
func SatoshiToBTC(sat int64) string {
	return decimal.New(sat, -8).String()
}

func (p *bitcoinProtocol) ParseResponse(req *Request, params url.Values) (*Response, error) {
	switch req.Op {
	case CapConnect:
		addr := params.Get("address")
		decoded, err := btcutil.DecodeAddress(addr, p.params)
		if err != nil || !decoded.IsForNet(p.params) {
			return nil, opFailure(req.Op, "wallet returned invalid address "+addr, err)
		}
		return &Response{Connection: &core.WalletConnectionResult{
			Address:        decoded.EncodeAddress(),
			ChainID:        p.network,
			BlockchainType: core.BlockchainBitcoin,
			PublicKey:      params.Get("publicKey"),
		}}, nil

	case CapSignMessage:
		sig := params.Get("signature")
		raw, err := base64.StdEncoding.DecodeString(sig)
		if err != nil || len(raw) != 65 {
			return nil, opFailure(req.Op, "wallet returned malformed signature", err)
		}
		return &Response{Signature: sig, SignatureFormat: core.SignatureFormatBase64}, nil

	case CapSendTransaction:
		txid := params.Get("txid")
		if b, err := hex.DecodeString(txid); err != nil || len(b) != 32 {
			return nil, opFailure(req.Op, "wallet returned invalid txid "+txid, err)
		}
		return &Response{TxHash: txid}, nil
	}
	return nil, core.NewError(core.KindConnection, core.CodeUnsupportedCapability, string(req.Op), nil)
}

// DisconnectURI is empty: these wallets keep no dapp session.
func (p *bitcoinProtocol) DisconnectURI(WalletInfo, *Request) string { return "" }

func (p *bitcoinProtocol) Reset() {}
