package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/layer-3/chainauth/core"
)

// evmProtocol speaks a WalletConnect style pairing: connect opens
// {scheme}wc?uri=wc:{topic}@2?... and later requests go to
// {scheme}request?topic=...&method=...&params=[...].
type evmProtocol struct {
	network string

	mu     sync.Mutex
	topic  string
	symKey []byte
}

func newEVMProtocol(network string) *evmProtocol {
	if network == "" {
		network = "1"
	}
	return &evmProtocol{network: network}
}

func (p *evmProtocol) BlockchainType() core.BlockchainType { return core.BlockchainEVM }

func (p *evmProtocol) Capabilities() []Capability {
	return []Capability{CapConnect, CapDisconnect, CapSignMessage, CapSignTypedData, CapSendTransaction, CapSwitchChain}
}

func (p *evmProtocol) BuildURI(info WalletInfo, req *Request) (string, error) {
	if req.Op == CapConnect {
		return p.pairingURI(info, req)
	}

	p.mu.Lock()
	topic := p.topic
	p.mu.Unlock()
	if topic == "" {
		return "", errNotConnected
	}

	method, params, err := p.rpcRequest(req)
	if err != nil {
		return "", err
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", opFailure(req.Op, "encode request", err)
	}

	q := url.Values{}
	q.Set("topic", topic)
	q.Set("method", method)
	q.Set("params", string(encoded))
	q.Set("requestId", req.ID)
	q.Set("redirect", req.Redirect)
	return info.DeepLink + "request?" + q.Encode(), nil
}

func (p *evmProtocol) pairingURI(info WalletInfo, req *Request) (string, error) {
	topic := make([]byte, 32)
	symKey := make([]byte, 32)
	if _, err := rand.Read(topic); err != nil {
		return "", opFailure(CapConnect, "generate pairing topic", err)
	}
	if _, err := rand.Read(symKey); err != nil {
		return "", opFailure(CapConnect, "generate pairing key", err)
	}

	p.mu.Lock()
	p.topic = hex.EncodeToString(topic)
	p.symKey = symKey
	p.mu.Unlock()

	pairing := fmt.Sprintf("wc:%s@2?relay-protocol=irn&symKey=%s", hex.EncodeToString(topic), hex.EncodeToString(symKey))

	q := url.Values{}
	q.Set("uri", pairing)
	q.Set("requestId", req.ID)
	q.Set("redirect", req.Redirect)
	q.Set("chainId", p.network)
	if req.App.Name != "" {
		q.Set("appName", req.App.Name)
	}
	if req.App.URL != "" {
		q.Set("appUrl", req.App.URL)
	}
	return info.DeepLink + "wc?" + q.Encode(), nil
}

type evmTx struct {
	From  string          `json:"from"`
	To    string          `json:"to,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
}

func (p *evmProtocol) rpcRequest(req *Request) (string, []any, error) {
	from := req.Session.Address
	switch req.Op {
	case CapSignMessage:
		return "personal_sign", []any{hexutil.Encode(req.Message), from}, nil
	case CapSignTypedData:
		return "eth_signTypedData_v4", []any{from, string(req.TypedData)}, nil
	case CapSendTransaction:
		tx := evmTx{From: from, To: req.Tx.To, Data: req.Tx.Data}
		if req.Tx.To != "" && !common.IsHexAddress(req.Tx.To) {
			return "", nil, opFailure(req.Op, "invalid recipient "+req.Tx.To, nil)
		}
		if req.Tx.Value != nil {
			tx.Value = (*hexutil.Big)(req.Tx.Value)
		}
		if req.Tx.Gas != 0 {
			gas := hexutil.Uint64(req.Tx.Gas)
			tx.Gas = &gas
		}
		return "eth_sendTransaction", []any{tx}, nil
	case CapSwitchChain:
		id, ok := new(big.Int).SetString(req.ChainID, 10)
		if !ok || id.Sign() <= 0 {
			return "", nil, opFailure(req.Op, "invalid chain id "+req.ChainID, nil)
		}
		return "wallet_switchEthereumChain", []any{map[string]string{"chainId": hexutil.EncodeBig(id)}}, nil
	default:
		return "", nil, core.NewError(core.KindConnection, core.CodeUnsupportedCapability, string(req.Op), nil)
	}
}

func (p *evmProtocol) ParseResponse(req *Request, params url.Values) (*Response, error) {
	switch req.Op {
	case CapConnect:
		addr := params.Get("address")
		if !common.IsHexAddress(addr) {
			return nil, opFailure(req.Op, "wallet returned invalid address "+addr, nil)
		}
		chainID, err := normalizeChainID(params.Get("chainId"), p.network)
		if err != nil {
			return nil, opFailure(req.Op, err.Error(), nil)
		}
		p.mu.Lock()
		session := p.topic
		p.mu.Unlock()
		return &Response{Connection: &core.WalletConnectionResult{
			Address:        common.HexToAddress(addr).Hex(),
			ChainID:        chainID,
			BlockchainType: core.BlockchainEVM,
			SessionID:      session,
		}}, nil

	case CapSignMessage, CapSignTypedData:
		sig := params.Get("signature")
		raw, err := hexutil.Decode(sig)
		if err != nil || len(raw) != 65 {
			return nil, opFailure(req.Op, "wallet returned malformed signature", err)
		}
		return &Response{Signature: sig, SignatureFormat: core.SignatureFormatHex}, nil

	case CapSendTransaction:
		hash := params.Get("txHash")
		if _, err := parseTxHash(hash); err != nil {
			return nil, err
		}
		return &Response{TxHash: hash}, nil

	case CapSwitchChain:
		chainID, err := normalizeChainID(params.Get("chainId"), req.ChainID)
		if err != nil {
			return nil, opFailure(req.Op, err.Error(), nil)
		}
		if chainID != req.ChainID {
			return nil, opFailure(req.Op, fmt.Sprintf("wallet switched to %s, wanted %s", chainID, req.ChainID), nil)
		}
		return &Response{ChainID: chainID}, nil
	}
	return nil, core.NewError(core.KindConnection, core.CodeUnsupportedCapability, string(req.Op), nil)
}

func (p *evmProtocol) DisconnectURI(info WalletInfo, req *Request) string {
	p.mu.Lock()
	topic := p.topic
	p.mu.Unlock()
	if topic == "" {
		return ""
	}
	q := url.Values{}
	q.Set("topic", topic)
	q.Set("method", "wc_sessionDelete")
	q.Set("requestId", req.ID)
	return info.DeepLink + "request?" + q.Encode()
}

func (p *evmProtocol) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.symKey {
		p.symKey[i] = 0
	}
	p.symKey = nil
	p.topic = ""
}

// normalizeChainID accepts decimal or 0x hex and returns decimal. An empty
// value yields fallback.
func normalizeChainID(s, fallback string) (string, error) {
	if s == "" {
		return fallback, nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		id, ok := new(big.Int).SetString(s[2:], 16)
		if !ok || id.Sign() < 0 {
			return "", fmt.Errorf("invalid chain id %q", s)
		}
		return id.String(), nil
	}
	if _, err := strconv.ParseUint(s, 10, 64); err != nil {
		return "", fmt.Errorf("invalid chain id %q", s)
	}
	return s, nil
}

func parseTxHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, opFailure(CapSendTransaction, "invalid transaction hash "+s, err)
	}
	return common.BytesToHash(b), nil
}
