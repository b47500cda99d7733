package wallet

import (
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/layer-3/chainauth/core"
)

type suiProtocol struct {
	network string
}

func newSuiProtocol(network string) *suiProtocol {
	if network == "" {
		network = "mainnet"
	}
	return &suiProtocol{network: network}
}

func (p *suiProtocol) BlockchainType() core.BlockchainType { return core.BlockchainSui }

func (p *suiProtocol) Capabilities() []Capability {
	return []Capability{CapConnect, CapDisconnect, CapSignMessage, CapSendTransaction}
}

func (p *suiProtocol) BuildURI(info WalletInfo, req *Request) (string, error) {
	q := url.Values{}
	q.Set("requestId", req.ID)
	q.Set("redirect", req.Redirect)

	switch req.Op {
	case CapConnect:
		q.Set("appName", req.App.Name)
		q.Set("appUrl", req.App.URL)
		q.Set("network", p.network)
		return info.DeepLink + "dapp/connect?" + q.Encode(), nil
	case CapSignMessage:
		q.Set("address", req.Session.Address)
		q.Set("message", base64.StdEncoding.EncodeToString(req.Message))
		return info.DeepLink + "dapp/signPersonalMessage?" + q.Encode(), nil
	case CapSendTransaction:
		if len(req.Tx.Data) == 0 {
			return "", opFailure(req.Op, "sui transactions must be serialized into Data", nil)
		}
		q.Set("address", req.Session.Address)
		q.Set("transaction", base64.StdEncoding.EncodeToString(req.Tx.Data))
		return info.DeepLink + "dapp/signAndExecuteTransaction?" + q.Encode(), nil
	}
	return "", core.NewError(core.KindConnection, core.CodeUnsupportedCapability, string(req.Op), nil)
}

func (p *suiProtocol) ParseResponse(req *Request, params url.Values) (*Response, error) {
	switch req.Op {
	case CapConnect:
		addr := strings.ToLower(params.Get("address"))
		if !strings.HasPrefix(addr, "0x") || len(addr) != 66 {
			return nil, opFailure(req.Op, "wallet returned invalid address "+addr, nil)
		}
		return &Response{Connection: &core.WalletConnectionResult{
			Address:        addr,
			ChainID:        p.network,
			BlockchainType: core.BlockchainSui,
			PublicKey:      params.Get("publicKey"),
		}}, nil

	case CapSignMessage:
		sig := params.Get("signature")
		raw, err := base64.StdEncoding.DecodeString(sig)
		if err != nil || len(raw) != 97 {
			return nil, opFailure(req.Op, "wallet returned malformed signature", err)
		}
		return &Response{Signature: sig, SignatureFormat: core.SignatureFormatBase64}, nil

	case CapSendTransaction:
		digest := params.Get("digest")
		if digest == "" {
			return nil, missingParam(req.Op, "digest")
		}
		return &Response{TxHash: digest}, nil
	}
	return nil, core.NewError(core.KindConnection, core.CodeUnsupportedCapability, string(req.Op), nil)
}

func (p *suiProtocol) DisconnectURI(WalletInfo, *Request) string { return "" }

func (p *suiProtocol) Reset() {}
