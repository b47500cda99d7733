package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/url"
	"sync"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/nacl/box"

	"github.com/layer-3/chainauth/core"
)

const nonceSize = 24

var errNoSession = errors.New("no encrypted session with the wallet")

// solanaProtocol is the Phantom deep link protocol, also spoken by
// Solflare. Connect exchanges X25519 keys; every later payload and
// response is a NaCl box under the shared key.
type solanaProtocol struct {
	cluster string

	mu       sync.Mutex
	dappPub  *[32]byte
	dappPriv *[32]byte
	shared   *[32]byte
	session  string
}

func newSolanaProtocol(cluster string) *solanaProtocol {
	if cluster == "" {
		cluster = "mainnet-beta"
	}
	return &solanaProtocol{cluster: cluster}
}

func (p *solanaProtocol) BlockchainType() core.BlockchainType { return core.BlockchainSolana }

func (p *solanaProtocol) Capabilities() []Capability {
	return []Capability{CapConnect, CapDisconnect, CapSignMessage, CapSendTransaction}
}

func (p *solanaProtocol) BuildURI(info WalletInfo, req *Request) (string, error) {
	switch req.Op {
	case CapConnect:
		return p.connectURI(info, req)
	case CapSignMessage:
		return p.encryptedURI(info, "signMessage", req, map[string]string{
			"message": base58.Encode(req.Message),
			"display": "utf8",
		})
	case CapSendTransaction:
		if len(req.Tx.Data) == 0 {
			return "", opFailure(req.Op, "solana transactions must be serialized into Data", nil)
		}
		return p.encryptedURI(info, "signAndSendTransaction", req, map[string]string{
			"transaction": base58.Encode(req.Tx.Data),
		})
	}
	return "", core.NewError(core.KindConnection, core.CodeUnsupportedCapability, string(req.Op), nil)
}

func (p *solanaProtocol) connectURI(info WalletInfo, req *Request) (string, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return "", opFailure(CapConnect, "generate session key", err)
	}

	p.mu.Lock()
	p.zeroLocked()
	p.dappPub, p.dappPriv = pub, priv
	p.mu.Unlock()

	q := url.Values{}
	q.Set("app_url", req.App.URL)
	q.Set("dapp_encryption_public_key", base58.Encode(pub[:]))
	q.Set("redirect_link", req.Redirect)
	q.Set("cluster", p.cluster)
	return info.DeepLink + "v1/connect?" + q.Encode(), nil
}

func (p *solanaProtocol) encryptedURI(info WalletInfo, method string, req *Request, payload map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shared == nil {
		return "", opFailure(req.Op, "wallet session missing", errNoSession)
	}
	payload["session"] = p.session

	plain, err := json.Marshal(payload)
	if err != nil {
		return "", opFailure(req.Op, "encode payload", err)
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", opFailure(req.Op, "generate nonce", err)
	}
	sealed := box.SealAfterPrecomputation(nil, plain, &nonce, p.shared)

	q := url.Values{}
	q.Set("dapp_encryption_public_key", base58.Encode(p.dappPub[:]))
	q.Set("nonce", base58.Encode(nonce[:]))
	q.Set("redirect_link", req.Redirect)
	q.Set("payload", base58.Encode(sealed))
	return info.DeepLink + "v1/" + method + "?" + q.Encode(), nil
}

type phantomConnectData struct {
	PublicKey string `json:"public_key"`
	Session   string `json:"session"`
}

type phantomSignatureData struct {
	Signature string `json:"signature"`
}

func (p *solanaProtocol) ParseResponse(req *Request, params url.Values) (*Response, error) {
	switch req.Op {
	case CapConnect:
		walletPub, err := decodeKey(params.Get("phantom_encryption_public_key"))
		if err != nil {
			return nil, opFailure(req.Op, "invalid wallet encryption key", err)
		}

		p.mu.Lock()
		if p.dappPriv == nil {
			p.mu.Unlock()
			return nil, opFailure(req.Op, "connect was not started", errNoSession)
		}
		shared := new([32]byte)
		box.Precompute(shared, walletPub, p.dappPriv)
		p.mu.Unlock()

		var data phantomConnectData
		if err := openPayload(shared, params, &data); err != nil {
			return nil, opFailure(req.Op, "could not decrypt connect response", err)
		}
		pk, err := base58.Decode(data.PublicKey)
		if err != nil || len(pk) != ed25519.PublicKeySize {
			return nil, opFailure(req.Op, "wallet returned invalid public key", err)
		}

		p.mu.Lock()
		p.shared = shared
		p.session = data.Session
		p.mu.Unlock()

		return &Response{Connection: &core.WalletConnectionResult{
			Address:        data.PublicKey,
			ChainID:        p.cluster,
			BlockchainType: core.BlockchainSolana,
			SessionID:      data.Session,
			PublicKey:      data.PublicKey,
		}}, nil

	case CapSignMessage, CapSendTransaction:
		p.mu.Lock()
		shared := p.shared
		p.mu.Unlock()
		if shared == nil {
			return nil, opFailure(req.Op, "wallet session missing", errNoSession)
		}

		var data phantomSignatureData
		if err := openPayload(shared, params, &data); err != nil {
			return nil, opFailure(req.Op, "could not decrypt wallet response", err)
		}
		sig, err := base58.Decode(data.Signature)
		if err != nil || len(sig) != ed25519.SignatureSize {
			return nil, opFailure(req.Op, "wallet returned malformed signature", err)
		}
		if req.Op == CapSendTransaction {
			return &Response{TxHash: data.Signature}, nil
		}
		return &Response{Signature: data.Signature, SignatureFormat: core.SignatureFormatBase58}, nil
	}
	return nil, core.NewError(core.KindConnection, core.CodeUnsupportedCapability, string(req.Op), nil)
}

func (p *solanaProtocol) DisconnectURI(info WalletInfo, req *Request) string {
	uri, err := p.encryptedURI(info, "disconnect", req, map[string]string{})
	if err != nil {
		return ""
	}
	return uri
}

// Reset zeroes the session keys.
func (p *solanaProtocol) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.zeroLocked()
}

func (p *solanaProtocol) zeroLocked() {
	for _, k := range []*[32]byte{p.dappPriv, p.shared} {
		if k != nil {
			*k = [32]byte{}
		}
	}
	p.dappPub, p.dappPriv, p.shared = nil, nil, nil
	p.session = ""
}

func decodeKey(s string) (*[32]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, errors.New("key must be 32 bytes")
	}
	var k [32]byte
	copy(k[:], b)
	return &k, nil
}

func openPayload(shared *[32]byte, params url.Values, out any) error {
	nonceBytes, err := base58.Decode(params.Get("nonce"))
	if err != nil || len(nonceBytes) != nonceSize {
		return errors.New("invalid nonce")
	}
	data, err := base58.Decode(params.Get("data"))
	if err != nil {
		return err
	}
	var nonce [nonceSize]byte
	copy(nonce[:], nonceBytes)

	plain, ok := box.OpenAfterPrecomputation(nil, data, &nonce, shared)
	if !ok {
		return errors.New("box authentication failed")
	}
	return json.Unmarshal(plain, out)
}
