package wallet

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strconv"

	"github.com/layer-3/chainauth/core"
)

// Capability is one operation an adapter may offer.
type Capability string

const (
	CapConnect         Capability = "connect"
	CapDisconnect      Capability = "disconnect"
	CapSignMessage     Capability = "signMessage"
	CapSignTypedData   Capability = "signTypedData"
	CapSendTransaction Capability = "sendTransaction"
	CapSwitchChain     Capability = "switchChain"
)

// Transaction is a chain agnostic transfer request. Value is in base units
// (wei, satoshi, lamports, MIST). Data carries EVM calldata, or the
// serialized transaction for Solana and Sui.
type Transaction struct {
	From  string   `json:"from,omitempty"`
	To    string   `json:"to,omitempty"`
	Value *big.Int `json:"value,omitempty"`
	Data  []byte   `json:"data,omitempty"`
	Gas   uint64   `json:"gas,omitempty"`
	// Label and Memo are shown by Bitcoin wallets (BIP-21 label and message).
	Label string `json:"label,omitempty"`
	Memo  string `json:"memo,omitempty"`
}

// AppMetadata identifies the dapp to the wallet.
type AppMetadata struct {
	Name string
	URL  string
	Icon string
}

// Request is one outbound wallet round trip.
type Request struct {
	ID       string
	Op       Capability
	Redirect string
	App      AppMetadata

	// Session is the current connection, nil while connecting.
	Session   *core.WalletConnectionResult
	Message   []byte
	TypedData json.RawMessage
	Tx        *Transaction
	ChainID   string
}

// Response is the decoded wallet callback. Which fields are set depends on
// the request.
type Response struct {
	Connection      *core.WalletConnectionResult
	Signature       string
	SignatureFormat core.SignatureFormat
	TxHash          string
	ChainID         string
}

// Protocol is the chain family specific half of an Adapter: it encodes
// requests as deep links and decodes the callbacks. Implementations keep
// session secrets and must drop them on Reset.
type Protocol interface {
	BlockchainType() core.BlockchainType
	Capabilities() []Capability
	BuildURI(info WalletInfo, req *Request) (string, error)
	ParseResponse(req *Request, params url.Values) (*Response, error)
	// DisconnectURI is a best effort notification sent on disconnect. An
	// empty string means the wallet is not told.
	DisconnectURI(info WalletInfo, req *Request) string
	Reset()
}

// NewProtocol returns the protocol for a wallet family.
func NewProtocol(info WalletInfo, network string) (Protocol, error) {
	switch info.BlockchainType {
	case core.BlockchainEVM:
		return newEVMProtocol(network), nil
	case core.BlockchainSolana:
		return newSolanaProtocol(network), nil
	case core.BlockchainBitcoin:
		return newBitcoinProtocol(network), nil
	case core.BlockchainSui:
		return newSuiProtocol(network), nil
	default:
		return nil, fmt.Errorf("%w: no wallet protocol for %q", core.ErrChainNotSupported, info.BlockchainType)
	}
}

// EIP-1193 provider error codes wallets report in the errorCode callback
// parameter.
const (
	providerUserRejected = 4001
	providerUnauthorized = 4100
	providerUnsupported  = 4200
	providerChainMissing = 4902
)

// walletError decodes the errorCode/errorMessage callback parameters. op
// selects the fallback code for unrecognised failures.
func walletError(op Capability, params url.Values) error {
	raw := params.Get("errorCode")
	if raw == "" {
		return nil
	}
	msg := params.Get("errorMessage")
	if msg == "" {
		msg = "wallet returned error " + raw
	}

	code, _ := strconv.Atoi(raw)
	switch code {
	case providerUserRejected:
		return core.NewError(core.KindConnection, core.CodeUserRejected, msg, nil)
	case providerUnauthorized:
		return core.NewError(core.KindSession, core.CodeSessionInvalid, msg, nil)
	case providerUnsupported:
		return core.NewError(core.KindConnection, core.CodeUnsupportedCapability, msg, nil)
	case providerChainMissing:
		return core.NewError(core.KindChain, core.CodeChainNotAdded, msg, nil)
	}
	return opFailure(op, msg, nil)
}

// opFailure is the generic failure of op.
func opFailure(op Capability, msg string, cause error) *core.Error {
	switch op {
	case CapConnect:
		return core.NewError(core.KindConnection, core.CodePairingFailed, msg, cause)
	case CapSwitchChain:
		return core.NewError(core.KindChain, core.CodeChainSwitchFailed, msg, cause)
	case CapDisconnect:
		return core.NewError(core.KindConnection, core.CodeConnectionTimeout, msg, cause)
	default:
		return core.NewError(core.KindSigning, core.CodeSigningFailed, msg, cause)
	}
}

// timeoutError is what a request without a callback fails with.
func timeoutError(op Capability) *core.Error {
	switch op {
	case CapConnect, CapSwitchChain, CapDisconnect:
		return core.NewError(core.KindConnection, core.CodeConnectionTimeout, "wallet did not respond", errWaitTimeout)
	default:
		return core.NewError(core.KindSigning, core.CodeSigningFailed, "wallet did not respond", errWaitTimeout)
	}
}

func missingParam(op Capability, name string) error {
	return opFailure(op, "callback is missing "+name, nil)
}

func hasCapability(p Protocol, c Capability) bool {
	for _, have := range p.Capabilities() {
		if have == c {
			return true
		}
	}
	return false
}
