package core

import (
	"fmt"
	"strings"
)

// BlockchainType is the chain family a key lives on. It selects the curve,
// the message prefix and the address format.
type BlockchainType string

const (
	BlockchainEVM     BlockchainType = "evm"
	BlockchainBitcoin BlockchainType = "bitcoin"
	BlockchainSolana  BlockchainType = "solana"
	BlockchainHedera  BlockchainType = "hedera"
	BlockchainSui     BlockchainType = "sui"
)

// BlockchainTypes lists every supported family.
var BlockchainTypes = []BlockchainType{
	BlockchainEVM,
	BlockchainBitcoin,
	BlockchainSolana,
	BlockchainHedera,
	BlockchainSui,
}

// ParseBlockchainType accepts the lower-case family name. "ethereum" is
// accepted as an alias for evm.
func ParseBlockchainType(s string) (BlockchainType, error) {
	switch t := BlockchainType(strings.ToLower(strings.TrimSpace(s))); t {
	case BlockchainEVM, BlockchainBitcoin, BlockchainSolana, BlockchainHedera, BlockchainSui:
		return t, nil
	case "ethereum":
		return BlockchainEVM, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrChainNotSupported, s)
	}
}

func (t BlockchainType) Valid() bool {
	_, ok := profiles[t]
	return ok
}

func (t BlockchainType) String() string { return string(t) }

// Curve identifies the signature scheme of a chain family.
type Curve string

const (
	CurveSecp256k1 Curve = "secp256k1"
	CurveEd25519   Curve = "ed25519"
)

// ChainProfile is the static description of a chain family.
type ChainProfile struct {
	Type        BlockchainType
	DisplayName string
	Curve       Curve
	// MessagePrefix is prepended (with a length) before hashing a signed
	// message. Empty means the raw message bytes are signed.
	MessagePrefix string
	// AddressFormat is a short human description used in logs and errors.
	AddressFormat string
	// SignatureEncoding is the wire encoding wallets return signatures in.
	SignatureEncoding SignatureFormat
	// AddressLabel is the line label used in the sign-in text ("Address", "Account").
	AddressLabel string
	// Recoverable is true when the public key can be recovered from a signature.
	Recoverable bool
}

var profiles = map[BlockchainType]ChainProfile{
	BlockchainEVM: {
		Type:              BlockchainEVM,
		DisplayName:       "Ethereum",
		Curve:             CurveSecp256k1,
		MessagePrefix:     "\x19Ethereum Signed Message:\n",
		AddressFormat:     "0x-prefixed EIP-55 hex, 20 bytes",
		SignatureEncoding: SignatureFormatHex,
		AddressLabel:      "Address",
		Recoverable:       true,
	},
	BlockchainBitcoin: {
		Type:              BlockchainBitcoin,
		DisplayName:       "Bitcoin",
		Curve:             CurveSecp256k1,
		MessagePrefix:     "\x18Bitcoin Signed Message:\n",
		AddressFormat:     "P2PKH, P2SH-P2WPKH, P2WPKH or P2TR",
		SignatureEncoding: SignatureFormatBase64,
		AddressLabel:      "Address",
		Recoverable:       true,
	},
	BlockchainSolana: {
		Type:              BlockchainSolana,
		DisplayName:       "Solana",
		Curve:             CurveEd25519,
		AddressFormat:     "base58 Ed25519 public key",
		SignatureEncoding: SignatureFormatBase58,
		AddressLabel:      "Address",
	},
	BlockchainHedera: {
		Type:              BlockchainHedera,
		DisplayName:       "Hedera",
		Curve:             CurveEd25519,
		MessagePrefix:     "\x19Hedera Signed Message:\n",
		AddressFormat:     "shard.realm.num account id",
		SignatureEncoding: SignatureFormatHex,
		AddressLabel:      "Account",
	},
	BlockchainSui: {
		Type:              BlockchainSui,
		DisplayName:       "Sui",
		Curve:             CurveEd25519,
		AddressFormat:     "0x-prefixed blake2b-256 of flag||pubkey",
		SignatureEncoding: SignatureFormatBase64,
		AddressLabel:      "Address",
	},
}

// Profile returns the profile for t. Unknown types yield ok == false.
func Profile(t BlockchainType) (ChainProfile, bool) {
	p, ok := profiles[t]
	return p, ok
}
