package core

import (
	"fmt"
	"time"
)

// SignatureFormat is the text encoding of WalletSignature.Signature.
type SignatureFormat string

const (
	SignatureFormatHex    SignatureFormat = "hex"
	SignatureFormatBase64 SignatureFormat = "base64"
	SignatureFormatBase58 SignatureFormat = "base58"
)

// WalletSignature is what a wallet returns for a signing request. It is a
// value type and is never mutated after construction.
type WalletSignature struct {
	Signature      string            `json:"signature"`
	SignerAddress  string            `json:"signer_address"`
	Message        string            `json:"message"`
	Timestamp      time.Time         `json:"timestamp"`
	Format         SignatureFormat   `json:"format"`
	BlockchainType BlockchainType    `json:"blockchain_type"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// WalletConnectionResult is the proof of a completed connect handshake.
type WalletConnectionResult struct {
	Address        string            `json:"address"`
	ChainID        string            `json:"chain_id"`
	BlockchainType BlockchainType    `json:"blockchain_type"`
	SessionID      string            `json:"session_id,omitempty"`
	PublicKey      string            `json:"public_key,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// ConnectionState is the wallet adapter connection state.
type ConnectionState string

const (
	StateDisconnected     ConnectionState = "disconnected"
	StateConnecting       ConnectionState = "connecting"
	StateAwaitingApproval ConnectionState = "awaitingApproval"
	StateConnected        ConnectionState = "connected"
	StateError            ConnectionState = "error"
)

var transitions = map[ConnectionState][]ConnectionState{
	StateDisconnected:     {StateConnecting},
	StateConnecting:       {StateAwaitingApproval, StateError},
	StateAwaitingApproval: {StateConnected, StateError},
	StateConnected:        {StateDisconnected},
	StateError:            {StateDisconnected},
}

// CanTransitionTo reports whether s -> next is an allowed edge.
func (s ConnectionState) CanTransitionTo(next ConnectionState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition validates s -> next.
func (s ConnectionState) Transition(next ConnectionState) (ConnectionState, error) {
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}
