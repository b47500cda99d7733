package tokenizer

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/layer-3/chainauth/authmsg"
	"github.com/layer-3/chainauth/core"
)

// ChallengeClaims carries the whole sign-in message so the text the wallet
// signed can be rebuilt exactly at login.
type ChallengeClaims struct {
	jwt.RegisteredClaims
	Message authmsg.AuthMessage `json:"msg"`
}

// AccessClaims combines standard claims with access-specific ones
type AccessClaims struct {
	jwt.RegisteredClaims
	RefreshID      string              `json:"rid"` // ID of the refresh token
	BlockchainType core.BlockchainType `json:"chain,omitempty"`
	ChainID        string              `json:"chain_id,omitempty"`
}

// RefreshClaims mirror the chain of the session they refresh
type RefreshClaims struct {
	jwt.RegisteredClaims
	BlockchainType core.BlockchainType `json:"chain,omitempty"`
	ChainID        string              `json:"chain_id,omitempty"`
}
