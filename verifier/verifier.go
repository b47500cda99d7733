// Package verifier checks wallet signatures over sign-in messages for every
// supported chain family. Verification is total: malformed input yields
// false, never a panic.
package verifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/layer-3/chainauth/authmsg"
	"github.com/layer-3/chainauth/core"
	"github.com/layer-3/chainauth/internal/log"
)

type Verifier struct {
	lg     log.Logger
	hedera HederaKeyResolver
	now    func() time.Time
}

type Option func(*Verifier)

func WithLogger(lg log.Logger) Option {
	return func(v *Verifier) { v.lg = lg }
}

// WithHederaResolver enables Hedera verification. Without a resolver
// Hedera signatures never verify locally.
func WithHederaResolver(r HederaKeyResolver) Option {
	return func(v *Verifier) { v.hedera = r }
}

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

func New(opts ...Option) *Verifier {
	v := &Verifier{
		lg:  log.NewNoopLogger(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.lg = v.lg.WithName("verifier")
	return v
}

// Verify checks sig against msg. The message must be inside its validity
// window, the signer must be the address msg was issued for, and the
// signature must cover msg's rendered text.
func (v *Verifier) Verify(ctx context.Context, sig core.WalletSignature, msg *authmsg.AuthMessage, expectedAddress string) bool {
	if msg == nil {
		return false
	}
	lg := v.lg.WithKV("chain", msg.BlockchainType).WithKV("address", expectedAddress)

	if !msg.IsValidAt(v.now()) {
		lg.Debug("message outside validity window", "issued_at", msg.IssuedAt)
		return false
	}
	if !sameAddress(msg.BlockchainType, msg.Address, expectedAddress) {
		lg.Debug("address does not match message", "message_address", msg.Address)
		return false
	}
	if sig.BlockchainType != "" && sig.BlockchainType != msg.BlockchainType {
		lg.Debug("signature chain mismatch", "signature_chain", sig.BlockchainType)
		return false
	}

	text := msg.ToSignableMessage()
	if sig.Message != "" && sig.Message != text {
		lg.Debug("signed text differs from message")
		return false
	}

	raw, err := DecodeSignature(msg.BlockchainType, sig.Format, sig.Signature)
	if err != nil {
		lg.Debug("undecodable signature", "error", err)
		return false
	}
	return v.VerifyRaw(ctx, raw, text, expectedAddress, msg.BlockchainType)
}

// VerifyRaw checks signature over message for chain without any message
// window checks.
func (v *Verifier) VerifyRaw(ctx context.Context, signature []byte, message string, expectedAddress string, chain core.BlockchainType) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v.lg.Error("verification panicked", "chain", chain, "panic", r)
			ok = false
		}
	}()

	err := v.verify(ctx, signature, []byte(message), expectedAddress, chain)
	if err != nil {
		v.lg.Debug("signature rejected", "chain", chain, "address", expectedAddress, "error", err)
		return false
	}
	return true
}

func (v *Verifier) verify(ctx context.Context, sig, message []byte, expected string, chain core.BlockchainType) error {
	switch chain {
	case core.BlockchainEVM:
		return verifyEVM(sig, message, expected)
	case core.BlockchainBitcoin:
		return verifyBitcoin(sig, message, expected)
	case core.BlockchainSolana:
		return verifySolana(sig, message, expected)
	case core.BlockchainSui:
		return verifySui(sig, message, expected)
	case core.BlockchainHedera:
		return verifyHedera(ctx, v.hedera, sig, message, expected)
	default:
		return fmt.Errorf("%w: %q", core.ErrChainNotSupported, chain)
	}
}

func sameAddress(chain core.BlockchainType, a, b string) bool {
	switch chain {
	case core.BlockchainEVM:
		return EVMAddressesEqual(a, b)
	case core.BlockchainSui:
		return normalizeSuiAddress(a) == normalizeSuiAddress(b)
	default:
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
}
