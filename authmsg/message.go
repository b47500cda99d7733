// Package authmsg builds and validates the human readable sign-in challenge
// a wallet is asked to sign.
//
// EVM messages follow EIP-4361 (Sign-In with Ethereum) to the byte, because
// wallets render and hash that literal text. Other chain families use a
// simpler declarative block with the same information.
package authmsg

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/chainauth/core"
)

const (
	// Version is the EIP-4361 message version.
	Version = "1"

	// NonceBytes is the amount of entropy in a generated nonce.
	NonceBytes = 16

	// DefaultExpiry is used by callers that do not choose their own window.
	DefaultExpiry = 5 * time.Minute

	timeLayout = "2006-01-02T15:04:05.000Z07:00"
)

var (
	ErrMissingDomain  = errors.New("domain is required")
	ErrMissingAddress = errors.New("address is required")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidChainID = errors.New("invalid chain id")
	ErrInvalidNonce   = errors.New("nonce must be non-empty and alphanumeric")
	ErrInvalidWindow  = errors.New("expiration time precedes issued at")
	ErrMalformed      = errors.New("malformed sign-in message")
	ErrLineBreak      = errors.New("field must not contain a line break")
)

// AuthMessage is a sign-in challenge. It is created per login attempt and
// consumed once by verification.
type AuthMessage struct {
	Domain         string              `json:"domain"`
	Address        string              `json:"address"`
	ChainID        string              `json:"chain_id"`
	BlockchainType core.BlockchainType `json:"blockchain_type"`
	Nonce          string              `json:"nonce"`
	IssuedAt       time.Time           `json:"issued_at"`
	ExpiresAt      *time.Time          `json:"expires_at,omitempty"`
	NotBefore      *time.Time          `json:"not_before,omitempty"`
	Statement      string              `json:"statement,omitempty"`
	URI            string              `json:"uri,omitempty"`
	Version        string              `json:"version"`
	RequestID      string              `json:"request_id,omitempty"`
	Resources      []string            `json:"resources,omitempty"`
}

// Options configures Create.
type Options struct {
	Domain         string
	Address        string
	ChainID        string
	BlockchainType core.BlockchainType
	Statement      string
	URI            string
	// ExpiresIn sets ExpiresAt = IssuedAt + ExpiresIn when positive.
	ExpiresIn time.Duration
	NotBefore *time.Time
	RequestID string
	Resources []string
}

// Create builds a new AuthMessage with a fresh nonce, issued now.
func Create(opts Options) (*AuthMessage, error) {
	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}
	return newMessage(opts, nonce, time.Now())
}

func newMessage(opts Options, nonce string, now time.Time) (*AuthMessage, error) {
	issuedAt := now.UTC().Truncate(time.Millisecond)

	m := &AuthMessage{
		Domain:         opts.Domain,
		Address:        strings.TrimSpace(opts.Address),
		ChainID:        opts.ChainID,
		BlockchainType: opts.BlockchainType,
		Nonce:          nonce,
		IssuedAt:       issuedAt,
		Statement:      opts.Statement,
		URI:            opts.URI,
		Version:        Version,
		RequestID:      opts.RequestID,
	}
	if m.BlockchainType == "" {
		m.BlockchainType = core.BlockchainEVM
	}
	if m.BlockchainType == core.BlockchainEVM && common.IsHexAddress(m.Address) {
		m.Address = common.HexToAddress(m.Address).Hex()
	}
	if m.URI == "" && m.Domain != "" {
		m.URI = "https://" + m.Domain
	}
	if m.ChainID == "" {
		m.ChainID = defaultChainID(m.BlockchainType)
	}
	if opts.ExpiresIn > 0 {
		exp := issuedAt.Add(opts.ExpiresIn)
		m.ExpiresAt = &exp
	}
	if opts.NotBefore != nil {
		nb := opts.NotBefore.UTC().Truncate(time.Millisecond)
		m.NotBefore = &nb
	}
	if len(opts.Resources) > 0 {
		m.Resources = append([]string(nil), opts.Resources...)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// GenerateNonce returns NonceBytes of crypto/rand entropy, hex encoded. Hex
// keeps the nonce URL safe and alphanumeric as EIP-4361 requires.
func GenerateNonce() (string, error) {
	b := make([]byte, NonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func defaultChainID(t core.BlockchainType) string {
	switch t {
	case core.BlockchainEVM:
		return "1"
	case core.BlockchainSolana:
		return "mainnet-beta"
	default:
		return "mainnet"
	}
}

// Validate checks the structural invariants of m.
func (m *AuthMessage) Validate() error {
	if m.Domain == "" {
		return ErrMissingDomain
	}
	if m.Address == "" {
		return ErrMissingAddress
	}
	if !m.BlockchainType.Valid() {
		return fmt.Errorf("%w: %q", core.ErrChainNotSupported, m.BlockchainType)
	}
	if m.BlockchainType == core.BlockchainEVM {
		if !common.IsHexAddress(m.Address) || !strings.HasPrefix(m.Address, "0x") {
			return fmt.Errorf("%w: %s", ErrInvalidAddress, m.Address)
		}
		if id, err := strconv.ParseUint(m.ChainID, 10, 64); err != nil || id == 0 {
			return fmt.Errorf("%w: %q", ErrInvalidChainID, m.ChainID)
		}
	}
	if m.Nonce == "" || !isAlphanumeric(m.Nonce) {
		return ErrInvalidNonce
	}
	if err := m.checkSingleLine(); err != nil {
		return err
	}
	if m.ExpiresAt != nil && m.ExpiresAt.Before(m.IssuedAt) {
		return ErrInvalidWindow
	}
	return nil
}

// checkSingleLine rejects line breaks in every field that is rendered on
// one line of the signable text.
func (m *AuthMessage) checkSingleLine() error {
	fields := []struct{ name, value string }{
		{"domain", m.Domain},
		{"address", m.Address},
		{"chain id", m.ChainID},
		{"statement", m.Statement},
		{"uri", m.URI},
		{"request id", m.RequestID},
	}
	for _, f := range fields {
		if strings.ContainsAny(f.value, "\r\n") {
			return fmt.Errorf("%w: %s", ErrLineBreak, f.name)
		}
	}
	for _, r := range m.Resources {
		if strings.ContainsAny(r, "\r\n") {
			return fmt.Errorf("%w: resource %q", ErrLineBreak, r)
		}
	}
	return nil
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

// IsExpired reports whether ExpiresAt has passed. It reads the clock on every
// call.
func (m *AuthMessage) IsExpired() bool { return m.IsExpiredAt(time.Now()) }

// IsExpiredAt reports whether the message is expired at t.
func (m *AuthMessage) IsExpiredAt(t time.Time) bool {
	return m.ExpiresAt != nil && !t.UTC().Before(*m.ExpiresAt)
}

// IsValidYet reports whether NotBefore has been reached.
func (m *AuthMessage) IsValidYet() bool { return m.IsValidYetAt(time.Now()) }

func (m *AuthMessage) IsValidYetAt(t time.Time) bool {
	return m.NotBefore == nil || !t.UTC().Before(*m.NotBefore)
}

// IsValid reports whether the message is inside its validity window now.
func (m *AuthMessage) IsValid() bool { return m.IsValidAt(time.Now()) }

func (m *AuthMessage) IsValidAt(t time.Time) bool {
	return !m.IsExpiredAt(t) && m.IsValidYetAt(t)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
