package verifier

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const hederaMessagePrefix = "\x19Hedera Signed Message:\n"

// DER SubjectPublicKeyInfo header of an Ed25519 key.
const ed25519DERPrefix = "302a300506032b6570032100"

var (
	ErrNoHederaResolver = errors.New("hedera verification requires a key resolver")
	ErrHederaAccount    = errors.New("invalid hedera account id")
	errHederaKeyType    = errors.New("hedera account key is not ed25519")

	hederaAccountPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// HederaKeyResolver looks up the Ed25519 public key of an account id.
type HederaKeyResolver interface {
	ResolveKey(ctx context.Context, accountID string) (ed25519.PublicKey, error)
}

// HederaKeyResolverFunc adapts a function to HederaKeyResolver.
type HederaKeyResolverFunc func(ctx context.Context, accountID string) (ed25519.PublicKey, error)

func (f HederaKeyResolverFunc) ResolveKey(ctx context.Context, accountID string) (ed25519.PublicKey, error) {
	return f(ctx, accountID)
}

// MirrorNodeResolver resolves keys from a Hedera mirror node REST API,
// e.g. https://mainnet-public.mirrornode.hedera.com.
type MirrorNodeResolver struct {
	BaseURL string
	Client  *http.Client
}

func NewMirrorNodeResolver(baseURL string) *MirrorNodeResolver {
	return &MirrorNodeResolver{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type mirrorAccount struct {
	Key *struct {
		Type string `json:"_type"`
		Key  string `json:"key"`
	} `json:"key"`
}

func (r *MirrorNodeResolver) ResolveKey(ctx context.Context, accountID string) (ed25519.PublicKey, error) {
	if !hederaAccountPattern.MatchString(accountID) {
		return nil, fmt.Errorf("%w: %q", ErrHederaAccount, accountID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"/api/v1/accounts/"+accountID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mirror node returned %d for %s", resp.StatusCode, accountID)
	}

	var acc mirrorAccount
	if err := json.NewDecoder(resp.Body).Decode(&acc); err != nil {
		return nil, fmt.Errorf("decode mirror node response: %w", err)
	}
	if acc.Key == nil {
		return nil, errHederaKeyType
	}
	if acc.Key.Type != "" && acc.Key.Type != "ED25519" {
		return nil, fmt.Errorf("%w: %s", errHederaKeyType, acc.Key.Type)
	}
	return parseHederaKey(acc.Key.Key)
}

// parseHederaKey accepts a raw 32 byte hex key or its DER encoded form.
func parseHederaKey(s string) (ed25519.PublicKey, error) {
	s = strings.ToLower(strings.TrimPrefix(s, "0x"))
	s = strings.TrimPrefix(s, ed25519DERPrefix)
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errHederaKeyType
	}
	return ed25519.PublicKey(raw), nil
}

// HederaPrefixedMessage returns the "\x19Hedera Signed Message:\n" form of message.
func HederaPrefixedMessage(message []byte) []byte {
	out := []byte(hederaMessagePrefix + strconv.Itoa(len(message)))
	return append(out, message...)
}

func verifyHedera(ctx context.Context, resolver HederaKeyResolver, sig, message []byte, expected string) error {
	if resolver == nil {
		return ErrNoHederaResolver
	}
	if !hederaAccountPattern.MatchString(expected) {
		return fmt.Errorf("%w: %q", ErrHederaAccount, expected)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("hedera signature must be %d bytes", ed25519.SignatureSize)
	}

	pub, err := resolver.ResolveKey(ctx, expected)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", expected, err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return errHederaKeyType
	}

	if ed25519.Verify(pub, message, sig) || ed25519.Verify(pub, HederaPrefixedMessage(message), sig) {
		return nil
	}
	return errEd25519
}
