package verifier

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const suiSchemeEd25519 = 0x00

var (
	errSolanaAddress = errors.New("solana address must decode to 32 bytes")
	errEd25519       = errors.New("ed25519 signature mismatch")
	errSuiPayload    = errors.New("sui signature must be flag||sig(64)||pubkey(32)")
	errSuiScheme     = errors.New("only ed25519 sui signatures are supported")
	errSuiAddress    = errors.New("sui public key does not match address")
)

func verifySolana(sig, message []byte, expected string) error {
	pub, err := base58.Decode(strings.TrimSpace(expected))
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return errSolanaAddress
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("solana signature must be %d bytes", ed25519.SignatureSize)
	}
	if !ed25519.Verify(pub, message, sig) {
		return errEd25519
	}
	return nil
}

// SuiAddress derives the 0x-prefixed Sui address of an Ed25519 public key.
func SuiAddress(pub ed25519.PublicKey) string {
	sum := blake2b.Sum256(append([]byte{suiSchemeEd25519}, pub...))
	return "0x" + hex.EncodeToString(sum[:])
}

// SuiPersonalMessageDigest is blake2b-256 over the PersonalMessage intent
// followed by the BCS encoded message bytes.
func SuiPersonalMessageDigest(message []byte) []byte {
	buf := make([]byte, 0, 3+binaryUvarintLen(len(message))+len(message))
	buf = append(buf, 3, 0, 0)
	buf = appendULEB128(buf, uint64(len(message)))
	buf = append(buf, message...)
	sum := blake2b.Sum256(buf)
	return sum[:]
}

func verifySui(payload, message []byte, expected string) error {
	if len(payload) != 1+ed25519.SignatureSize+ed25519.PublicKeySize {
		return errSuiPayload
	}
	if payload[0] != suiSchemeEd25519 {
		return errSuiScheme
	}
	sig := payload[1 : 1+ed25519.SignatureSize]
	pub := ed25519.PublicKey(payload[1+ed25519.SignatureSize:])

	if !strings.EqualFold(SuiAddress(pub), normalizeSuiAddress(expected)) {
		return errSuiAddress
	}
	if ed25519.Verify(pub, SuiPersonalMessageDigest(message), sig) {
		return nil
	}
	// Some wallets sign the bare bytes.
	if ed25519.Verify(pub, message, sig) {
		return nil
	}
	return errEd25519
}

// normalizeSuiAddress left pads short hex addresses to 32 bytes.
func normalizeSuiAddress(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	if len(s) < 64 {
		s = strings.Repeat("0", 64-len(s)) + s
	}
	return "0x" + s
}

func appendULEB128(b []byte, v uint64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b = append(b, c|0x80)
			continue
		}
		return append(b, c)
	}
}

func binaryUvarintLen(n int) int {
	l := 1
	for n >= 0x80 {
		n >>= 7
		l++
	}
	return l
}
