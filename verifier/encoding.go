package verifier

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/layer-3/chainauth/core"
)

var errUndecodable = errors.New("signature encoding not recognised")

// DecodeSignature decodes a wallet signature string. When format is empty
// the chain's usual encoding is tried first, then the others.
func DecodeSignature(chain core.BlockchainType, format core.SignatureFormat, s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errUndecodable
	}
	if format != "" {
		return decodeAs(format, s)
	}

	order := []core.SignatureFormat{core.SignatureFormatHex, core.SignatureFormatBase64, core.SignatureFormatBase58}
	if p, ok := core.Profile(chain); ok {
		order = append([]core.SignatureFormat{p.SignatureEncoding}, order...)
	}
	for _, f := range order {
		if b, err := decodeAs(f, s); err == nil {
			return b, nil
		}
	}
	return nil, errUndecodable
}

func decodeAs(format core.SignatureFormat, s string) ([]byte, error) {
	switch format {
	case core.SignatureFormatHex:
		return decodeHex(s)
	case core.SignatureFormatBase64:
		for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
			if b, err := enc.DecodeString(s); err == nil {
				return b, nil
			}
		}
		return nil, errUndecodable
	case core.SignatureFormatBase58:
		return base58.Decode(s)
	default:
		return nil, errUndecodable
	}
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}
