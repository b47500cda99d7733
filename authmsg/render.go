package authmsg

import (
	"fmt"
	"strings"
	"time"

	"github.com/layer-3/chainauth/core"
)

const (
	evmHeaderSuffix = " wants you to sign in with your Ethereum account:"
	feeDisclaimer   = "This request will not trigger a blockchain transaction or cost any fees."
)

// ToSignableMessage renders the exact text the wallet signs.
func (m *AuthMessage) ToSignableMessage() string {
	if m.BlockchainType == core.BlockchainEVM || m.BlockchainType == "" {
		return m.renderEIP4361()
	}
	return m.renderDeclarative()
}

func (m *AuthMessage) String() string { return m.ToSignableMessage() }

// renderEIP4361 follows the EIP-4361 ABNF: the statement, when present, sits
// between two blank lines; when absent the two blank lines remain.
func (m *AuthMessage) renderEIP4361() string {
	var b strings.Builder
	b.WriteString(m.Domain + evmHeaderSuffix + "\n")
	b.WriteString(m.Address + "\n")
	b.WriteString("\n")
	if m.Statement != "" {
		b.WriteString(m.Statement + "\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "URI: %s\n", m.URI)
	fmt.Fprintf(&b, "Version: %s\n", m.version())
	fmt.Fprintf(&b, "Chain ID: %s\n", m.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", m.Nonce)
	fmt.Fprintf(&b, "Issued At: %s", formatTime(m.IssuedAt))
	if m.ExpiresAt != nil {
		fmt.Fprintf(&b, "\nExpiration Time: %s", formatTime(*m.ExpiresAt))
	}
	if m.NotBefore != nil {
		fmt.Fprintf(&b, "\nNot Before: %s", formatTime(*m.NotBefore))
	}
	if m.RequestID != "" {
		fmt.Fprintf(&b, "\nRequest ID: %s", m.RequestID)
	}
	if len(m.Resources) > 0 {
		b.WriteString("\nResources:")
		for _, r := range m.Resources {
			b.WriteString("\n- " + r)
		}
	}
	return b.String()
}

func (m *AuthMessage) renderDeclarative() string {
	profile, _ := core.Profile(m.BlockchainType)
	label := profile.AddressLabel
	if label == "" {
		label = "Address"
	}
	name := profile.DisplayName
	if name == "" {
		name = string(m.BlockchainType)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s wants you to sign in with your %s wallet.\n\n", m.Domain, name)
	fmt.Fprintf(&b, "%s: %s\n", label, m.Address)
	fmt.Fprintf(&b, "Network: %s\n", m.ChainID)
	if m.URI != "" {
		fmt.Fprintf(&b, "URI: %s\n", m.URI)
	}
	fmt.Fprintf(&b, "Nonce: %s\n", m.Nonce)
	fmt.Fprintf(&b, "Issued At: %s\n", formatTime(m.IssuedAt))
	if m.ExpiresAt != nil {
		fmt.Fprintf(&b, "Expiration Time: %s\n", formatTime(*m.ExpiresAt))
	}
	if m.Statement != "" {
		fmt.Fprintf(&b, "\n%s\n", m.Statement)
	}
	b.WriteString("\n" + feeDisclaimer)
	return b.String()
}

func (m *AuthMessage) version() string {
	if m.Version == "" {
		return Version
	}
	return m.Version
}

// Parse reads an EIP-4361 message back into an AuthMessage. Every field that
// was set when the text was rendered is restored.
func Parse(text string) (*AuthMessage, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) < 4 {
		return nil, fmt.Errorf("%w: too short", ErrMalformed)
	}

	header := lines[0]
	if !strings.HasSuffix(header, evmHeaderSuffix) {
		return nil, fmt.Errorf("%w: missing header", ErrMalformed)
	}
	m := &AuthMessage{
		Domain:         strings.TrimSuffix(header, evmHeaderSuffix),
		Address:        lines[1],
		BlockchainType: core.BlockchainEVM,
	}
	if m.Domain == "" {
		return nil, ErrMissingDomain
	}
	if lines[2] != "" {
		return nil, fmt.Errorf("%w: expected blank line after address", ErrMalformed)
	}

	// Either "", <fields...> or <statement>, "", <fields...>.
	i := 3
	if lines[i] != "" {
		m.Statement = lines[i]
		i++
		if i >= len(lines) || lines[i] != "" {
			return nil, fmt.Errorf("%w: expected blank line after statement", ErrMalformed)
		}
	}
	i++

	seen := map[string]bool{}
	for ; i < len(lines); i++ {
		line := lines[i]
		if line == "Resources:" {
			for i++; i < len(lines); i++ {
				if !strings.HasPrefix(lines[i], "- ") {
					return nil, fmt.Errorf("%w: bad resource line %q", ErrMalformed, lines[i])
				}
				m.Resources = append(m.Resources, strings.TrimPrefix(lines[i], "- "))
			}
			break
		}

		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, fmt.Errorf("%w: bad field line %q", ErrMalformed, line)
		}
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrMalformed, key)
		}
		seen[key] = true

		if err := m.setField(key, value); err != nil {
			return nil, err
		}
	}

	for _, required := range []string{"URI", "Version", "Chain ID", "Nonce", "Issued At"} {
		if !seen[required] {
			return nil, fmt.Errorf("%w: missing %q", ErrMalformed, required)
		}
	}
	return m, nil
}

func (m *AuthMessage) setField(key, value string) error {
	switch key {
	case "URI":
		m.URI = value
	case "Version":
		m.Version = value
	case "Chain ID":
		m.ChainID = value
	case "Nonce":
		m.Nonce = value
	case "Issued At":
		t, err := parseTime(value)
		if err != nil {
			return err
		}
		m.IssuedAt = t
	case "Expiration Time":
		t, err := parseTime(value)
		if err != nil {
			return err
		}
		m.ExpiresAt = &t
	case "Not Before":
		t, err := parseTime(value)
		if err != nil {
			return err
		}
		m.NotBefore = &t
	case "Request ID":
		m.RequestID = value
	default:
		return fmt.Errorf("%w: unknown field %q", ErrMalformed, key)
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, s)
	}
	return t.UTC(), nil
}
