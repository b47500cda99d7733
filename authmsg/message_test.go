package authmsg

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/chainauth/core"
)

const testAddress = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

var fixedNow = time.Date(2024, 5, 1, 12, 30, 45, 123456789, time.UTC)

func fullOptions() Options {
	nb := fixedNow.Add(-time.Minute)
	return Options{
		Domain:         "app.test",
		Address:        strings.ToLower(testAddress),
		ChainID:        "1",
		BlockchainType: core.BlockchainEVM,
		Statement:      "Sign in to app.test",
		URI:            "https://app.test/login",
		ExpiresIn:      10 * time.Minute,
		NotBefore:      &nb,
		RequestID:      "req-42",
		Resources:      []string{"ipfs://bafybeiemxf5abjwjbikoz4mc3a3dla6ual3jsgpdr4cjr3oz3evfyavhwq/", "https://app.test/terms"},
	}
}

func TestCreate(t *testing.T) {
	m, err := Create(Options{Domain: "app.test", Address: testAddress, ChainID: "1", ExpiresIn: time.Minute})
	require.NoError(t, err)

	assert.Len(t, m.Nonce, 2*NonceBytes)
	assert.Equal(t, core.BlockchainEVM, m.BlockchainType)
	assert.Equal(t, "https://app.test", m.URI)
	assert.Equal(t, Version, m.Version)
	assert.Equal(t, time.UTC, m.IssuedAt.Location())
	require.NotNil(t, m.ExpiresAt)
	assert.Equal(t, time.Minute, m.ExpiresAt.Sub(m.IssuedAt))
	assert.WithinDuration(t, time.Now(), m.IssuedAt, time.Second)

	other, err := Create(Options{Domain: "app.test", Address: testAddress, ChainID: "1"})
	require.NoError(t, err)
	assert.NotEqual(t, m.Nonce, other.Nonce)
	assert.Nil(t, other.ExpiresAt)
}

func TestCreate_Checksums(t *testing.T) {
	m, err := newMessage(fullOptions(), "abcdef0123456789", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, testAddress, m.Address)
}

func TestCreate_Invalid(t *testing.T) {
	tcs := []struct {
		name string
		opts Options
		err  error
	}{
		{"missing domain", Options{Address: testAddress}, ErrMissingDomain},
		{"missing address", Options{Domain: "app.test"}, ErrMissingAddress},
		{"bad evm address", Options{Domain: "app.test", Address: "0x1234"}, ErrInvalidAddress},
		{"bad chain id", Options{Domain: "app.test", Address: testAddress, ChainID: "mainnet"}, ErrInvalidChainID},
		{"unknown chain", Options{Domain: "app.test", Address: "x", BlockchainType: "cosmos"}, core.ErrChainNotSupported},
		{"multi-line statement", withOpts(func(o *Options) { o.Statement = "line one\nline two" }), ErrLineBreak},
		{"carriage return in statement", withOpts(func(o *Options) { o.Statement = "line one\rline two" }), ErrLineBreak},
		{"line break in domain", withOpts(func(o *Options) { o.Domain = "app.test\nevil.test" }), ErrLineBreak},
		{"line break in uri", withOpts(func(o *Options) { o.URI = "https://app.test/\nVersion: 2" }), ErrLineBreak},
		{"line break in request id", withOpts(func(o *Options) { o.RequestID = "req\n42" }), ErrLineBreak},
		{"line break in resource", withOpts(func(o *Options) { o.Resources = []string{"https://app.test/a\n- https://evil.test"} }), ErrLineBreak},
		{"line break in solana address", Options{Domain: "app.test", Address: "abc\ndef", BlockchainType: core.BlockchainSolana}, ErrLineBreak},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Create(tc.opts)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func withOpts(mod func(*Options)) Options {
	o := fullOptions()
	mod(&o)
	return o
}

func TestValidate_Window(t *testing.T) {
	m, err := newMessage(fullOptions(), "abcdef0123456789", fixedNow)
	require.NoError(t, err)

	before := m.IssuedAt.Add(-time.Second)
	m.ExpiresAt = &before
	assert.ErrorIs(t, m.Validate(), ErrInvalidWindow)

	m.ExpiresAt = nil
	m.Nonce = "abc-123"
	assert.ErrorIs(t, m.Validate(), ErrInvalidNonce)
}

func TestToSignableMessage_EIP4361(t *testing.T) {
	m, err := newMessage(fullOptions(), "abcdef0123456789", fixedNow)
	require.NoError(t, err)

	expected := "app.test wants you to sign in with your Ethereum account:\n" +
		testAddress + "\n" +
		"\n" +
		"Sign in to app.test\n" +
		"\n" +
		"URI: https://app.test/login\n" +
		"Version: 1\n" +
		"Chain ID: 1\n" +
		"Nonce: abcdef0123456789\n" +
		"Issued At: 2024-05-01T12:30:45.123Z\n" +
		"Expiration Time: 2024-05-01T12:40:45.123Z\n" +
		"Not Before: 2024-05-01T12:29:45.123Z\n" +
		"Request ID: req-42\n" +
		"Resources:\n" +
		"- ipfs://bafybeiemxf5abjwjbikoz4mc3a3dla6ual3jsgpdr4cjr3oz3evfyavhwq/\n" +
		"- https://app.test/terms"
	assert.Equal(t, expected, m.ToSignableMessage())
}

func TestToSignableMessage_EIP4361Minimal(t *testing.T) {
	m := &AuthMessage{
		Domain:         "app.test",
		Address:        testAddress,
		ChainID:        "1",
		BlockchainType: core.BlockchainEVM,
		Nonce:          "n1",
		IssuedAt:       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		URI:            "https://app.test",
		Version:        "1",
	}

	expected := "app.test wants you to sign in with your Ethereum account:\n" +
		testAddress + "\n" +
		"\n" +
		"\n" +
		"URI: https://app.test\n" +
		"Version: 1\n" +
		"Chain ID: 1\n" +
		"Nonce: n1\n" +
		"Issued At: 2024-01-02T03:04:05.000Z"
	assert.Equal(t, expected, m.ToSignableMessage())
}

func TestToSignableMessage_Declarative(t *testing.T) {
	exp := time.Date(2024, 1, 2, 3, 9, 5, 0, time.UTC)
	base := AuthMessage{
		Domain:    "app.test",
		Nonce:     "abcdef0123456789",
		IssuedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		ExpiresAt: &exp,
		Statement: "Welcome back",
	}

	tcs := []struct {
		chain   core.BlockchainType
		address string
		network string
		header  string
		label   string
	}{
		{core.BlockchainBitcoin, "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", "mainnet", "Bitcoin", "Address"},
		{core.BlockchainSolana, "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", "mainnet-beta", "Solana", "Address"},
		{core.BlockchainHedera, "0.0.12345", "mainnet", "Hedera", "Account"},
		{core.BlockchainSui, "0x02a212de6a9dfa3a69e22387acfbafbb1a9e591bd9d636e7895dcfc8de05f331", "mainnet", "Sui", "Address"},
	}
	for _, tc := range tcs {
		t.Run(string(tc.chain), func(t *testing.T) {
			m := base
			m.BlockchainType = tc.chain
			m.Address = tc.address
			m.ChainID = tc.network

			expected := "app.test wants you to sign in with your " + tc.header + " wallet.\n" +
				"\n" +
				tc.label + ": " + tc.address + "\n" +
				"Network: " + tc.network + "\n" +
				"Nonce: abcdef0123456789\n" +
				"Issued At: 2024-01-02T03:04:05.000Z\n" +
				"Expiration Time: 2024-01-02T03:09:05.000Z\n" +
				"\n" +
				"Welcome back\n" +
				"\n" +
				"This request will not trigger a blockchain transaction or cost any fees."
			assert.Equal(t, expected, m.ToSignableMessage())
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	m, err := newMessage(fullOptions(), "abcdef0123456789", fixedNow)
	require.NoError(t, err)

	parsed, err := Parse(m.ToSignableMessage())
	require.NoError(t, err)
	assert.Equal(t, m, parsed)
	assert.Equal(t, m.ToSignableMessage(), parsed.ToSignableMessage())
}

func TestParse_RoundTripMinimal(t *testing.T) {
	m, err := newMessage(Options{Domain: "app.test", Address: testAddress, ChainID: "137"}, "0123456789abcdef", fixedNow)
	require.NoError(t, err)

	parsed, err := Parse(m.ToSignableMessage())
	require.NoError(t, err)
	assert.Equal(t, m, parsed)
	assert.Empty(t, parsed.Statement)
	assert.Nil(t, parsed.ExpiresAt)
	assert.Nil(t, parsed.Resources)
}

func TestParse_Malformed(t *testing.T) {
	valid, err := newMessage(fullOptions(), "abcdef0123456789", fixedNow)
	require.NoError(t, err)
	text := valid.ToSignableMessage()

	tcs := map[string]string{
		"empty":            "",
		"wrong header":     strings.Replace(text, "Ethereum account", "Bitcoin account", 1),
		"missing nonce":    strings.Replace(text, "Nonce: abcdef0123456789\n", "", 1),
		"unknown field":    strings.Replace(text, "Version: 1", "Flavour: 1", 1),
		"duplicate field":  strings.Replace(text, "Version: 1", "Version: 1\nVersion: 1", 1),
		"bad timestamp":    strings.Replace(text, "2024-05-01T12:30:45.123Z", "yesterday", 1),
		"bad resource":     text + "\nnot-a-bullet",
		"no blank line":    strings.Replace(text, testAddress+"\n\n", testAddress+"\n", 1),
		"no statement gap": strings.Replace(text, "Sign in to app.test\n\n", "Sign in to app.test\n", 1),
	}
	for name, input := range tcs {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(input)
			assert.Error(t, err)
		})
	}
}

func TestValidity(t *testing.T) {
	m, err := newMessage(fullOptions(), "abcdef0123456789", fixedNow)
	require.NoError(t, err)

	assert.False(t, m.IsValidYetAt(fixedNow.Add(-2*time.Minute)))
	assert.True(t, m.IsValidAt(fixedNow))
	assert.False(t, m.IsExpiredAt(fixedNow.Add(9*time.Minute)))
	assert.True(t, m.IsExpiredAt(fixedNow.Add(11*time.Minute)))
	assert.False(t, m.IsValidAt(fixedNow.Add(11*time.Minute)))

	// Wall clock checks: fixedNow is in the past, so the message is expired now.
	assert.True(t, m.IsExpired())
	assert.False(t, m.IsValid())
	assert.True(t, m.IsValidYet())

	fresh, err := Create(Options{Domain: "app.test", Address: testAddress, ExpiresIn: time.Hour})
	require.NoError(t, err)
	assert.False(t, fresh.IsExpired())
	assert.True(t, fresh.IsValid())

	noExpiry, err := Create(Options{Domain: "app.test", Address: testAddress})
	require.NoError(t, err)
	assert.False(t, noExpiry.IsExpiredAt(time.Now().Add(100*365*24*time.Hour)))
}
