package verifier

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/chainauth/authmsg"
	"github.com/layer-3/chainauth/core"
)

func signEVM(t *testing.T, key *ecdsa.PrivateKey, message string) []byte {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	return sig
}

func loginMessage(addr string, now time.Time) *authmsg.AuthMessage {
	exp := now.Add(5 * time.Minute)
	return &authmsg.AuthMessage{
		Domain:         "app.test",
		Address:        addr,
		ChainID:        "1",
		BlockchainType: core.BlockchainEVM,
		Nonce:          "n1",
		IssuedAt:       now,
		ExpiresAt:      &exp,
		URI:            "https://app.test",
		Version:        authmsg.Version,
	}
}

func TestEIP191Hash(t *testing.T) {
	for _, msg := range []string{"", "hello", "héllo wörld", "line one\nline two"} {
		assert.Equal(t, accounts.TextHash([]byte(msg)), EIP191Hash([]byte(msg)), msg)
	}
}

func TestRecoverEVMAddress_MatchesEcrecover(t *testing.T) {
	for i := 0; i < 16; i++ {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		hash := crypto.Keccak256([]byte{byte(i)})
		sig, err := crypto.Sign(hash, key)
		require.NoError(t, err)

		pub, err := crypto.Ecrecover(hash, sig)
		require.NoError(t, err)
		want := common.BytesToAddress(crypto.Keccak256(pub[1:])[12:])

		got, err := RecoverEVMAddress(hash, sig)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), got)
	}
}

func TestVerifyRaw_EVM(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	v := New()
	ctx := context.Background()
	msg := "sign me"
	sig := signEVM(t, key, msg)

	t.Run("v 0/1", func(t *testing.T) {
		assert.True(t, v.VerifyRaw(ctx, sig, msg, addr, core.BlockchainEVM))
	})

	t.Run("v 27/28", func(t *testing.T) {
		s := append([]byte(nil), sig...)
		s[64] += 27
		assert.True(t, v.VerifyRaw(ctx, s, msg, addr, core.BlockchainEVM))
	})

	t.Run("lower case address", func(t *testing.T) {
		lower := "0x" + hex.EncodeToString(common.HexToAddress(addr).Bytes())
		assert.True(t, v.VerifyRaw(ctx, sig, msg, lower, core.BlockchainEVM))
	})

	t.Run("bad v", func(t *testing.T) {
		s := append([]byte(nil), sig...)
		s[64] = 29
		assert.False(t, v.VerifyRaw(ctx, s, msg, addr, core.BlockchainEVM))
	})

	t.Run("wrong length", func(t *testing.T) {
		assert.False(t, v.VerifyRaw(ctx, sig[:64], msg, addr, core.BlockchainEVM))
		assert.False(t, v.VerifyRaw(ctx, nil, msg, addr, core.BlockchainEVM))
	})

	t.Run("flipped message byte", func(t *testing.T) {
		assert.False(t, v.VerifyRaw(ctx, sig, "sign mf", addr, core.BlockchainEVM))
	})

	t.Run("flipped signature byte", func(t *testing.T) {
		for _, i := range []int{0, 31, 32, 63} {
			s := append([]byte(nil), sig...)
			s[i] ^= 0x01
			assert.False(t, v.VerifyRaw(ctx, s, msg, addr, core.BlockchainEVM), "byte %d", i)
		}
	})

	t.Run("zero r", func(t *testing.T) {
		s := make([]byte, 65)
		s[64] = 27
		assert.False(t, v.VerifyRaw(ctx, s, msg, addr, core.BlockchainEVM))
	})

	t.Run("unknown chain", func(t *testing.T) {
		assert.False(t, v.VerifyRaw(ctx, sig, msg, addr, core.BlockchainType("cosmos")))
	})
}

func TestVerify_EVMLogin(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	now := time.Now().UTC().Truncate(time.Millisecond)

	msg := loginMessage(addr, now)
	text := msg.ToSignableMessage()
	sig := core.WalletSignature{
		Signature:      hexutilEncode(signEVM(t, key, text)),
		SignerAddress:  addr,
		Message:        text,
		Timestamp:      now,
		Format:         core.SignatureFormatHex,
		BlockchainType: core.BlockchainEVM,
	}
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		assert.True(t, New().Verify(ctx, sig, msg, addr))
	})

	t.Run("other address", func(t *testing.T) {
		assert.False(t, New().Verify(ctx, sig, msg, "0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"))
	})

	t.Run("expired", func(t *testing.T) {
		v := New(WithClock(func() time.Time { return now.Add(6 * time.Minute) }))
		assert.False(t, v.Verify(ctx, sig, msg, addr))
	})

	t.Run("not yet valid", func(t *testing.T) {
		nb := now.Add(time.Minute)
		m := *msg
		m.NotBefore = &nb
		s := sig
		s.Message = m.ToSignableMessage()
		s.Signature = hexutilEncode(signEVM(t, key, s.Message))
		v := New(WithClock(func() time.Time { return now }))
		assert.False(t, v.Verify(ctx, s, &m, addr))

		v = New(WithClock(func() time.Time { return now.Add(2 * time.Minute) }))
		assert.True(t, v.Verify(ctx, s, &m, addr))
	})

	t.Run("signed text differs", func(t *testing.T) {
		s := sig
		s.Message = text + " "
		assert.False(t, New().Verify(ctx, s, msg, addr))
	})

	t.Run("empty message text uses rendered message", func(t *testing.T) {
		s := sig
		s.Message = ""
		s.Format = ""
		assert.True(t, New().Verify(ctx, s, msg, addr))
	})

	t.Run("nil message", func(t *testing.T) {
		assert.False(t, New().Verify(ctx, sig, nil, addr))
	})

	t.Run("garbage signature", func(t *testing.T) {
		s := sig
		s.Signature = "not a signature"
		assert.False(t, New().Verify(ctx, s, msg, addr))
	})
}

func TestVerifyTypedData(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Login": {
				{Name: "nonce", Type: "string"},
				{Name: "wallet", Type: "address"},
			},
		},
		PrimaryType: "Login",
		Domain: apitypes.TypedDataDomain{
			Name:    "app.test",
			Version: "1",
			ChainId: math.NewHexOrDecimal256(1),
		},
		Message: apitypes.TypedDataMessage{
			"nonce":  "n1",
			"wallet": addr.Hex(),
		},
	}
	hash, _, err := apitypes.TypedDataAndHash(td)
	require.NoError(t, err)
	sig, err := crypto.Sign(hash, key)
	require.NoError(t, err)

	assert.True(t, VerifyTypedData(td, sig, addr.Hex()))

	td.Message["nonce"] = "n2"
	assert.False(t, VerifyTypedData(td, sig, addr.Hex()))
}

func TestChecksumAddress(t *testing.T) {
	const checksummed = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	got, err := ToChecksumAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.NoError(t, err)
	assert.Equal(t, checksummed, got)

	again, err := ToChecksumAddress(got)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	for _, bad := range []string{"", "0x123", "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0xzzzeb6053f3e94c9b9a09f33669435e7ef1beaed"} {
		_, err := ToChecksumAddress(bad)
		assert.ErrorIs(t, err, ErrInvalidAddress, bad)
		assert.False(t, IsValidEVMAddress(bad), bad)
	}
	assert.True(t, IsValidEVMAddress(checksummed))
}

func TestDecodeSignature(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef}

	b, err := DecodeSignature(core.BlockchainEVM, "", "0xdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, raw, b)

	b, err = DecodeSignature(core.BlockchainBitcoin, "", "3q2+7w==")
	require.NoError(t, err)
	assert.Equal(t, raw, b)

	b, err = DecodeSignature(core.BlockchainSolana, core.SignatureFormatBase58, "6h8cQN")
	require.NoError(t, err)
	assert.Equal(t, raw, b)

	_, err = DecodeSignature(core.BlockchainEVM, "", "   ")
	assert.Error(t, err)
	_, err = DecodeSignature(core.BlockchainEVM, core.SignatureFormatHex, "xyz")
	assert.Error(t, err)
}

func hexutilEncode(b []byte) string { return "0x" + hex.EncodeToString(b) }
