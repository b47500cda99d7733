package verifier

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const evmMessagePrefix = "\x19Ethereum Signed Message:\n"

var (
	errSignatureLength = errors.New("signature must be 65 bytes")
	errInvalidV        = errors.New("recovery byte must be 27 or 28")
	ErrInvalidAddress  = errors.New("invalid EVM address")
)

// EIP191Hash returns keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg),
// the hash personal_sign produces. The length is the decimal byte length.
func EIP191Hash(message []byte) []byte {
	prefix := evmMessagePrefix + strconv.Itoa(len(message))
	return crypto.Keccak256([]byte(prefix), message)
}

// RecoverEVMAddress recovers the signer address of a 65 byte r‖s‖v
// signature over hash. v may be 0/1 or 27/28.
func RecoverEVMAddress(hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, errSignatureLength
	}
	v := sig[64]
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		return common.Address{}, errInvalidV
	}

	pub, err := recoverPublicKey(hash, sig[:32], sig[32:64], v-27)
	if err != nil {
		return common.Address{}, err
	}
	uncompressed := pub.SerializeUncompressed()
	return common.BytesToAddress(crypto.Keccak256(uncompressed[1:])[12:]), nil
}

func verifyEVM(sig []byte, message []byte, expected string) error {
	want, err := parseEVMAddress(expected)
	if err != nil {
		return err
	}
	got, err := RecoverEVMAddress(EIP191Hash(message), sig)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("recovered %s, expected %s", got.Hex(), want.Hex())
	}
	return nil
}

// VerifyTypedData checks an EIP-712 signature over typedData.
func VerifyTypedData(typedData apitypes.TypedData, sig []byte, expected string) bool {
	want, err := parseEVMAddress(expected)
	if err != nil {
		return false
	}
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return false
	}
	got, err := RecoverEVMAddress(hash, sig)
	return err == nil && got == want
}

func parseEVMAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(strings.ToLower(s), "0x") || !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// IsValidEVMAddress reports whether s is a 0x-prefixed 20 byte hex address.
func IsValidEVMAddress(s string) bool {
	_, err := parseEVMAddress(s)
	return err == nil
}

// ToChecksumAddress returns the EIP-55 mixed-case form of address.
func ToChecksumAddress(address string) (string, error) {
	addr, err := parseEVMAddress(address)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

// EVMAddressesEqual compares two EVM addresses ignoring case.
func EVMAddressesEqual(a, b string) bool {
	x, err := parseEVMAddress(a)
	if err != nil {
		return false
	}
	y, err := parseEVMAddress(b)
	return err == nil && x == y
}
