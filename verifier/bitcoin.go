package verifier

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const bitcoinMagic = "Bitcoin Signed Message:\n"

var (
	errInvalidFlag          = errors.New("recovery flag out of range")
	errUnknownBitcoinFormat = errors.New("unsupported bitcoin address")
)

// bitcoinNetworks are tried in order when decoding a claimed address.
var bitcoinNetworks = []*chaincfg.Params{
	&chaincfg.MainNetParams,
	&chaincfg.TestNet3Params,
	&chaincfg.SigNetParams,
	&chaincfg.RegressionNetParams,
}

// BitcoinMessageHash is double-SHA256 of the compact-size prefixed magic
// followed by the compact-size prefixed message ("\x18Bitcoin Signed Message:\n").
func BitcoinMessageHash(message []byte) []byte {
	var buf bytes.Buffer
	// Writes to a bytes.Buffer cannot fail.
	_ = wire.WriteVarString(&buf, 0, bitcoinMagic)
	_ = wire.WriteVarBytes(&buf, 0, message)
	return chainhash.DoubleHashB(buf.Bytes())
}

// recoveryFlag splits a BIP-137 header byte.
//
//	27-30 uncompressed P2PKH, 31-34 compressed P2PKH,
//	35-38 P2SH-P2WPKH, 39-42 P2WPKH
func recoveryFlag(flag byte) (recID byte, compressed bool, err error) {
	if flag < 27 || flag > 42 {
		return 0, false, errInvalidFlag
	}
	return (flag - 27) & 3, flag >= 31, nil
}

func verifyBitcoin(sig, message []byte, expected string) error {
	if len(sig) != 65 {
		return errSignatureLength
	}
	recID, compressed, err := recoveryFlag(sig[0])
	if err != nil {
		return err
	}

	claimed, params, err := decodeBitcoinAddress(expected)
	if err != nil {
		return err
	}

	pub, err := recoverPublicKey(BitcoinMessageHash(message), sig[1:33], sig[33:65], recID)
	if err != nil {
		return err
	}

	derived, err := deriveBitcoinAddress(pub, compressed, claimed, params)
	if err != nil {
		return err
	}
	if derived.EncodeAddress() != claimed.EncodeAddress() {
		return fmt.Errorf("recovered %s, expected %s", derived.EncodeAddress(), claimed.EncodeAddress())
	}
	return nil
}

func decodeBitcoinAddress(s string) (btcutil.Address, *chaincfg.Params, error) {
	for _, params := range bitcoinNetworks {
		addr, err := btcutil.DecodeAddress(s, params)
		if err != nil || !addr.IsForNet(params) {
			continue
		}
		return addr, params, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", errUnknownBitcoinFormat, s)
}

// deriveBitcoinAddress encodes pub in the same format as claimed. Only legacy
// P2PKH can be uncompressed; the segwit formats always commit to the
// compressed key.
func deriveBitcoinAddress(pub *secp256k1.PublicKey, compressed bool, claimed btcutil.Address, params *chaincfg.Params) (btcutil.Address, error) {
	compressedHash := btcutil.Hash160(pub.SerializeCompressed())

	switch claimed.(type) {
	case *btcutil.AddressPubKeyHash:
		key := pub.SerializeUncompressed()
		if compressed {
			key = pub.SerializeCompressed()
		}
		return btcutil.NewAddressPubKeyHash(btcutil.Hash160(key), params)
	case *btcutil.AddressScriptHash:
		redeem := append([]byte{txscript.OP_0, txscript.OP_DATA_20}, compressedHash...)
		return btcutil.NewAddressScriptHash(redeem, params)
	case *btcutil.AddressWitnessPubKeyHash:
		return btcutil.NewAddressWitnessPubKeyHash(compressedHash, params)
	case *btcutil.AddressTaproot:
		tweaked := txscript.ComputeTaprootKeyNoScript(pub)
		return btcutil.NewAddressTaproot(schnorr.SerializePubKey(tweaked), params)
	default:
		return nil, fmt.Errorf("%w: %T", errUnknownBitcoinFormat, claimed)
	}
}
