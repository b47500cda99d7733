package verifier

import (
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	errInvalidRecoveryID = errors.New("recovery id out of range")
	errInvalidScalar     = errors.New("signature scalar out of range")
	errNotOnCurve        = errors.New("r is not the x coordinate of a curve point")
	errPointAtInfinity   = errors.New("recovered point at infinity")
)

// curveOrder is n lifted into the field, used when the recovery id says R.x
// overflowed the group order.
var curveOrder = func() secp256k1.FieldVal {
	var f secp256k1.FieldVal
	f.SetByteSlice(secp256k1.Params().N.Bytes())
	return f
}()

// recoverPublicKey recovers the secp256k1 public key that produced (r, s)
// over hash. recID bit 0 is the parity of R.y, bit 1 says R.x = r + n.
//
//	Q = r⁻¹(s·R − e·G)
func recoverPublicKey(hash, r, s []byte, recID byte) (*secp256k1.PublicKey, error) {
	if recID > 3 {
		return nil, errInvalidRecoveryID
	}

	var rScalar, sScalar secp256k1.ModNScalar
	if overflow := rScalar.SetByteSlice(r); overflow || rScalar.IsZero() {
		return nil, errInvalidScalar
	}
	if overflow := sScalar.SetByteSlice(s); overflow || sScalar.IsZero() {
		return nil, errInvalidScalar
	}

	// R.x is r, or r + n when the x coordinate wrapped past the group order.
	var x secp256k1.FieldVal
	if overflow := x.SetByteSlice(r); overflow {
		return nil, errInvalidScalar
	}
	if recID&2 != 0 {
		if x.IsGtOrEqPrimeMinusOrder() {
			return nil, errNotOnCurve
		}
		x.Add(&curveOrder)
	}
	x.Normalize()

	// Solve y² = x³ + 7 (mod p) and keep the root whose parity matches.
	var R secp256k1.JacobianPoint
	if !secp256k1.DecompressY(&x, recID&1 == 1, &R.Y) {
		return nil, errNotOnCurve
	}
	R.X.Set(&x)
	R.Z.SetInt(1)

	var e secp256k1.ModNScalar
	e.SetByteSlice(hash)

	w := new(secp256k1.ModNScalar).InverseValNonConst(&rScalar)
	u1 := new(secp256k1.ModNScalar).Mul2(&e, w).Negate()
	u2 := new(secp256k1.ModNScalar).Mul2(&sScalar, w)

	var eG, sR, Q secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(u1, &eG)
	secp256k1.ScalarMultNonConst(u2, &R, &sR)
	secp256k1.AddNonConst(&eG, &sR, &Q)

	if (Q.X.IsZero() && Q.Y.IsZero()) || Q.Z.IsZero() {
		return nil, errPointAtInfinity
	}
	Q.ToAffine()
	return secp256k1.NewPublicKey(&Q.X, &Q.Y), nil
}
