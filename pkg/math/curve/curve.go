package curve

import (
	"github.com/cronokirby/saferith"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	// ScalarBytes is the size of a marshalled Scalar.
	ScalarBytes = 32
	// PointBytes is the size of a compressed marshalled Point.
	PointBytes = 33
	// SafeScalarBytes is the number of uniform bytes needed to sample a scalar
	// with negligible bias.
	SafeScalarBytes = 48
)

var order *saferith.Modulus

func init() {
	n, err := new(saferith.Nat).SetHex("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141")
	if err != nil {
		panic(err)
	}
	order = saferith.ModulusFromNat(n)
}

// Name identifies the group used by this package.
func Name() string { return "secp256k1" }

// Order returns the order of the secp256k1 group.
func Order() *saferith.Modulus { return order }

// NewBasePoint returns a copy of the group generator G.
func NewBasePoint() *Point {
	var one secp256k1.ModNScalar
	one.SetInt(1)
	out := new(Point)
	secp256k1.ScalarBaseMultNonConst(&one, &out.p)
	return out
}

// FromHash converts a hash value to a Scalar.
//
// There is some disagreement about how this should be done.
// [NSA] suggests that this is done in the obvious
// manner, but [SECG] truncates the hash to the bit-length of the curve order
// first. We follow [SECG] because that's what OpenSSL does. Additionally,
// OpenSSL right shifts excess bits from the number if the hash is too large
// and we mirror that too.
//
// Taken from crypto/ecdsa.
func FromHash(h []byte) *Scalar {
	orderBits := order.BitLen()
	orderBytes := (orderBits + 7) / 8
	if len(h) > orderBytes {
		h = h[:orderBytes]
	}
	s := new(saferith.Nat).SetBytes(h)
	excess := len(h)*8 - orderBits
	if excess > 0 {
		s.Rsh(s, uint(excess), -1)
	}
	return NewScalar().SetNat(s)
}
