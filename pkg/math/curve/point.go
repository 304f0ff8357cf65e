package curve

import (
	"errors"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Point is an element of the secp256k1 group, stored in Jacobian coordinates.
//
// The zero value is the identity.
type Point struct {
	p secp256k1.JacobianPoint
}

// NewIdentityPoint returns the identity element.
func NewIdentityPoint() *Point {
	return new(Point)
}

// Set sets v = u, and returns v.
func (v *Point) Set(u *Point) *Point {
	v.p.Set(&u.p)
	return v
}

// Add returns v + u.
func (v *Point) Add(u *Point) *Point {
	out := new(Point)
	secp256k1.AddNonConst(&v.p, &u.p, &out.p)
	return out
}

// Sub returns v - u.
func (v *Point) Sub(u *Point) *Point {
	return v.Add(u.Negate())
}

// Negate returns -v.
func (v *Point) Negate() *Point {
	out := v.affine()
	if out.isAffineIdentity() {
		return out
	}
	out.p.Y.Negate(1)
	out.p.Y.Normalize()
	return out
}

// Equal returns true if v and u represent the same group element.
func (v *Point) Equal(u *Point) bool {
	a, b := v.affine(), u.affine()
	return a.p.X.Equals(&b.p.X) && a.p.Y.Equals(&b.p.Y)
}

// IsIdentity returns true if v is the identity element.
func (v *Point) IsIdentity() bool {
	return v.affine().isAffineIdentity()
}

// HasEvenY returns true if the affine y coordinate of v is even.
func (v *Point) HasEvenY() bool {
	return !v.affine().p.Y.IsOdd()
}

// affine returns a copy of v with Z = 1 and normalized coordinates.
func (v *Point) affine() *Point {
	out := new(Point).Set(v)
	out.p.ToAffine()
	return out
}

func (v *Point) isAffineIdentity() bool {
	return v.p.X.IsZero() && v.p.Y.IsZero()
}

// MarshalBinary implements encoding.BinaryMarshaler.
//
// The encoding is the 33 byte compressed SEC1 form. The identity is encoded as 33 zero bytes.
func (v *Point) MarshalBinary() ([]byte, error) {
	if v == nil {
		return nil, errors.New("curve.Point.MarshalBinary: point is nil")
	}
	data := make([]byte, PointBytes)
	a := v.affine()
	if a.isAffineIdentity() {
		return data, nil
	}
	data[0] = secp256k1.PubKeyFormatCompressedEven
	if a.p.Y.IsOdd() {
		data[0] = secp256k1.PubKeyFormatCompressedOdd
	}
	a.p.X.PutBytesUnchecked(data[1:])
	return data, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (v *Point) UnmarshalBinary(data []byte) error {
	if len(data) != PointBytes {
		return fmt.Errorf("curve.Point.UnmarshalBinary: invalid length %d", len(data))
	}
	format := data[0]
	if format == 0 {
		for _, b := range data[1:] {
			if b != 0 {
				return errors.New("curve.Point.UnmarshalBinary: invalid identity encoding")
			}
		}
		v.p = secp256k1.JacobianPoint{}
		return nil
	}
	if format != secp256k1.PubKeyFormatCompressedEven && format != secp256k1.PubKeyFormatCompressedOdd {
		return errors.New("curve.Point.UnmarshalBinary: incorrect format")
	}

	var x, y secp256k1.FieldVal
	if overflow := x.SetByteSlice(data[1:]); overflow {
		return errors.New("curve.Point.UnmarshalBinary: x >= field prime")
	}
	if !secp256k1.DecompressY(&x, format == secp256k1.PubKeyFormatCompressedOdd, &y) {
		return errors.New("curve.Point.UnmarshalBinary: x coordinate is not on the curve")
	}
	y.Normalize()
	v.p.X.Set(&x)
	v.p.Y.Set(&y)
	v.p.Z.SetInt(1)
	return nil
}

// WriteTo implements io.WriterTo and should be used within the hash.Hash function.
func (v *Point) WriteTo(w io.Writer) (int64, error) {
	data, err := v.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Domain implements hash.WriterToWithDomain, and separates this type within hash.Hash.
func (*Point) Domain() string {
	return "secp256k1.Point"
}

// String implements fmt.Stringer.
func (v *Point) String() string {
	if v == nil {
		return "nil"
	}
	data, _ := v.MarshalBinary()
	return fmt.Sprintf("Point{%x}", data)
}
