package curve

import (
	"errors"
	"fmt"
	"io"

	"github.com/cronokirby/saferith"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Scalar is an element of ℤₙ where n is the order of secp256k1.
//
// Arithmetic methods modify the receiver and return it, so that calls can be chained:
//
//	s.Set(a).Mul(b).Add(c)
type Scalar struct {
	s secp256k1.ModNScalar
}

// NewScalar returns a new zero Scalar.
func NewScalar() *Scalar {
	return new(Scalar)
}

// NewScalarUInt32 returns a new Scalar set to x.
func NewScalarUInt32(x uint32) *Scalar {
	var s Scalar
	s.s.SetInt(x)
	return &s
}

// Set sets s = x, and returns s.
func (s *Scalar) Set(x *Scalar) *Scalar {
	s.s.Set(&x.s)
	return s
}

// SetNat sets s = x mod n, and returns s.
func (s *Scalar) SetNat(x *saferith.Nat) *Scalar {
	reduced := new(saferith.Nat).Mod(x, order)
	data := reduced.Bytes()
	var buf [ScalarBytes]byte
	if len(data) > ScalarBytes {
		data = data[len(data)-ScalarBytes:]
	}
	copy(buf[ScalarBytes-len(data):], data)
	s.s.SetBytes(&buf)
	return s
}

// Add sets s = s + x, and returns s.
func (s *Scalar) Add(x *Scalar) *Scalar {
	s.s.Add(&x.s)
	return s
}

// Sub sets s = s - x, and returns s.
func (s *Scalar) Sub(x *Scalar) *Scalar {
	var negX secp256k1.ModNScalar
	negX.NegateVal(&x.s)
	s.s.Add(&negX)
	return s
}

// Mul sets s = s * x, and returns s.
func (s *Scalar) Mul(x *Scalar) *Scalar {
	s.s.Mul(&x.s)
	return s
}

// Negate sets s = -s, and returns s.
func (s *Scalar) Negate() *Scalar {
	s.s.Negate()
	return s
}

// Invert sets s = s⁻¹, and returns s. The inverse of 0 is 0.
func (s *Scalar) Invert() *Scalar {
	s.s.InverseNonConst()
	return s
}

// Equal returns true if s and x represent the same value.
func (s *Scalar) Equal(x *Scalar) bool {
	return s.s.Equals(&x.s)
}

// IsZero returns true if s = 0.
func (s *Scalar) IsZero() bool {
	return s.s.IsZero()
}

// Act returns s⋅P.
func (s *Scalar) Act(p *Point) *Point {
	out := new(Point)
	secp256k1.ScalarMultNonConst(&s.s, &p.p, &out.p)
	return out
}

// ActOnBase returns s⋅G.
func (s *Scalar) ActOnBase() *Point {
	out := new(Point)
	secp256k1.ScalarBaseMultNonConst(&s.s, &out.p)
	return out
}

// Clone returns a new Scalar with the same value as s.
func (s *Scalar) Clone() *Scalar {
	return NewScalar().Set(s)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s *Scalar) MarshalBinary() ([]byte, error) {
	data := s.s.Bytes()
	return data[:], nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *Scalar) UnmarshalBinary(data []byte) error {
	if len(data) != ScalarBytes {
		return fmt.Errorf("curve.Scalar.UnmarshalBinary: invalid length %d", len(data))
	}
	var scalar secp256k1.ModNScalar
	if scalar.SetByteSlice(data) {
		return errors.New("curve.Scalar.UnmarshalBinary: scalar was >= n")
	}
	s.s.Set(&scalar)
	return nil
}

// WriteTo implements io.WriterTo and should be used within the hash.Hash function.
func (s *Scalar) WriteTo(w io.Writer) (int64, error) {
	data := s.s.Bytes()
	n, err := w.Write(data[:])
	return int64(n), err
}

// Domain implements hash.WriterToWithDomain, and separates this type within hash.Hash.
func (*Scalar) Domain() string {
	return "secp256k1.Scalar"
}

// String implements fmt.Stringer.
func (s *Scalar) String() string {
	if s == nil {
		return "nil"
	}
	return s.s.String()
}
