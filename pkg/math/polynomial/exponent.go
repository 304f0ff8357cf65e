package polynomial

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bridgeval/engine/pkg/math/curve"
)

// Exponent represents a polynomial whose coefficients are points on an elliptic curve.
type Exponent struct {
	coefficients []*curve.Point
}

// NewPolynomialExponent generates an Exponent polynomial F(X) = [secret + a₁⋅X + … + aₜ⋅Xᵗ]⋅G,
// with coefficients in G, and degree t.
func NewPolynomialExponent(polynomial *Polynomial) *Exponent {
	p := &Exponent{
		coefficients: make([]*curve.Point, len(polynomial.coefficients)),
	}
	for i, c := range polynomial.coefficients {
		p.coefficients[i] = c.ActOnBase()
	}
	return p
}

// Evaluate returns F(x) = [f(x)]⋅G.
//
// We use Horner's method: Bₙ₋₁ = [x]Bₙ + Aₙ₋₁.
func (p *Exponent) Evaluate(x *curve.Scalar) *curve.Point {
	result := curve.NewIdentityPoint()
	for i := len(p.coefficients) - 1; i >= 0; i-- {
		result = x.Act(result).Add(p.coefficients[i])
	}
	return result
}

// Degree returns t for an Exponent with t+1 coefficients.
func (p *Exponent) Degree() int {
	return len(p.coefficients) - 1
}

func (p *Exponent) add(q *Exponent) error {
	if len(p.coefficients) != len(q.coefficients) {
		return errors.New("q is not the same length as p")
	}
	for i := range p.coefficients {
		p.coefficients[i] = p.coefficients[i].Add(q.coefficients[i])
	}
	return nil
}

// Sum creates a new Polynomial in the Exponent, by summing a slice of existing ones.
func Sum(polynomials []*Exponent) (*Exponent, error) {
	if len(polynomials) == 0 {
		return nil, errors.New("polynomial.Sum: no polynomials")
	}
	// Create the new polynomial by copying the first one given
	summed := polynomials[0].Copy()

	// we assume all polynomials have the same degree as the first
	for j := 1; j < len(polynomials); j++ {
		if err := summed.add(polynomials[j]); err != nil {
			return nil, err
		}
	}
	return summed, nil
}

// Copy returns a deep copy of p.
func (p *Exponent) Copy() *Exponent {
	q := &Exponent{coefficients: make([]*curve.Point, len(p.coefficients))}
	for i, c := range p.coefficients {
		q.coefficients[i] = curve.NewIdentityPoint().Set(c)
	}
	return q
}

// Equal returns true if both polynomials have the same coefficients.
func (p *Exponent) Equal(other *Exponent) bool {
	if len(p.coefficients) != len(other.coefficients) {
		return false
	}
	for i := range p.coefficients {
		if !p.coefficients[i].Equal(other.coefficients[i]) {
			return false
		}
	}
	return true
}

// Constant returns the constant coefficient of the polynomial 'in the exponent'.
func (p *Exponent) Constant() *curve.Point {
	return p.coefficients[0]
}

// Validate checks that p has the given degree and that no coefficient is the identity.
func (p *Exponent) Validate(degree int) error {
	if p == nil {
		return errors.New("polynomial.Exponent: nil")
	}
	if p.Degree() != degree {
		return fmt.Errorf("polynomial.Exponent: degree %d, expected %d", p.Degree(), degree)
	}
	for i, c := range p.coefficients {
		if c == nil || c.IsIdentity() {
			return fmt.Errorf("polynomial.Exponent: coefficient %d is the identity", i)
		}
	}
	return nil
}

// WriteTo implements io.WriterTo and should be used within the hash.Hash function.
func (p *Exponent) WriteTo(w io.Writer) (int64, error) {
	data, err := p.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Domain implements hash.WriterToWithDomain, and separates this type within hash.Hash.
func (*Exponent) Domain() string {
	return "Exponent"
}

// MarshalBinary implements encoding.BinaryMarshaler.
//
// The encoding is the number of coefficients as a big endian uint32, followed by
// each compressed coefficient.
func (p *Exponent) MarshalBinary() ([]byte, error) {
	out := make([]byte, 4, 4+len(p.coefficients)*curve.PointBytes)
	binary.BigEndian.PutUint32(out, uint32(len(p.coefficients)))
	for _, c := range p.coefficients {
		data, err := c.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *Exponent) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return errors.New("polynomial.Exponent: data too short")
	}
	count := binary.BigEndian.Uint32(data)
	data = data[4:]
	if count == 0 || uint64(len(data)) != uint64(count)*curve.PointBytes {
		return fmt.Errorf("polynomial.Exponent: invalid length for %d coefficients", count)
	}
	coefficients := make([]*curve.Point, count)
	for i := range coefficients {
		coefficients[i] = curve.NewIdentityPoint()
		if err := coefficients[i].UnmarshalBinary(data[i*curve.PointBytes : (i+1)*curve.PointBytes]); err != nil {
			return fmt.Errorf("polynomial.Exponent: coefficient %d: %w", i, err)
		}
	}
	p.coefficients = coefficients
	return nil
}
