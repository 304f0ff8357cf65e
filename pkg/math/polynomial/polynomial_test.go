package polynomial

import (
	"crypto/rand"
	"testing"

	"github.com/bridgeval/engine/pkg/math/curve"
	"github.com/bridgeval/engine/pkg/math/sample"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolynomial_Constant(t *testing.T) {
	deg := 10
	secret := sample.Scalar(rand.Reader)
	poly := NewPolynomial(rand.Reader, deg, secret)
	require.True(t, poly.Constant().Equal(secret))
	assert.Equal(t, deg, poly.Degree())
}

func TestPolynomial_Evaluate(t *testing.T) {
	// f(X) = 1 + X²
	polynomial := &Polynomial{[]*curve.Scalar{
		curve.NewScalarUInt32(1),
		curve.NewScalarUInt32(0),
		curve.NewScalarUInt32(1),
	}}

	for x := uint32(1); x < 100; x++ {
		expected := curve.NewScalarUInt32(x*x + 1)
		assert.True(t, expected.Equal(polynomial.Evaluate(curve.NewScalarUInt32(x))))
	}
	assert.Panics(t, func() { polynomial.Evaluate(curve.NewScalar()) })
}

func TestExponent_Evaluate(t *testing.T) {
	poly := NewPolynomial(rand.Reader, 3, sample.Scalar(rand.Reader))
	polyExp := NewPolynomialExponent(poly)
	for i := uint32(1); i < 6; i++ {
		x := curve.NewScalarUInt32(i)
		assert.True(t, poly.Evaluate(x).ActOnBase().Equal(polyExp.Evaluate(x)))
	}
	assert.True(t, poly.Constant().ActOnBase().Equal(polyExp.Constant()))
	assert.NoError(t, polyExp.Validate(3))
	assert.Error(t, polyExp.Validate(2))
}

func TestExponent_Sum(t *testing.T) {
	N := 5
	var polys []*Polynomial
	var exps []*Exponent
	for i := 0; i < N; i++ {
		p := NewPolynomial(rand.Reader, 2, sample.Scalar(rand.Reader))
		polys = append(polys, p)
		exps = append(exps, NewPolynomialExponent(p))
	}
	summed, err := Sum(exps)
	require.NoError(t, err)

	x := curve.NewScalarUInt32(7)
	expected := curve.NewScalar()
	for _, p := range polys {
		expected.Add(p.Evaluate(x))
	}
	assert.True(t, expected.ActOnBase().Equal(summed.Evaluate(x)))

	_, err = Sum(nil)
	assert.Error(t, err)
}

func TestExponent_Marshal(t *testing.T) {
	polyExp := NewPolynomialExponent(NewPolynomial(rand.Reader, 4, sample.Scalar(rand.Reader)))
	data, err := cbor.Marshal(polyExp)
	require.NoError(t, err)

	decoded := new(Exponent)
	require.NoError(t, cbor.Unmarshal(data, decoded))
	assert.True(t, polyExp.Equal(decoded))

	assert.Error(t, decoded.UnmarshalBinary([]byte{0, 0, 0, 2, 1}))
}

func TestLagrange(t *testing.T) {
	allIDs := party.IndexSlice{1, 2, 3, 4, 5, 6, 7}
	for _, domain := range []party.IndexSlice{allIDs, allIDs[:4], {2, 5}} {
		sum := curve.NewScalar()
		for _, c := range Lagrange(domain) {
			sum.Add(c)
		}
		assert.True(t, sum.Equal(curve.NewScalarUInt32(1)))
	}
}

func TestLagrange_Reconstruct(t *testing.T) {
	secret := sample.Scalar(rand.Reader)
	poly := NewPolynomial(rand.Reader, 2, secret)
	signers := party.IndexSlice{1, 3, 4}

	lambdas := Lagrange(signers)
	reconstructed := curve.NewScalar()
	for _, j := range signers {
		share := poly.Evaluate(j.Scalar())
		reconstructed.Add(share.Mul(lambdas[j]))
	}
	assert.True(t, reconstructed.Equal(secret))
	assert.True(t, LagrangeSingle(signers, 3).Equal(lambdas[3]))
}
