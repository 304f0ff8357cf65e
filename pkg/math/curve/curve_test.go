package curve

import (
	"testing"

	"github.com/cronokirby/saferith"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type marshalTester struct {
	S *Scalar
	P *Point
}

func TestMarshall(t *testing.T) {
	s := marshalTester{
		S: NewScalar().SetNat(new(saferith.Nat).SetUint64(0xED)),
		P: NewBasePoint(),
	}
	data, err := cbor.Marshal(s)
	require.NoError(t, err)
	var s2 marshalTester
	err = cbor.Unmarshal(data, &s2)
	require.NoError(t, err)
	assert.True(t, s.S.Equal(s2.S))
	assert.True(t, s.P.Equal(s2.P))
}

func TestPoint_Identity(t *testing.T) {
	id := NewIdentityPoint()
	assert.True(t, id.IsIdentity())

	data, err := id.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, PointBytes), data)

	decoded := NewBasePoint()
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.True(t, decoded.IsIdentity())

	g := NewBasePoint()
	assert.True(t, g.Add(id).Equal(g))
	assert.True(t, g.Sub(g).IsIdentity())
	assert.True(t, NewScalar().ActOnBase().IsIdentity())
}

func TestPoint_Arithmetic(t *testing.T) {
	two := NewScalarUInt32(2)
	three := NewScalarUInt32(3)
	five := NewScalarUInt32(5)

	g := NewBasePoint()
	lhs := two.ActOnBase().Add(three.ActOnBase())
	assert.True(t, lhs.Equal(five.ActOnBase()))
	assert.True(t, five.Act(g).Equal(lhs))
	assert.True(t, two.ActOnBase().Negate().Add(five.ActOnBase()).Equal(three.ActOnBase()))
}

func TestScalar_Arithmetic(t *testing.T) {
	a := NewScalarUInt32(7)
	b := NewScalarUInt32(3)

	assert.True(t, a.Clone().Sub(b).Equal(NewScalarUInt32(4)))
	assert.True(t, a.Clone().Mul(b).Equal(NewScalarUInt32(21)))
	assert.True(t, a.Clone().Invert().Mul(a).Equal(NewScalarUInt32(1)))
	assert.True(t, a.Clone().Negate().Add(a).IsZero())
}

func TestUnmarshal_Invalid(t *testing.T) {
	var s Scalar
	assert.Error(t, s.UnmarshalBinary([]byte{1, 2, 3}))
	overflow := make([]byte, ScalarBytes)
	for i := range overflow {
		overflow[i] = 0xff
	}
	assert.Error(t, s.UnmarshalBinary(overflow))

	var p Point
	bad := make([]byte, PointBytes)
	bad[0] = 0x05
	assert.Error(t, p.UnmarshalBinary(bad))
	bad[0] = 0
	bad[5] = 1
	assert.Error(t, p.UnmarshalBinary(bad))
}
