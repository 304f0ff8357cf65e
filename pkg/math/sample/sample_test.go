package sample

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScalar_Deterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 96)
	a := Scalar(bytes.NewReader(seed))
	b := Scalar(bytes.NewReader(seed))
	assert.True(t, a.Equal(b))
}

func TestScalarPointPair(t *testing.T) {
	s, p := ScalarPointPair(rand.Reader)
	assert.False(t, s.IsZero())
	assert.True(t, s.ActOnBase().Equal(p))
}

func TestScalar_ShortReader(t *testing.T) {
	assert.Panics(t, func() {
		Scalar(bytes.NewReader([]byte{1, 2, 3}))
	})
}
