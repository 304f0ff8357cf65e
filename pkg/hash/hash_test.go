package hash

import (
	"crypto/rand"
	"testing"

	"github.com/bridgeval/engine/pkg/math/curve"
	"github.com/bridgeval/engine/pkg/math/sample"
	"github.com/stretchr/testify/assert"
)

func TestHash_WriteAny(t *testing.T) {
	testFunc := func(vs ...interface{}) error {
		h := New()
		for _, v := range vs {
			if err := h.WriteAny(v); err != nil {
				return err
			}
		}
		return nil
	}

	assert.NoError(t, testFunc(sample.Scalar(rand.Reader)))
	assert.NoError(t, testFunc(sample.Scalar(rand.Reader).ActOnBase()))
	assert.NoError(t, testFunc([]byte{1, 4, 6}, "ctx", uint64(42)))
	assert.Panics(t, func() { _ = testFunc(3.14) })
}

func TestHash_WriteAny_Collision(t *testing.T) {
	h1 := New([]byte("ab"), []byte("c")).Sum()
	h2 := New([]byte("a"), []byte("bc")).Sum()
	assert.NotEqual(t, h1, h2)

	h3 := New("abc").Sum()
	h4 := New([]byte("abc")).Sum()
	assert.NotEqual(t, h3, h4)
}

func TestHash_Clone(t *testing.T) {
	g := curve.NewBasePoint()
	base := New("prefix")
	clone := base.Clone()
	_ = base.WriteAny(g)
	_ = clone.WriteAny(g)
	assert.Equal(t, base.Sum(), clone.Sum())

	_ = clone.WriteAny(uint64(1))
	assert.NotEqual(t, base.Sum(), clone.Sum())
}
