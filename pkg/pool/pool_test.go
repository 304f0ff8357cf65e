package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelize(t *testing.T) {
	square := func(i int) interface{} { return i * i }

	for _, p := range []*Pool{nil, NewPool(0), NewPool(3)} {
		results := p.Parallelize(50, square)
		for i, r := range results {
			assert.Equal(t, i*i, r)
		}
		p.TearDown()
	}
}

func TestTearDown_Twice(t *testing.T) {
	p := NewPool(2)
	p.TearDown()
	assert.NotPanics(t, p.TearDown)
}

func TestMap(t *testing.T) {
	p := NewPool(4)
	defer p.TearDown()
	even := Map(p, 10, func(i int) bool { return i%2 == 0 })
	assert.Len(t, even, 10)
	for i, e := range even {
		assert.Equal(t, i%2 == 0, e)
	}
	assert.Empty(t, Map[int](nil, 0, func(i int) int { return i }))
}
