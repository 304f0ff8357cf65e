package stage_test

import (
	"testing"

	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/stretchr/testify/assert"
)

func TestMajority(t *testing.T) {
	a, b := []byte("a"), []byte("b")

	value, dissenters, ok := stage.Majority(map[party.Index][]byte{1: a, 2: a, 3: b}, 3)
	assert.True(t, ok)
	assert.Equal(t, a, value)
	assert.Equal(t, party.IndexSlice{3}, dissenters)

	value, dissenters, ok = stage.Majority(map[party.Index][]byte{1: a, 2: a, 3: a, 4: a}, 4)
	assert.True(t, ok)
	assert.Equal(t, a, value)
	assert.Empty(t, dissenters)

	_, _, ok = stage.Majority(map[party.Index][]byte{1: a, 2: b}, 2)
	assert.False(t, ok, "a tie has no majority")

	_, _, ok = stage.Majority(map[party.Index][]byte{1: a, 2: a}, 4)
	assert.False(t, ok, "missing reports do not vote")

	value, dissenters, ok = stage.Majority(map[party.Index][]byte{1: a, 2: a, 3: nil, 5: a}, 5)
	assert.True(t, ok)
	assert.Equal(t, a, value)
	assert.Equal(t, party.IndexSlice{3}, dissenters)
}
