package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_Layout(t *testing.T) {
	f := &Frame{Tag: 1, CeremonyID: 0x0102030405060708, Body: []byte{0xaa, 0xbb}}
	data, err := f.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		1,
		8, 7, 6, 5, 4, 3, 2, 1,
		2, 0, 0, 0,
		0xaa, 0xbb,
	}, data)

	var decoded Frame
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, *f, decoded)

	data[13] = 0
	assert.Equal(t, byte(0xaa), decoded.Body[0], "body must not alias the input")
}

func TestFrame_Invalid(t *testing.T) {
	var f Frame
	assert.ErrorIs(t, f.UnmarshalBinary([]byte{0, 1, 2}), ErrShortFrame)
	assert.ErrorIs(t, f.UnmarshalBinary([]byte{0, 42, 0, 0, 0, 0, 0, 0, 0, 3, 0, 0, 0, 1}), ErrShortFrame)
	assert.ErrorIs(t, f.UnmarshalBinary([]byte{0, 42, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}), ErrTrailingBytes)
	assert.ErrorIs(t, f.UnmarshalBinary([]byte{0, 42, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}), ErrBodyTooLarge)

	_, err := (&Frame{Body: make([]byte, MaxBodySize+1)}).MarshalBinary()
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	empty, err := (&Frame{CeremonyID: 9}).MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, f.UnmarshalBinary(empty))
	assert.Equal(t, uint64(9), f.CeremonyID)
	assert.Empty(t, f.Body)
}
