// Package wire encodes the frames exchanged between engines.
//
// A frame is laid out as
//
//	tag u8 | ceremony id u64 (little endian) | body length u32 (little endian) | body
//
// where the tag selects the protocol, and the body is a stage message.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	headerSize = 1 + 8 + 4
	// MaxBodySize bounds the body of a single frame.
	MaxBodySize = 1 << 20
	// MaxFrameSize bounds an encoded frame.
	MaxFrameSize = headerSize + MaxBodySize
)

var (
	// ErrShortFrame is returned when a frame is shorter than its header says.
	ErrShortFrame = errors.New("wire: frame too short")
	// ErrTrailingBytes is returned when a frame is longer than its header says.
	ErrTrailingBytes = errors.New("wire: trailing bytes after body")
	// ErrBodyTooLarge is returned when a body exceeds MaxBodySize.
	ErrBodyTooLarge = errors.New("wire: body too large")
)

// Frame is a stage message addressed to a ceremony.
type Frame struct {
	Tag        uint8
	CeremonyID uint64
	Body       []byte
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (f *Frame) MarshalBinary() ([]byte, error) {
	if len(f.Body) > MaxBodySize {
		return nil, ErrBodyTooLarge
	}
	out := make([]byte, headerSize+len(f.Body))
	out[0] = f.Tag
	binary.LittleEndian.PutUint64(out[1:9], f.CeremonyID)
	binary.LittleEndian.PutUint32(out[9:13], uint32(len(f.Body)))
	copy(out[headerSize:], f.Body)
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
//
// The body of f is a copy, so data may be reused by the caller.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return ErrShortFrame
	}
	length := binary.LittleEndian.Uint32(data[9:13])
	if length > MaxBodySize {
		return ErrBodyTooLarge
	}
	rest := data[headerSize:]
	switch {
	case uint64(len(rest)) < uint64(length):
		return fmt.Errorf("%w: body has %d bytes, expected %d", ErrShortFrame, len(rest), length)
	case uint64(len(rest)) > uint64(length):
		return ErrTrailingBytes
	}
	f.Tag = data[0]
	f.CeremonyID = binary.LittleEndian.Uint64(data[1:9])
	f.Body = append([]byte(nil), rest...)
	return nil
}
