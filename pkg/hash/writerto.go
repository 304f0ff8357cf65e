package hash

import (
	"bytes"
	"encoding/binary"
	"io"
)

// WriterToWithDomain represents a type writing itself, and knowing its domain.
//
// Providing a domain string lets us distinguish the output of different types
// implementing this same interface.
type WriterToWithDomain interface {
	io.WriterTo

	// Domain returns a context string, which should be unique for each implementor
	Domain() string
}

// writeWithDomain writes out a piece of data, using its domain.
//
// The layout is (<domain> <len(data)> <data>), which keeps consecutive items
// from being confused with one another.
func writeWithDomain(w io.Writer, object WriterToWithDomain) error {
	var body bytes.Buffer
	if _, err := object.WriteTo(&body); err != nil {
		return err
	}
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(body.Len()))

	for _, chunk := range [][]byte{[]byte("("), []byte(object.Domain()), length[:], body.Bytes(), []byte(")")} {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}

// BytesWithDomain is a useful wrapper to annotate some chunk of data with a domain.
type BytesWithDomain struct {
	TheDomain string
	Bytes     []byte
}

// WriteTo implements io.WriterTo.
func (b BytesWithDomain) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.Bytes)
	return int64(n), err
}

// Domain implements WriterToWithDomain.
func (b BytesWithDomain) Domain() string {
	return b.TheDomain
}
