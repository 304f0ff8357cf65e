package stage

import "io"

// Number is the 0-indexed position of a stage within a protocol.
type Number uint8

// WriteTo implements io.WriterTo interface.
func (n Number) WriteTo(w io.Writer) (int64, error) {
	nInt, err := w.Write([]byte{byte(n)})
	return int64(nInt), err
}

// Domain implements hash.WriterToWithDomain, and separates this type within hash.Hash.
func (Number) Domain() string {
	return "Stage Number"
}
