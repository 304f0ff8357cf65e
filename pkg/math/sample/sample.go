package sample

import (
	"fmt"
	"io"

	"github.com/bridgeval/engine/pkg/math/curve"
	"github.com/cronokirby/saferith"
)

const maxIterations = 255

var ErrMaxIterations = fmt.Errorf("sample: failed to generate after %d iterations", maxIterations)

func mustReadBits(rand io.Reader, buf []byte) {
	for i := 0; i < maxIterations; i++ {
		if _, err := io.ReadFull(rand, buf); err == nil {
			return
		}
	}
	panic(ErrMaxIterations)
}

// Scalar returns a new *curve.Scalar by reading bytes from rand.
//
// rand may be a hash digest, in which case the result is deterministic.
func Scalar(rand io.Reader) *curve.Scalar {
	buffer := make([]byte, curve.SafeScalarBytes)
	mustReadBits(rand, buffer)
	n := new(saferith.Nat).SetBytes(buffer)
	return curve.NewScalar().SetNat(n)
}

// ScalarUnit returns a new non-zero *curve.Scalar by reading bytes from rand.
func ScalarUnit(rand io.Reader) *curve.Scalar {
	for i := 0; i < maxIterations; i++ {
		s := Scalar(rand)
		if !s.IsZero() {
			return s
		}
	}
	panic(ErrMaxIterations)
}

// ScalarPointPair returns a new non-zero scalar s together with s⋅G.
func ScalarPointPair(rand io.Reader) (*curve.Scalar, *curve.Point) {
	s := ScalarUnit(rand)
	return s, s.ActOnBase()
}
