package sign

import (
	"io"

	"github.com/bridgeval/engine/pkg/hash"
	"github.com/bridgeval/engine/pkg/math/curve"
	"github.com/bridgeval/engine/pkg/math/sample"
)

// messageHash is a wrapper around bytes to provide some domain separation
type messageHash []byte

// WriteTo makes messageHash implement the io.WriterTo interface.
func (m messageHash) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(m)
	return int64(n), err
}

// Domain implements WriterToWithDomain, and separates this type within hash.Hash.
func (messageHash) Domain() string {
	return "messageHash"
}

// Signature represents the result of a Schnorr signature.
//
// This signature claims to satisfy:
//
//	Z⋅G = R + H(R, Y, m)⋅Y
//
// for a public key Y.
type Signature struct {
	// R is the commitment point.
	R *curve.Point
	// Z is the response scalar.
	Z *curve.Scalar
}

// challenge computes c = H(R, Y, m).
func challenge(R, public *curve.Point, m []byte) *curve.Scalar {
	return sample.Scalar(hash.New(R, public, messageHash(m)).Digest())
}

// Verify checks if a signature equation actually holds.
func (sig *Signature) Verify(public *curve.Point, m []byte) bool {
	if sig == nil || sig.R == nil || sig.Z == nil || public == nil {
		return false
	}
	if sig.R.IsIdentity() || public.IsIdentity() {
		return false
	}
	expected := challenge(sig.R, public, m).Act(public).Add(sig.R)
	actual := sig.Z.ActOnBase()
	return expected.Equal(actual)
}

// MarshalBinary returns R in compressed form followed by Z.
func (sig *Signature) MarshalBinary() ([]byte, error) {
	r, err := sig.R.MarshalBinary()
	if err != nil {
		return nil, err
	}
	z, err := sig.Z.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(r, z...), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (sig *Signature) UnmarshalBinary(data []byte) error {
	if len(data) != curve.PointBytes+curve.ScalarBytes {
		return io.ErrUnexpectedEOF
	}
	R, Z := curve.NewIdentityPoint(), curve.NewScalar()
	if err := R.UnmarshalBinary(data[:curve.PointBytes]); err != nil {
		return err
	}
	if err := Z.UnmarshalBinary(data[curve.PointBytes:]); err != nil {
		return err
	}
	sig.R, sig.Z = R, Z
	return nil
}
