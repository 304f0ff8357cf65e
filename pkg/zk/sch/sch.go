package zksch

import (
	"io"

	"github.com/bridgeval/engine/pkg/hash"
	"github.com/bridgeval/engine/pkg/math/curve"
	"github.com/bridgeval/engine/pkg/math/sample"
)

// Randomness = a ← ℤₙ is the nonce used to prove knowledge of a discrete logarithm.
type Randomness struct {
	a          *curve.Scalar
	commitment *curve.Point
}

// Proof is a non-interactive Schnorr proof of knowledge of x such that X = x⋅G.
//
// The context written into the hash before proving binds the proof to a
// statement, so the same construction serves as a signature over that context.
type Proof struct {
	// C = a⋅G
	C *curve.Point
	// Z = a + e⋅x
	Z *curve.Scalar
}

// NewRandomness creates a new a ∈ ℤₙ and the corresponding commitment C = a⋅G.
func NewRandomness(rand io.Reader) *Randomness {
	a, C := sample.ScalarPointPair(rand)
	return &Randomness{a: a, commitment: C}
}

func challenge(hash *hash.Hash, commitment, public *curve.Point) (*curve.Scalar, error) {
	if err := hash.WriteAny(commitment, public); err != nil {
		return nil, err
	}
	return sample.Scalar(hash.Digest()), nil
}

// Prove creates a Proof = Randomness + H(..., C, X)⋅x (mod n).
func (r *Randomness) Prove(hash *hash.Hash, public *curve.Point, private *curve.Scalar) *Proof {
	if public.IsIdentity() || private.IsZero() {
		return nil
	}
	e, err := challenge(hash, r.commitment, public)
	if err != nil {
		return nil
	}
	z := e.Mul(private).Add(r.a)
	return &Proof{C: r.commitment, Z: z}
}

// NewProof generates a Schnorr proof of knowledge of private, for public = private⋅G.
func NewProof(rand io.Reader, hash *hash.Hash, public *curve.Point, private *curve.Scalar) *Proof {
	return NewRandomness(rand).Prove(hash, public, private)
}

// IsValid checks that the proof is well formed.
func (p *Proof) IsValid() bool {
	if p == nil || p.C == nil || p.Z == nil {
		return false
	}
	return !p.Z.IsZero() && !p.C.IsIdentity()
}

// Verify checks that Z⋅G = C + H(..., C, X)⋅X.
func (p *Proof) Verify(hash *hash.Hash, public *curve.Point) bool {
	if !p.IsValid() || public == nil || public.IsIdentity() {
		return false
	}
	e, err := challenge(hash, p.C, public)
	if err != nil {
		return false
	}
	lhs := p.Z.ActOnBase()
	rhs := e.Act(public).Add(p.C)
	return lhs.Equal(rhs)
}
