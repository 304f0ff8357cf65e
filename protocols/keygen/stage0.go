package keygen

import (
	"crypto/rand"
	"errors"

	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/pkg/hash"
	"github.com/bridgeval/engine/pkg/math/curve"
	"github.com/bridgeval/engine/pkg/math/polynomial"
	"github.com/bridgeval/engine/pkg/math/sample"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/bridgeval/engine/pkg/pool"
	zksch "github.com/bridgeval/engine/pkg/zk/sch"
)

// ErrInvalidCommitment is returned when a participant's polynomial commitment is malformed
// or not accompanied by a valid proof of knowledge of its constant term.
var ErrInvalidCommitment = errors.New("keygen: invalid commitment")

// stage0 samples a polynomial of degree t and broadcasts a commitment to it.
type stage0 struct {
	*stage.Helper
	*stage.Collector

	params Params

	// poly is the polynomial this participant uses to share its contribution to the secret.
	poly *polynomial.Polynomial
	// ownPhi is the commitment to poly.
	ownPhi *polynomial.Exponent
}

type message0 struct {
	// Phi is the commitment to the polynomial of the sender.
	Phi *polynomial.Exponent
	// Sigma proves knowledge of the constant term of that polynomial.
	Sigma *zksch.Proof
}

// StageNumber implements stage.Content.
func (message0) StageNumber() stage.Number { return 0 }

// Init implements stage.Stage.
func (s *stage0) Init(out chan<- *stage.Message) error {
	// aᵢ₀ ← ℤₙ, fᵢ(X) = aᵢ₀ + aᵢ₁X + … + aᵢₜXᵗ
	secret := sample.ScalarUnit(rand.Reader)
	s.poly = polynomial.NewPolynomial(rand.Reader, s.params.T, secret)
	s.ownPhi = polynomial.NewPolynomialExponent(s.poly)

	sigma := zksch.NewProof(rand.Reader, s.HashForIndex(s.SelfIndex()), s.ownPhi.Constant(), secret)
	return s.BroadcastMessage(out, &message0{Phi: s.ownPhi, Sigma: sigma})
}

// Process implements stage.Stage.
func (s *stage0) Process(from party.Index, content stage.Content) stage.Status {
	if _, ok := content.(*message0); !ok {
		return stage.Ignored
	}
	return s.Collector.Process(from, content)
}

// Finalize implements stage.Stage.
//
// Every commitment must have degree t, contain no identity coefficient, and come with a
// valid proof of knowledge of its constant term. Otherwise the sender is blamed.
func (s *stage0) Finalize() stage.Stage {
	senders := s.Expected()
	valid := pool.Map(s.Pool, len(senders), func(i int) bool {
		j := senders[i]
		content, _ := s.Received(j)
		msg := content.(*message0)
		if err := msg.Phi.Validate(s.params.T); err != nil {
			return false
		}
		return msg.Sigma.Verify(s.HashForIndex(j), msg.Phi.Constant())
	})

	var culprits []party.Index
	phi := map[party.Index]*polynomial.Exponent{s.SelfIndex(): s.ownPhi}
	for i, j := range senders {
		if !valid[i] {
			culprits = append(culprits, j)
			continue
		}
		content, _ := s.Received(j)
		phi[j] = content.(*message0).Phi
	}
	if len(culprits) > 0 {
		return s.AbortStage(ErrInvalidCommitment, culprits...)
	}

	digests := make(map[party.Index][]byte, len(phi))
	for j, p := range phi {
		digests[j] = s.commitmentDigest(j, p)
	}

	return &stage1{
		stage0:    s,
		Collector: stage.NewCollector(1, s.OtherParties()),
		phi:       phi,
		digests:   digests,
	}
}

// commitmentDigest binds the commitment of j to this ceremony, so that participants
// can compare what they received from j.
func (s *stage0) commitmentDigest(j party.Index, phi *polynomial.Exponent) []byte {
	h := s.HashForIndex(j)
	_ = h.WriteAny(phi)
	return h.Sum()
}

// shareHash returns the hash state over which dealer signs the share sent to recipient.
//
// The signature is a proof of knowledge of the dealer's constant term, so that
// a recipient can later show the share to everyone without it being disputed.
func (s *stage0) shareHash(dealer, recipient party.Index, share *curve.Scalar) *hash.Hash {
	h := s.HashForIndex(dealer)
	_ = h.WriteAny(recipient, share)
	return h
}
