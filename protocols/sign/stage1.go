package sign

import (
	"errors"

	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/pkg/math/curve"
	"github.com/bridgeval/engine/pkg/math/polynomial"
	"github.com/bridgeval/engine/pkg/math/sample"
	"github.com/bridgeval/engine/pkg/party"
)

// ErrInconsistentNonce is returned when a signer signed two different nonce commitments.
var ErrInconsistentNonce = errors.New("sign: nonce commitment was not consistently broadcast")

// stage1 echoes the signed commitments received in stage 0, so that every
// signer agrees on them before computing its response.
type stage1 struct {
	*stage0
	*stage.Collector

	// commitments[l] is the valid commitment we received from l, our own included.
	commitments map[party.Index]*message0
}

type message1 struct {
	// Commitments contains every valid commitment received in stage 0.
	Commitments map[party.Index]*message0
}

// StageNumber implements stage.Content.
func (message1) StageNumber() stage.Number { return 1 }

// Init implements stage.Stage.
func (s *stage1) Init(out chan<- *stage.Message) error {
	return s.BroadcastMessage(out, &message1{Commitments: s.commitments})
}

// Process implements stage.Stage.
func (s *stage1) Process(from party.Index, content stage.Content) stage.Status {
	if _, ok := content.(*message1); !ok {
		return stage.Ignored
	}
	return s.Collector.Process(from, content)
}

// Finalize implements stage.Stage.
//
// For every signer l, the candidates are the valid commitments of l we received
// directly or through the echo of another signer. l's echo of itself is ignored.
// Two different candidates prove that l equivocated, and no candidate means that
// l sent nothing valid to anyone; in both cases l is blamed.
//
// With B = {(l, Dₗ, Eₗ)}, each signer then computes
//
//	ρₗ = H(ctx, m, B, l), Rₗ = Dₗ + ρₗ⋅Eₗ, R = ∑ₗ Rₗ, c = H(R, Y, m)
//
// and its response zᵢ = dᵢ + eᵢ⋅ρᵢ + λᵢ⋅sᵢ⋅c.
func (s *stage1) Finalize() stage.Stage {
	echoes := make(map[party.Index]map[party.Index]*message0, s.N())
	for _, k := range s.Expected() {
		content, _ := s.Received(k)
		echoes[k] = content.(*message1).Commitments
	}

	D := make(map[party.Index]*curve.Point, s.N())
	E := make(map[party.Index]*curve.Point, s.N())
	var missing, equivocated []party.Index
	for _, l := range s.Parties() {
		candidates := s.candidates(l, echoes)
		switch len(candidates) {
		case 0:
			missing = append(missing, l)
		case 1:
			D[l], E[l] = candidates[0].D, candidates[0].E
		default:
			equivocated = append(equivocated, l)
		}
	}
	if len(equivocated) > 0 {
		return s.AbortStage(ErrInconsistentNonce, equivocated...)
	}
	if len(missing) > 0 {
		return s.AbortStage(ErrInvalidNonce, missing...)
	}

	// The message and public key are part of the ceremony hash.
	commitmentHash := s.Hash()
	for _, l := range s.Parties() {
		_ = commitmentHash.WriteAny(l, D[l], E[l])
	}

	rho := make(map[party.Index]*curve.Scalar, s.N())
	R := make(map[party.Index]*curve.Point, s.N())
	RSum := curve.NewIdentityPoint()
	for _, l := range s.Parties() {
		h := commitmentHash.Clone()
		_ = h.WriteAny(l)
		rho[l] = sample.Scalar(h.Digest())
		R[l] = rho[l].Act(E[l]).Add(D[l])
		RSum = RSum.Add(R[l])
	}
	c := challenge(RSum, s.key.PublicKey, s.message)
	lambda := polynomial.Lagrange(s.Parties())

	// zᵢ = dᵢ + eᵢ⋅ρᵢ + λᵢ⋅sᵢ⋅c
	self := s.SelfIndex()
	z := lambda[self].Clone().Mul(s.key.SecretShare).Mul(c)
	z.Add(s.e.Clone().Mul(rho[self])).Add(s.d)

	return &stage2{
		stage1:    s,
		Collector: stage.NewCollector(2, s.OtherParties()),
		R:         R,
		RSum:      RSum,
		c:         c,
		lambda:    lambda,
		z:         z,
	}
}

// candidates returns the distinct valid commitments of l known to us.
func (s *stage1) candidates(l party.Index, echoes map[party.Index]map[party.Index]*message0) []*message0 {
	var found []*message0
	add := func(msg *message0) {
		for _, other := range found {
			if other.D.Equal(msg.D) && other.E.Equal(msg.E) {
				return
			}
		}
		found = append(found, msg)
	}

	if own, ok := s.commitments[l]; ok {
		add(own)
	}
	for k, echo := range echoes {
		if k == l {
			continue
		}
		if msg, ok := echo[l]; ok && s.validCommitment(l, msg) {
			add(msg)
		}
	}
	return found
}
