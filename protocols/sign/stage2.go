package sign

import (
	"errors"

	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/pkg/math/curve"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/bridgeval/engine/pkg/pool"
)

var (
	// ErrInvalidResponse is returned when a signer's response is inconsistent with its commitments.
	ErrInvalidResponse = errors.New("sign: invalid signature share")
	// ErrInvalidSignature is returned when the aggregate signature does not verify, but no signer could be blamed.
	ErrInvalidSignature = errors.New("sign: aggregate signature is invalid")
)

// stage2 broadcasts our response, and aggregates everybody's into the signature.
type stage2 struct {
	*stage1
	*stage.Collector

	// R[l] = Rₗ = Dₗ + ρₗ⋅Eₗ
	R map[party.Index]*curve.Point
	// RSum = R = ∑ₗ Rₗ
	RSum *curve.Point
	// c = H(R, Y, m)
	c *curve.Scalar
	// lambda[l] is the Lagrange coefficient of l over the signers.
	lambda map[party.Index]*curve.Scalar
	// z = zᵢ is our own response.
	z *curve.Scalar
}

type message2 struct {
	// Z is the response of the sender.
	Z *curve.Scalar
}

// StageNumber implements stage.Content.
func (message2) StageNumber() stage.Number { return 2 }

// Init implements stage.Stage.
func (s *stage2) Init(out chan<- *stage.Message) error {
	return s.BroadcastMessage(out, &message2{Z: s.z})
}

// Process implements stage.Stage.
func (s *stage2) Process(from party.Index, content stage.Content) stage.Status {
	if _, ok := content.(*message2); !ok {
		return stage.Ignored
	}
	return s.Collector.Process(from, content)
}

// Finalize implements stage.Stage.
//
// The responses are summed into z, and (R, z) is verified under the aggregate key.
// If it does not verify, each response is checked against
//
//	zₗ⋅G = Rₗ + c⋅λₗ⋅Yₗ
//
// and every signer whose response fails is blamed.
func (s *stage2) Finalize() stage.Stage {
	z := map[party.Index]*curve.Scalar{s.SelfIndex(): s.z}
	var culprits []party.Index
	for _, l := range s.Expected() {
		content, _ := s.Received(l)
		msg := content.(*message2)
		if msg.Z == nil {
			culprits = append(culprits, l)
			continue
		}
		z[l] = msg.Z
	}
	if len(culprits) > 0 {
		return s.AbortStage(ErrInvalidResponse, culprits...)
	}

	zSum := curve.NewScalar()
	for _, l := range s.Parties() {
		zSum.Add(z[l])
	}
	sig := &Signature{R: s.RSum, Z: zSum}
	if sig.Verify(s.key.PublicKey, s.message) {
		return s.ResultStage(sig)
	}

	signers := s.Parties()
	consistent := pool.Map(s.Pool, len(signers), func(i int) bool {
		l := signers[i]
		expected := s.lambda[l].Clone().Mul(s.c).Act(s.key.PublicShares[l]).Add(s.R[l])
		return z[l].ActOnBase().Equal(expected)
	})
	for i, l := range signers {
		if !consistent[i] {
			culprits = append(culprits, l)
		}
	}
	if len(culprits) == 0 {
		return s.AbortStage(ErrInvalidSignature)
	}
	return s.AbortStage(ErrInvalidResponse, culprits...)
}
