package sign

import (
	"crypto/rand"
	"errors"

	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/pkg/hash"
	"github.com/bridgeval/engine/pkg/math/curve"
	"github.com/bridgeval/engine/pkg/math/sample"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/bridgeval/engine/pkg/pool"
	zksch "github.com/bridgeval/engine/pkg/zk/sch"
	"github.com/bridgeval/engine/protocols/keygen"
)

// ErrInvalidNonce is returned when no valid nonce commitment of a signer was received by anyone.
var ErrInvalidNonce = errors.New("sign: invalid nonce commitment")

// stage0 samples two nonces and broadcasts signed commitments to them.
type stage0 struct {
	*stage.Helper
	*stage.Collector

	key     *keygen.KeyShare
	message []byte

	// d = dᵢ, e = eᵢ are the nonces of this signer.
	d, e *curve.Scalar
	// own is the signed commitment to our nonces.
	own *message0
}

type message0 struct {
	// D is the first commitment produced by the sender of this message.
	D *curve.Point
	// E is the second commitment produced by the sender of this message.
	E *curve.Point
	// Sig is the sender's signature over D and E, under its public key share.
	Sig *zksch.Proof
}

// StageNumber implements stage.Content.
func (message0) StageNumber() stage.Number { return 0 }

// Init implements stage.Stage.
func (s *stage0) Init(out chan<- *stage.Message) error {
	var D, E *curve.Point
	s.d, D = sample.ScalarPointPair(rand.Reader)
	s.e, E = sample.ScalarPointPair(rand.Reader)
	self := s.SelfIndex()
	sig := zksch.NewProof(rand.Reader, s.commitmentHash(self, D, E), s.key.PublicShares[self], s.key.SecretShare)
	s.own = &message0{D: D, E: E, Sig: sig}
	return s.BroadcastMessage(out, s.own)
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
// Commitments are not used yet: the ones which are well formed and signed by
// their sender are echoed to every signer in the next stage. Invalid ones are
// dropped, since another signer may have received a valid one.
func (s *stage0) Finalize() stage.Stage {
	senders := s.Expected()
	valid := pool.Map(s.Pool, len(senders), func(i int) bool {
		content, _ := s.Received(senders[i])
		return s.validCommitment(senders[i], content.(*message0))
	})

	commitments := map[party.Index]*message0{s.SelfIndex(): s.own}
	for i, l := range senders {
		if valid[i] {
			content, _ := s.Received(l)
			commitments[l] = content.(*message0)
		}
	}

	return &stage1{
		stage0:      s,
		Collector:   stage.NewCollector(1, s.OtherParties()),
		commitments: commitments,
	}
}

// commitmentHash returns the hash state over which signer l signs its nonce commitments.
func (s *stage0) commitmentHash(l party.Index, D, E *curve.Point) *hash.Hash {
	h := s.HashForIndex(l)
	_ = h.WriteAny(D, E)
	return h
}

// validCommitment checks that both points are set and not the identity, and that
// l signed them with its key share.
func (s *stage0) validCommitment(l party.Index, msg *message0) bool {
	if msg == nil || msg.D == nil || msg.E == nil || msg.D.IsIdentity() || msg.E.IsIdentity() {
		return false
	}
	public, ok := s.key.PublicShares[l]
	if !ok {
		return false
	}
	return msg.Sig.Verify(s.commitmentHash(l, msg.D, msg.E), public)
}
