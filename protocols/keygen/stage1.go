package keygen

import (
	"crypto/rand"
	"errors"

	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/pkg/math/curve"
	"github.com/bridgeval/engine/pkg/math/polynomial"
	"github.com/bridgeval/engine/pkg/party"
	zksch "github.com/bridgeval/engine/pkg/zk/sch"
)

var (
	// ErrInvalidShareSignature is returned when a dealer did not sign the share it sent.
	ErrInvalidShareSignature = errors.New("keygen: invalid share signature")
	// ErrInconsistentCommitment is returned when participants disagree on the commitment of a dealer.
	// It blames the dealer, or the participants contradicting the majority.
	ErrInconsistentCommitment = errors.New("keygen: commitment was not consistently broadcast")
)

// stage1 sends each participant its share of our polynomial, and checks the shares we receive.
type stage1 struct {
	*stage0
	*stage.Collector

	// phi contains the commitment of every participant, ourselves included.
	phi map[party.Index]*polynomial.Exponent
	// digests[j] is the digest of phi[j], which we echo to every participant.
	digests map[party.Index][]byte

	// ownShare = fᵢ(i)
	ownShare *curve.Scalar
}

type message1 struct {
	// Share = fᵢ(j) for the recipient j.
	Share *curve.Scalar
	// Sig is the dealer's signature over the share and the recipient's index.
	Sig *zksch.Proof
	// Echo contains the digest of every commitment received in stage 0.
	Echo map[party.Index][]byte
}

// StageNumber implements stage.Content.
func (message1) StageNumber() stage.Number { return 1 }

// Init implements stage.Stage.
func (s *stage1) Init(out chan<- *stage.Message) error {
	secret := s.poly.Constant()
	public := s.phi[s.SelfIndex()].Constant()
	for _, j := range s.OtherParties() {
		share := s.poly.Evaluate(j.Scalar())
		sig := zksch.NewProof(rand.Reader, s.shareHash(s.SelfIndex(), j, share), public, secret)
		if err := s.SendMessage(out, &message1{Share: share, Sig: sig, Echo: s.digests}, j); err != nil {
			return err
		}
	}
	s.ownShare = s.poly.Evaluate(s.SelfIndex().Scalar())
	return nil
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
// The echoed commitment digests are checked first: for every dealer, the digest
// reported by a strict majority of participants is adopted, and every participant
// reporting another digest is blamed. A dealer whose digests reach no majority is
// blamed instead. Then a dealer is blamed if it did not sign its share. A signed
// share which does not match the commitment becomes a public complaint in the
// next stage.
func (s *stage1) Finalize() stage.Stage {
	if culprits := s.inconsistentEchoes(); len(culprits) > 0 {
		return s.AbortStage(ErrInconsistentCommitment, culprits...)
	}

	self := s.SelfIndex()
	var culprits []party.Index
	shares := map[party.Index]*curve.Scalar{self: s.ownShare}
	var complaints []Complaint
	for _, j := range s.Expected() {
		content, _ := s.Received(j)
		msg := content.(*message1)
		if msg.Share == nil || !msg.Sig.Verify(s.shareHash(j, self, msg.Share), s.phi[j].Constant()) {
			culprits = append(culprits, j)
			continue
		}
		if !msg.Share.ActOnBase().Equal(s.phi[j].Evaluate(self.Scalar())) {
			complaints = append(complaints, Complaint{Dealer: j, Share: msg.Share, Sig: msg.Sig})
			continue
		}
		shares[j] = msg.Share
	}
	if len(culprits) > 0 {
		return s.AbortStage(ErrInvalidShareSignature, culprits...)
	}

	return &stage2{
		stage1:     s,
		Collector:  stage.NewCollector(2, s.OtherParties()),
		shares:     shares,
		complaints: complaints,
	}
}

// inconsistentEchoes tallies, for every dealer, the digest each participant
// claims to have received, our own included. It returns the participants
// blamed by the majority rule.
func (s *stage1) inconsistentEchoes() []party.Index {
	blamed := make(map[party.Index]struct{})
	for _, dealer := range s.Parties() {
		reports := map[party.Index][]byte{s.SelfIndex(): s.digests[dealer]}
		for _, j := range s.Expected() {
			content, _ := s.Received(j)
			if digest, ok := content.(*message1).Echo[dealer]; ok {
				reports[j] = digest
			}
		}
		_, dissenters, ok := stage.Majority(reports, s.N())
		if !ok {
			blamed[dealer] = struct{}{}
			continue
		}
		for _, j := range dissenters {
			blamed[j] = struct{}{}
		}
	}
	culprits := make([]party.Index, 0, len(blamed))
	for j := range blamed {
		culprits = append(culprits, j)
	}
	return culprits
}
