package keygen

import (
	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/pkg/math/curve"
	"github.com/bridgeval/engine/pkg/party"
	zksch "github.com/bridgeval/engine/pkg/zk/sch"
)

// Complaint reveals a share which did not match the dealer's commitment.
type Complaint struct {
	// Dealer is the index of the party who sent the share.
	Dealer party.Index
	// Share is the share the complainer received.
	Share *curve.Scalar
	// Sig is the dealer's signature over Share.
	Sig *zksch.Proof
}

// stage2 broadcasts our complaints.
type stage2 struct {
	*stage1
	*stage.Collector

	// shares[j] = fⱼ(i), for every dealer j whose share was correct.
	shares map[party.Index]*curve.Scalar
	// complaints are the ones we raised.
	complaints []Complaint
}

type message2 struct {
	Complaints []Complaint
}

// StageNumber implements stage.Content.
func (message2) StageNumber() stage.Number { return 2 }

// Init implements stage.Stage.
func (s *stage2) Init(out chan<- *stage.Message) error {
	return s.BroadcastMessage(out, &message2{Complaints: s.complaints})
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
// Complaints are not resolved yet: every participant first echoes the lists it
// received, so that all of them resolve the same ones.
func (s *stage2) Finalize() stage.Stage {
	lists := make(map[party.Index][]Complaint, s.N())
	lists[s.SelfIndex()] = s.complaints
	for _, j := range s.Expected() {
		content, _ := s.Received(j)
		lists[j] = content.(*message2).Complaints
	}
	return &stage3{
		stage2:    s,
		Collector: stage.NewCollector(3, s.OtherParties()),
		lists:     lists,
	}
}
