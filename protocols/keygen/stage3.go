package keygen

import (
	"errors"

	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/pkg/math/curve"
	"github.com/bridgeval/engine/pkg/math/polynomial"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/bridgeval/engine/pkg/pool"
	"github.com/fxamacker/cbor/v2"
)

var (
	// ErrInconsistentComplaints is returned when participants could not agree on the complaints of a party.
	ErrInconsistentComplaints = errors.New("keygen: complaints were not consistently broadcast")
	// ErrComplaint is returned when a complaint blamed either the dealer or the complainer.
	ErrComplaint = errors.New("keygen: complaint resolution blamed a participant")
	// ErrInconsistentShare is returned when our aggregated share does not match the public key shares.
	ErrInconsistentShare = errors.New("keygen: aggregated share does not match its commitment")
)

// stage3 echoes every complaint list received in stage 2, resolves the agreed
// complaints, and aggregates the key.
type stage3 struct {
	*stage2
	*stage.Collector

	// lists[j] is the complaint list we received from j, our own included.
	lists map[party.Index][]Complaint
}

type message3 struct {
	// Echo contains the complaint list received from every participant.
	Echo map[party.Index][]Complaint
}

// StageNumber implements stage.Content.
func (message3) StageNumber() stage.Number { return 3 }

// Init implements stage.Stage.
func (s *stage3) Init(out chan<- *stage.Message) error {
	return s.BroadcastMessage(out, &message3{Echo: s.lists})
}

// Process implements stage.Stage.
func (s *stage3) Process(from party.Index, content stage.Content) stage.Status {
	if _, ok := content.(*message3); !ok {
		return stage.Ignored
	}
	return s.Collector.Process(from, content)
}

// Finalize implements stage.Stage.
//
// The complaint list of each party is the one echoed by a strict majority of
// participants. A party whose list reaches no majority is blamed. The agreed
// complaints are then resolved with the same rule by every participant, and any
// blame aborts the key generation. Otherwise, the aggregate public key and
// every party's public share are computed from the commitments.
func (s *stage3) Finalize() stage.Stage {
	agreed, culprits := s.agreedLists()
	if len(culprits) > 0 {
		return s.AbortStage(ErrInconsistentComplaints, culprits...)
	}

	blamed := make(map[party.Index]struct{})
	for _, j := range s.Parties() {
		s.resolve(j, agreed[j], blamed)
	}
	if len(blamed) > 0 {
		culprits := make([]party.Index, 0, len(blamed))
		for j := range blamed {
			culprits = append(culprits, j)
		}
		return s.AbortStage(ErrComplaint, culprits...)
	}

	return s.aggregate()
}

// agreedLists applies the majority rule to the complaint lists echoed for every party.
// Lists are compared by their encoding. Echoers contradicting the majority are not
// blamed, since every participant continues with the adopted list.
func (s *stage3) agreedLists() (map[party.Index][]Complaint, []party.Index) {
	echoes := make(map[party.Index]map[party.Index][]Complaint, s.N())
	echoes[s.SelfIndex()] = s.lists
	for _, k := range s.Expected() {
		content, _ := s.Received(k)
		echoes[k] = content.(*message3).Echo
	}

	agreed := make(map[party.Index][]Complaint, s.N())
	var culprits []party.Index
	for _, j := range s.Parties() {
		reports := make(map[party.Index][]byte, s.N())
		decoded := make(map[string][]Complaint, 1)
		for k, echo := range echoes {
			list, ok := echo[j]
			if !ok {
				continue
			}
			encoded, err := encodeComplaints(list)
			if err != nil {
				continue
			}
			reports[k] = encoded
			decoded[string(encoded)] = list
		}
		value, _, ok := stage.Majority(reports, s.N())
		if !ok {
			culprits = append(culprits, j)
			continue
		}
		agreed[j] = decoded[string(value)]
	}
	return agreed, culprits
}

func encodeComplaints(list []Complaint) ([]byte, error) {
	if len(list) == 0 {
		list = nil
	}
	return cbor.Marshal(list)
}

// resolve applies the complaint rule to every complaint raised by complainer:
//
//   - a complaint against itself, a non participant, or an already accused dealer blames the complainer,
//   - a share which was not signed by the dealer blames the complainer,
//   - a signed share which matches the dealer's commitment blames the complainer,
//   - a signed share which does not match blames the dealer.
func (s *stage3) resolve(complainer party.Index, complaints []Complaint, blamed map[party.Index]struct{}) {
	accused := make(map[party.Index]struct{}, len(complaints))
	for _, c := range complaints {
		_, duplicate := accused[c.Dealer]
		accused[c.Dealer] = struct{}{}
		if c.Dealer == complainer || !s.Parties().Contains(c.Dealer) || duplicate || c.Share == nil {
			blamed[complainer] = struct{}{}
			continue
		}
		phi := s.phi[c.Dealer]
		if !c.Sig.Verify(s.shareHash(c.Dealer, complainer, c.Share), phi.Constant()) {
			blamed[complainer] = struct{}{}
			continue
		}
		if c.Share.ActOnBase().Equal(phi.Evaluate(complainer.Scalar())) {
			blamed[complainer] = struct{}{}
			continue
		}
		blamed[c.Dealer] = struct{}{}
	}
}

// aggregate computes
//
//	Y = ∑ⱼ Φⱼ(0), Yₗ = ∑ⱼ Φⱼ(l), sᵢ = ∑ⱼ fⱼ(i)
//
// and checks that sᵢ⋅G = Yᵢ.
func (s *stage3) aggregate() stage.Stage {
	parties := s.Parties()
	exponents := make([]*polynomial.Exponent, 0, len(parties))
	for _, j := range parties {
		exponents = append(exponents, s.phi[j])
	}
	summed, err := polynomial.Sum(exponents)
	if err != nil {
		return s.AbortStage(err)
	}

	evaluated := pool.Map(s.Pool, len(parties), func(i int) *curve.Point {
		return summed.Evaluate(parties[i].Scalar())
	})
	publicShares := make(map[party.Index]*curve.Point, len(parties))
	for i, l := range parties {
		publicShares[l] = evaluated[i]
	}

	secret := curve.NewScalar()
	for _, j := range parties {
		share, ok := s.shares[j]
		if !ok {
			return s.AbortStage(ErrInconsistentShare)
		}
		secret.Add(share)
	}
	if !secret.ActOnBase().Equal(publicShares[s.SelfIndex()]) {
		return s.AbortStage(ErrInconsistentShare)
	}

	return s.ResultStage(&KeyShare{
		PublicKey:    summed.Constant(),
		SecretShare:  secret,
		Index:        s.SelfIndex(),
		PublicShares: publicShares,
		ValidatorMap: s.ValidatorMap(),
		Params:       s.params,
	})
}
