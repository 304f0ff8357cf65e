package stage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bridgeval/engine/pkg/hash"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/bridgeval/engine/pkg/pool"
)

// Helper holds everything a stage needs to know about the ceremony it runs in,
// and can be embedded in every stage of a protocol.
type Helper struct {
	info Info

	// Pool allows us to parallelize certain operations
	Pool *pool.Pool

	// parties is a sorted copy of Info.Parties.
	parties party.IndexSlice
	// otherParties is the same as parties without SelfIndex
	otherParties party.IndexSlice

	// ssid the unique identifier for this ceremony
	ssid []byte

	hash *hash.Hash

	mtx sync.Mutex
}

// NewHelper creates a new *Helper which can be embedded in the first Stage.
// `auxInfo` is a variable list of objects which should be included in the session's hash state.
func NewHelper(info Info, pl *pool.Pool, auxInfo ...hash.WriterToWithDomain) (*Helper, error) {
	if info.ValidatorMap == nil {
		return nil, errors.New("stage: missing validator map")
	}
	parties := party.NewIndexSlice(info.Parties)
	if len(parties) == 0 || !parties.Valid() {
		return nil, errors.New("stage: participant indices invalid")
	}
	if int(parties[len(parties)-1]) > info.ValidatorMap.Size() {
		return nil, fmt.Errorf("stage: participant index %d outside validator map", parties[len(parties)-1])
	}

	// verify our index is present
	if !parties.Contains(info.SelfIndex) {
		return nil, errors.New("stage: own index not included in participants")
	}

	// the number of parties satisfies the threshold
	if info.Threshold < 0 || info.Threshold > info.ValidatorMap.Size()-1 {
		return nil, fmt.Errorf("stage: threshold %d is invalid for %d validators", info.Threshold, info.ValidatorMap.Size())
	}

	h := hash.New()
	if err := h.WriteAny(
		&hash.BytesWithDomain{TheDomain: "Protocol ID", Bytes: []byte(info.ProtocolID)},
		info.CeremonyID,
		info.ValidatorMap,
		parties,
		uint64(info.Threshold),
	); err != nil {
		return nil, fmt.Errorf("stage: %w", err)
	}
	for _, a := range auxInfo {
		if a == nil {
			continue
		}
		if err := h.WriteAny(a); err != nil {
			return nil, fmt.Errorf("stage: %w", err)
		}
	}

	return &Helper{
		info:         info,
		Pool:         pl,
		parties:      parties,
		otherParties: parties.Remove(info.SelfIndex),
		ssid:         h.Clone().Sum(),
		hash:         h,
	}, nil
}

// HashForIndex returns a clone of the hash.Hash for this ceremony, initialized with the given index.
func (h *Helper) HashForIndex(idx party.Index) *hash.Hash {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	cloned := h.hash.Clone()
	if idx != 0 {
		_ = cloned.WriteAny(idx)
	}
	return cloned
}

// Hash returns copy of the hash function of this ceremony.
func (h *Helper) Hash() *hash.Hash {
	return h.HashForIndex(0)
}

// BroadcastMessage constructs a Message from the broadcast Content, and sets the header correctly.
// An error is returned if the message cannot be sent to the out channel.
func (h *Helper) BroadcastMessage(out chan<- *Message, content Content) error {
	msg := &Message{
		From:    h.info.SelfIndex,
		Content: content,
	}
	select {
	case out <- msg:
		return nil
	default:
		return ErrOutChanFull
	}
}

// SendMessage is a convenience method for safely sending content to a single party.
// `out` is expected to be a buffered channel with enough capacity to store all messages.
func (h *Helper) SendMessage(out chan<- *Message, content Content, to party.Index) error {
	if to == 0 {
		return errors.New("stage: SendMessage without recipient")
	}
	msg := &Message{
		From:    h.info.SelfIndex,
		To:      to,
		Content: content,
	}
	select {
	case out <- msg:
		return nil
	default:
		return ErrOutChanFull
	}
}

// ResultStage returns a stage that contains only the result of the protocol.
// This indicates to the caller that the protocol is finished.
func (h *Helper) ResultStage(result interface{}) Stage {
	return &Output{
		Helper: h,
		Result: result,
	}
}

// AbortStage returns a stage that contains only the culprits that were identified during
// a faulty execution of the protocol.
func (h *Helper) AbortStage(err error, culprits ...party.Index) Stage {
	return &Abort{
		Helper:   h,
		Culprits: party.NewIndexSlice(culprits),
		Err:      err,
	}
}

// ProtocolID is an identifier for this protocol.
func (h *Helper) ProtocolID() string { return h.info.ProtocolID }

// FinalStageNumber is the number of the last stage that exchanges messages.
func (h *Helper) FinalStageNumber() Number { return h.info.FinalStageNumber }

// CeremonyID is the state chain identifier of this ceremony.
func (h *Helper) CeremonyID() uint64 { return h.info.CeremonyID }

// SSID the unique identifier for this ceremony.
func (h *Helper) SSID() []byte { return h.ssid }

// SelfIndex is this party's index.
func (h *Helper) SelfIndex() party.Index { return h.info.SelfIndex }

// Parties is a sorted slice of participating indices.
func (h *Helper) Parties() party.IndexSlice { return h.parties }

// OtherParties returns a sorted list of parties that does not contain SelfIndex.
func (h *Helper) OtherParties() party.IndexSlice { return h.otherParties }

// ValidatorMap maps the indices of this ceremony to accounts.
func (h *Helper) ValidatorMap() *party.ValidatorMap { return h.info.ValidatorMap }

// Threshold is the degree of the sharing polynomial.
func (h *Helper) Threshold() int { return h.info.Threshold }

// N returns the number of participants.
func (h *Helper) N() int { return len(h.parties) }
