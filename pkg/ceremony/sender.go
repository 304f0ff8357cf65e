package ceremony

import (
	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/internal/wire"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/rs/zerolog"
)

// Transport delivers frames to other validators.
//
// Send must only enqueue the frame without blocking: it is called from the ceremony task.
type Transport interface {
	Send(to party.AccountID, frame []byte) error
}

// PeerSender addresses the stage messages of one ceremony to the participants' accounts.
//
// Transport failures are logged and counted, never returned: a missing message is
// handled by the ceremony's expiry.
type PeerSender struct {
	transport    Transport
	ceremonyID   uint64
	kind         Kind
	vmap         *party.ValidatorMap
	participants party.IndexSlice
	self         party.Index
	metrics      *Metrics
	log          zerolog.Logger
}

// NewPeerSender returns a sender for the messages of a ceremony among participants.
func NewPeerSender(transport Transport, ceremonyID uint64, kind Kind, vmap *party.ValidatorMap, participants party.IndexSlice, self party.Index, metrics *Metrics, logger zerolog.Logger) *PeerSender {
	return &PeerSender{
		transport:    transport,
		ceremonyID:   ceremonyID,
		kind:         kind,
		vmap:         vmap,
		participants: participants,
		self:         self,
		metrics:      metrics,
		log:          logger,
	}
}

// Send delivers msg to its recipient, or to every other participant if it is a broadcast.
func (p *PeerSender) Send(msg *stage.Message) {
	body, err := stage.Encode(msg.Content)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to encode stage message")
		return
	}
	frame, err := (&wire.Frame{Tag: uint8(p.kind), CeremonyID: p.ceremonyID, Body: body}).MarshalBinary()
	if err != nil {
		p.log.Error().Err(err).Msg("failed to encode frame")
		return
	}
	if msg.IsBroadcast() {
		for _, to := range p.participants {
			if to != p.self {
				p.sendTo(to, frame)
			}
		}
		return
	}
	p.sendTo(msg.To, frame)
}

func (p *PeerSender) sendTo(to party.Index, frame []byte) {
	id, ok := p.vmap.IDOf(to)
	if !ok {
		p.log.Warn().Stringer("to", to).Msg("recipient is not in the validator map")
		return
	}
	if err := p.transport.Send(id, frame); err != nil {
		p.metrics.sendFailed(p.kind)
		p.log.Warn().Err(err).Str("to", id.Short()).Msg("failed to send frame")
	}
}
