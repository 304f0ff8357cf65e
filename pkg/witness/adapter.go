// Package witness connects the state chain to the ceremony engine: authorization
// events become ceremony requests, and external chain observations become
// attestations.
package witness

import (
	"context"

	"github.com/bridgeval/engine/pkg/ceremony"
	"github.com/bridgeval/engine/pkg/party"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultSeenCacheSize is the number of submitted observations remembered.
const DefaultSeenCacheSize = 1024

// Submitter sends signed extrinsics to the state chain.
type Submitter interface {
	SubmitExtrinsic(ctx context.Context, method string, params ...interface{}) error
}

// Adapter translates state chain events into ceremony requests and external
// chain observations into extrinsics.
type Adapter struct {
	self      party.AccountID
	requests  chan<- ceremony.Request
	submitter Submitter
	seen      *lru.Cache[string, struct{}]
	log       zerolog.Logger
}

// NewAdapter returns an Adapter forwarding requests for self to the manager's request channel.
func NewAdapter(self party.AccountID, requests chan<- ceremony.Request, submitter Submitter, logger zerolog.Logger) (*Adapter, error) {
	seen, err := lru.New[string, struct{}](DefaultSeenCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "witness: seen cache")
	}
	return &Adapter{
		self:      self,
		requests:  requests,
		submitter: submitter,
		seen:      seen,
		log:       logger.With().Str("component", "witness").Logger(),
	}, nil
}

// Request converts an authorization event into a ceremony request.
// It returns false if self does not take part in the ceremony.
func (a *Adapter) Request(ev Event) (ceremony.Request, bool) {
	if !contains(ev.participants(), a.self) {
		return ceremony.Request{}, false
	}
	req := ceremony.Request{
		CeremonyID:   ev.ceremonyID(),
		Participants: append([]party.AccountID(nil), ev.participants()...),
	}
	switch e := ev.(type) {
	case *KeygenRequest:
		req.Kind = ceremony.Keygen
	case *SigningRequest:
		req.Kind = ceremony.Signing
		req.PublicKey = append([]byte(nil), e.PublicKey...)
		req.Payload = append([]byte(nil), e.Payload...)
	default:
		return ceremony.Request{}, false
	}
	return req, true
}

// HandleEvent forwards an authorization event to the manager.
func (a *Adapter) HandleEvent(ctx context.Context, ev Event) error {
	req, ok := a.Request(ev)
	if !ok {
		a.log.Debug().Uint64("ceremony_id", ev.ceremonyID()).Msg("ignoring ceremony without this validator")
		return nil
	}
	select {
	case a.requests <- req:
		a.log.Info().Uint64("ceremony_id", req.CeremonyID).Stringer("kind", req.Kind).Int("participants", len(req.Participants)).Msg("ceremony requested")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Observe submits an attestation for an external chain observation.
//
// Invalid observations are dropped, and an observation is only submitted once.
func (a *Adapter) Observe(ctx context.Context, obs Observation) error {
	if err := obs.Validate(); err != nil {
		a.log.Warn().Err(err).Msg("dropping invalid observation")
		return nil
	}
	key := obs.Key()
	if a.seen.Contains(key) {
		a.log.Debug().Str("observation", key).Msg("observation already submitted")
		return nil
	}
	method, params := obs.Extrinsic()
	if err := a.submitter.SubmitExtrinsic(ctx, method, params...); err != nil {
		return errors.Wrapf(err, "witness: submit %s", method)
	}
	a.seen.Add(key, struct{}{})
	a.log.Info().Str("method", method).Str("observation", key).Msg("observation submitted")
	return nil
}

// Run handles events and observations until ctx is done or a channel is closed.
// Submission failures are logged and do not stop the adapter.
func (a *Adapter) Run(ctx context.Context, events <-chan Event, observations <-chan Observation) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("witness: event stream closed")
			}
			if err := a.HandleEvent(ctx, ev); err != nil {
				return err
			}
		case obs, ok := <-observations:
			if !ok {
				observations = nil
				continue
			}
			if err := a.Observe(ctx, obs); err != nil {
				a.log.Warn().Err(err).Msg("failed to submit observation")
			}
		}
	}
}

func contains(ids []party.AccountID, id party.AccountID) bool {
	for _, other := range ids {
		if other == id {
			return true
		}
	}
	return false
}
