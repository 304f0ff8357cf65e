package ceremony

import (
	"context"
	"time"

	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/bridgeval/engine/protocols/keygen"
	"github.com/bridgeval/engine/protocols/sign"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	// ErrExpired is the failure of a ceremony which was never authorized before its deadline.
	ErrExpired = errors.New("ceremony: expired before authorization")
	// ErrTimeout is the failure of a ceremony whose current stage did not complete in time.
	ErrTimeout = errors.New("ceremony: stage timed out")
)

type delayedMessage struct {
	from    party.AccountID
	content stage.Content
}

// reportFunc receives the outcome of a ceremony. Its error is returned to the caller
// of the operation which finished the ceremony.
type reportFunc func(ctx context.Context, o *Outcome) error

// State drives a single ceremony through its stages.
//
// A State is created unauthorized, by the first peer message for its id, or
// directly by authorization. All methods must be called from a single task.
type State struct {
	id   uint64
	kind Kind
	// opener is the peer whose message created the state, if it was created unauthorized.
	opener party.AccountID

	stageDuration time.Duration
	expireAt      time.Time
	authorizedAt  time.Time

	// set by authorize
	current      stage.Stage
	vmap         *party.ValidatorMap
	participants party.IndexSlice
	sender       *PeerSender

	// delayed holds every message while unauthorized, and afterwards the
	// messages for a later stage than the current one.
	delayed []delayedMessage
	done    bool

	report  reportFunc
	clock   func() time.Time
	metrics *Metrics
	log     zerolog.Logger
}

func newState(id uint64, kind Kind, clock func() time.Time, stageDuration time.Duration, report reportFunc, metrics *Metrics, logger zerolog.Logger) *State {
	return &State{
		id:            id,
		kind:          kind,
		stageDuration: stageDuration,
		expireAt:      clock().Add(stageDuration),
		clock:         clock,
		report:        report,
		metrics:       metrics,
		log:           logger.With().Uint64("ceremony_id", id).Stringer("kind", kind).Logger(),
	}
}

// Authorized returns true once the state chain has authorized this ceremony.
func (s *State) Authorized() bool { return s.current != nil }

// Terminal returns true once the outcome has been delivered.
func (s *State) Terminal() bool { return s.done }

// ExpireAt is the current deadline of the ceremony.
func (s *State) ExpireAt() time.Time { return s.expireAt }

// Stage returns the number of the current stage, or false if unauthorized.
func (s *State) Stage() (stage.Number, bool) {
	if s.current == nil {
		return 0, false
	}
	return s.current.Number(), true
}

func (s *State) stageLog() *zerolog.Logger {
	l := s.log
	if s.current != nil {
		l = l.With().Uint8("stage", uint8(s.current.Number())).Logger()
	}
	return &l
}

// authorize starts the first stage and replays the messages received so far.
func (s *State) authorize(ctx context.Context, now time.Time, first stage.Stage, vmap *party.ValidatorMap, participants party.IndexSlice, sender *PeerSender) error {
	s.expireAt = now.Add(s.stageDuration)
	s.authorizedAt = now
	s.current = first
	s.vmap = vmap
	s.participants = participants
	s.sender = sender
	s.stageLog().Info().Int("participants", len(participants)).Int("delayed", len(s.delayed)).Msg("ceremony authorized")

	if err := s.initStage(); err != nil {
		return s.fail(ctx, err, nil)
	}
	s.replayDelayed()
	return s.advance(ctx)
}

// ProcessMessage handles a decoded stage message from a peer.
func (s *State) ProcessMessage(ctx context.Context, from party.AccountID, content stage.Content) error {
	if s.done {
		s.metrics.drop("terminal")
		s.log.Debug().Str("from", from.Short()).Msg("dropping message for finished ceremony")
		return nil
	}
	if !s.Authorized() {
		s.delayed = append(s.delayed, delayedMessage{from: from, content: content})
		s.log.Debug().Str("from", from.Short()).Uint8("msg_stage", uint8(content.StageNumber())).Msg("queued message before authorization")
		return nil
	}
	s.process(from, content)
	return s.advance(ctx)
}

// process hands the message to the current stage, or queues it for a later one.
func (s *State) process(from party.AccountID, content stage.Content) {
	idx, ok := s.vmap.IndexOf(from)
	if !ok || !s.participants.Contains(idx) {
		s.metrics.drop("non_participant")
		s.stageLog().Debug().Str("from", from.Short()).Msg("dropping message from non participant")
		return
	}
	if s.current.ShouldDelay(content.StageNumber()) {
		s.delayed = append(s.delayed, delayedMessage{from: from, content: content})
		return
	}
	if status := s.current.Process(idx, content); status == stage.Ignored {
		s.metrics.drop("ignored")
		s.stageLog().Debug().Stringer("from", idx).Uint8("msg_stage", uint8(content.StageNumber())).Msg("message ignored by stage")
	}
}

func (s *State) replayDelayed() {
	queued := s.delayed
	s.delayed = nil
	for _, m := range queued {
		s.process(m.from, m.content)
	}
}

// initStage emits the outgoing messages of the current stage.
func (s *State) initStage() error {
	out := make(chan *stage.Message, 2*len(s.participants)+1)
	err := s.current.Init(out)
	close(out)
	for msg := range out {
		s.sender.Send(msg)
	}
	return err
}

// advance finalizes stages for as long as the current one awaits no one.
func (s *State) advance(ctx context.Context) error {
	for !s.done && len(s.current.AwaitedParties()) == 0 {
		next := s.current.Finalize()
		s.current = next
		switch r := next.(type) {
		case *stage.Output:
			return s.succeed(ctx, r.Result)
		case *stage.Abort:
			return s.fail(ctx, r.Err, s.vmap.IDsOf(r.Culprits))
		}

		// slack left from the previous stage carries over
		s.expireAt = s.expireAt.Add(s.stageDuration)
		s.stageLog().Debug().Time("expire_at", s.expireAt).Msg("stage started")
		if err := s.initStage(); err != nil {
			return s.fail(ctx, err, nil)
		}
		s.replayDelayed()
	}
	return nil
}

// Tick fails the ceremony if now is past its deadline.
func (s *State) Tick(ctx context.Context, now time.Time) error {
	if s.done || now.Before(s.expireAt) {
		return nil
	}
	if !s.Authorized() {
		seen := make(map[party.AccountID]struct{}, len(s.delayed))
		var blamed []party.AccountID
		for _, m := range s.delayed {
			if _, ok := seen[m.from]; !ok {
				seen[m.from] = struct{}{}
				blamed = append(blamed, m.from)
			}
		}
		return s.fail(ctx, ErrExpired, blamed)
	}
	awaited := s.current.AwaitedParties()
	s.stageLog().Warn().Int("awaited", len(awaited)).Msg("stage timed out")
	return s.fail(ctx, ErrTimeout, s.vmap.IDsOf(awaited))
}

func (s *State) succeed(ctx context.Context, result interface{}) error {
	o := &Outcome{CeremonyID: s.id, Kind: s.kind}
	switch r := result.(type) {
	case *keygen.KeyShare:
		o.KeyShare = r
	case *sign.Signature:
		o.Signature = r
	default:
		return s.fail(ctx, errors.Errorf("ceremony: unexpected result %T", result), nil)
	}
	s.log.Info().Msg("ceremony succeeded")
	return s.finish(ctx, o)
}

func (s *State) fail(ctx context.Context, err error, blamed []party.AccountID) error {
	o := &Outcome{
		CeremonyID: s.id,
		Kind:       s.kind,
		Blamed:     sortAccounts(blamed),
		Err:        err,
	}
	culprits := make([]string, len(o.Blamed))
	for i, id := range o.Blamed {
		culprits[i] = id.Short()
	}
	s.log.Warn().Err(err).Strs("blamed", culprits).Msg("ceremony failed")
	return s.finish(ctx, o)
}

func (s *State) finish(ctx context.Context, o *Outcome) error {
	s.done = true
	s.delayed = nil
	var elapsed time.Duration
	if !s.authorizedAt.IsZero() {
		elapsed = s.clock().Sub(s.authorizedAt)
	}
	s.metrics.outcome(o, elapsed)
	return s.report(ctx, o)
}
