// Package ceremony runs the key generation and signing ceremonies requested by the state chain.
package ceremony

import (
	"context"
	"time"

	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/internal/wire"
	"github.com/bridgeval/engine/pkg/keystore"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/bridgeval/engine/pkg/pool"
	"github.com/bridgeval/engine/protocols/keygen"
	"github.com/bridgeval/engine/protocols/sign"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultStageDuration is the time allowed for each stage.
	DefaultStageDuration = 15 * time.Second
	// DefaultTerminalCacheSize is the number of finished ceremony ids remembered.
	DefaultTerminalCacheSize = 4096
	// DefaultMaxUnauthorizedPerPeer is the number of unauthorized ceremonies a single
	// peer may open with its messages.
	DefaultMaxUnauthorizedPerPeer = 16
)

var (
	// ErrCeremonyTerminal is returned when authorizing a ceremony which already finished.
	ErrCeremonyTerminal = errors.New("ceremony: already finished")
	// ErrAlreadyAuthorized is returned when authorizing a ceremony twice.
	ErrAlreadyAuthorized = errors.New("ceremony: already authorized")
	// ErrNotParticipant is returned when this validator is not part of a requested ceremony.
	ErrNotParticipant = errors.New("ceremony: not a participant")
	// ErrUnknownKind is returned for requests of an unknown protocol.
	ErrUnknownKind = errors.New("ceremony: unknown kind")
	// ErrPersistence wraps key store failures, which must stop the engine.
	ErrPersistence = errors.New("ceremony: failed to persist key share")
)

// Reporter submits ceremony outcomes to the state chain.
//
// On success the result is the public key or signature bytes and blamed is empty.
// On failure the result is nil and blamed is sorted.
type Reporter interface {
	ReportKeygenOutcome(ctx context.Context, ceremonyID uint64, publicKey []byte, blamed []party.AccountID) error
	ReportSigningOutcome(ctx context.Context, ceremonyID uint64, signature []byte, blamed []party.AccountID) error
}

// Request is an authorization from the state chain.
type Request struct {
	CeremonyID   uint64
	Kind         Kind
	Participants []party.AccountID
	// PublicKey selects the key to sign with.
	PublicKey []byte
	// Payload is the message to sign.
	Payload []byte
	// Sink, if set, also receives the outcome.
	Sink func(*Outcome)
}

// InboundFrame is a frame received from a peer.
type InboundFrame struct {
	From  party.AccountID
	Frame []byte
}

// Config holds the collaborators of a Manager.
type Config struct {
	Self              party.AccountID
	StageDuration     time.Duration
	TerminalCacheSize int
	// MaxUnauthorizedPerPeer bounds the ceremonies opened by the messages of one
	// peer before the state chain authorizes them.
	MaxUnauthorizedPerPeer int
	// OutboxSize is the number of outcomes which may wait for the Reporter while Run is active.
	OutboxSize int

	Transport Transport
	Keys      keystore.Store
	Reporter  Reporter

	// Pool is optional, and parallelizes verification inside stages.
	Pool *pool.Pool
	// Metrics is optional.
	Metrics *Metrics
	Logger  zerolog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Manager owns the registry of ceremonies.
//
// It is not safe for concurrent use: Run serializes all calls on one goroutine,
// and tests may call the methods directly.
type Manager struct {
	self            party.AccountID
	stageDuration   time.Duration
	maxUnauthorized int
	outboxSize      int

	transport Transport
	keys      keystore.Store
	reporter  Reporter
	pool      *pool.Pool
	metrics   *Metrics
	clock     func() time.Time
	log       zerolog.Logger

	registry map[uint64]*State
	terminal *lru.Cache[uint64, Kind]
	sinks    map[uint64]func(*Outcome)
	// outbox is set while Run is active.
	outbox *outbox
}

// NewManager returns a Manager with an empty registry.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Transport == nil || cfg.Keys == nil || cfg.Reporter == nil {
		return nil, errors.New("ceremony: transport, key store and reporter are required")
	}
	if cfg.StageDuration <= 0 {
		cfg.StageDuration = DefaultStageDuration
	}
	if cfg.TerminalCacheSize <= 0 {
		cfg.TerminalCacheSize = DefaultTerminalCacheSize
	}
	if cfg.MaxUnauthorizedPerPeer <= 0 {
		cfg.MaxUnauthorizedPerPeer = DefaultMaxUnauthorizedPerPeer
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = DefaultOutboxSize
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	terminal, err := lru.New[uint64, Kind](cfg.TerminalCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "ceremony: terminal cache")
	}
	return &Manager{
		self:            cfg.Self,
		stageDuration:   cfg.StageDuration,
		maxUnauthorized: cfg.MaxUnauthorizedPerPeer,
		outboxSize:      cfg.OutboxSize,
		transport:       cfg.Transport,
		keys:            cfg.Keys,
		reporter:        cfg.Reporter,
		pool:            cfg.Pool,
		metrics:         cfg.Metrics,
		clock:           cfg.Clock,
		log:             cfg.Logger.With().Str("component", "ceremony").Logger(),
		registry:        make(map[uint64]*State),
		terminal:        terminal,
		sinks:           make(map[uint64]func(*Outcome)),
	}, nil
}

// OnAuthorize creates or upgrades the state of an authorized ceremony, and starts its first stage.
//
// Rejections leave the registry unchanged. A returned error wrapping ErrPersistence
// is fatal, any other is a rejection of the request.
func (m *Manager) OnAuthorize(ctx context.Context, req Request) error {
	if !req.Kind.Valid() {
		return ErrUnknownKind
	}
	if m.terminal.Contains(req.CeremonyID) {
		return ErrCeremonyTerminal
	}
	state := m.registry[req.CeremonyID]
	if state != nil && state.Terminal() {
		return ErrCeremonyTerminal
	}
	if state != nil && state.Authorized() {
		return ErrAlreadyAuthorized
	}

	first, vmap, participants, err := m.firstStage(ctx, req)
	if err != nil {
		return err
	}

	if state != nil && state.kind != req.Kind {
		m.log.Warn().Uint64("ceremony_id", req.CeremonyID).Stringer("queued_kind", state.kind).Msg("discarding messages queued for another protocol")
		state = nil
	}
	if state == nil {
		state = newState(req.CeremonyID, req.Kind, m.clock, m.stageDuration, m.OnOutcome, m.metrics, m.log)
		m.registry[req.CeremonyID] = state
		m.metrics.setLive(len(m.registry))
	}
	if req.Sink != nil {
		m.sinks[req.CeremonyID] = req.Sink
	}
	m.metrics.authorized(req.Kind)

	self, _ := vmap.IndexOf(m.self)
	sender := NewPeerSender(m.transport, req.CeremonyID, req.Kind, vmap, participants, self, m.metrics, state.log)
	return state.authorize(ctx, m.clock(), first, vmap, participants, sender)
}

// firstStage validates a request and creates the first stage of its protocol.
func (m *Manager) firstStage(ctx context.Context, req Request) (stage.Stage, *party.ValidatorMap, party.IndexSlice, error) {
	switch req.Kind {
	case Keygen:
		vmap, err := party.NewValidatorMap(req.Participants)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "ceremony: keygen participants")
		}
		if _, ok := vmap.IndexOf(m.self); !ok {
			return nil, nil, nil, ErrNotParticipant
		}
		first, err := keygen.Start(req.CeremonyID, vmap, m.self, m.pool)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "ceremony: start keygen")
		}
		return first, vmap, vmap.Indices(), nil

	case Signing:
		key, err := m.keys.Get(ctx, req.PublicKey)
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "ceremony: key %s", keystore.KeyName(req.PublicKey))
		}
		signers, err := key.ValidatorMap.IndicesOf(req.Participants)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "ceremony: signers")
		}
		if !signers.Contains(key.Index) {
			return nil, nil, nil, ErrNotParticipant
		}
		first, err := sign.Start(req.CeremonyID, key, signers, req.Payload, m.pool)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "ceremony: start signing")
		}
		return first, key.ValidatorMap, signers, nil
	}
	return nil, nil, nil, ErrUnknownKind
}

// OnPeerMessage decodes a frame from a peer and hands it to its ceremony.
//
// Malformed frames are dropped, as are frames which would open more unauthorized
// ceremonies for their sender than MaxUnauthorizedPerPeer. The returned error is
// only set for failures which must stop the engine.
func (m *Manager) OnPeerMessage(ctx context.Context, from party.AccountID, data []byte) error {
	var frame wire.Frame
	if err := frame.UnmarshalBinary(data); err != nil {
		m.metrics.drop("malformed_frame")
		m.log.Warn().Err(err).Str("from", from.Short()).Msg("dropping malformed frame")
		return nil
	}
	kind := Kind(frame.Tag)
	if !kind.Valid() {
		m.metrics.drop("unknown_protocol")
		m.log.Warn().Uint8("tag", frame.Tag).Str("from", from.Short()).Msg("dropping frame with unknown protocol tag")
		return nil
	}
	if m.terminal.Contains(frame.CeremonyID) {
		m.metrics.drop("terminal")
		m.log.Debug().Uint64("ceremony_id", frame.CeremonyID).Msg("dropping frame for finished ceremony")
		return nil
	}
	content, err := stage.Decode(frame.Body, kind.contentFactory())
	if err != nil {
		m.metrics.drop("malformed_body")
		m.log.Warn().Err(err).Uint64("ceremony_id", frame.CeremonyID).Str("from", from.Short()).Msg("dropping undecodable stage message")
		return nil
	}

	state, ok := m.registry[frame.CeremonyID]
	if !ok {
		if m.unauthorizedBy(from) >= m.maxUnauthorized {
			m.metrics.drop("unauthorized_limit")
			m.log.Warn().Uint64("ceremony_id", frame.CeremonyID).Str("from", from.Short()).Msg("dropping frame, too many unauthorized ceremonies opened by peer")
			return nil
		}
		state = newState(frame.CeremonyID, kind, m.clock, m.stageDuration, m.OnOutcome, m.metrics, m.log)
		state.opener = from
		m.registry[frame.CeremonyID] = state
		m.metrics.setLive(len(m.registry))
	}
	if state.kind != kind {
		m.metrics.drop("kind_mismatch")
		m.log.Warn().Uint64("ceremony_id", frame.CeremonyID).Stringer("kind", kind).Msg("dropping frame for a ceremony of another protocol")
		return nil
	}
	return state.ProcessMessage(ctx, from, content)
}

// unauthorizedBy counts the live unauthorized ceremonies opened by a message of peer.
func (m *Manager) unauthorizedBy(peer party.AccountID) int {
	count := 0
	for _, state := range m.registry {
		if state.opener == peer && !state.Authorized() && !state.Terminal() {
			count++
		}
	}
	return count
}

// Tick expires overdue ceremonies and removes finished ones from the registry.
func (m *Manager) Tick(ctx context.Context, now time.Time) error {
	var firstErr error
	for id, state := range m.registry {
		if !state.Terminal() {
			if err := state.Tick(ctx, now); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if state.Terminal() {
			delete(m.registry, id)
		}
	}
	m.metrics.setLive(len(m.registry))
	return firstErr
}

// OnOutcome records a finished ceremony and submits its outcome.
//
// A generated key is persisted before its success is reported: if it cannot
// be stored, nothing is reported and an error wrapping ErrPersistence is returned.
// While Run is active, the outcome is queued for the Reporter and OnOutcome only
// blocks when OutboxSize outcomes are already waiting. Otherwise the Reporter is
// called directly.
func (m *Manager) OnOutcome(ctx context.Context, o *Outcome) error {
	m.terminal.Add(o.CeremonyID, o.Kind)
	sink := m.sinks[o.CeremonyID]
	delete(m.sinks, o.CeremonyID)
	log := m.log.With().Uint64("ceremony_id", o.CeremonyID).Stringer("kind", o.Kind).Logger()

	if o.Kind == Keygen && o.Success() {
		if err := m.keys.Put(ctx, o.KeyShare); err != nil {
			log.Error().Err(err).Msg("failed to persist key share, not reporting success")
			return errors.Wrapf(ErrPersistence, "ceremony %d: %v", o.CeremonyID, err)
		}
	}

	if m.outbox != nil {
		if err := m.outbox.enqueue(ctx, submission{outcome: o, sink: sink}); err != nil {
			log.Warn().Err(err).Msg("outcome not reported before shutdown")
		}
		return nil
	}
	submit(ctx, m.reporter, o, m.log)
	if sink != nil {
		sink(o)
	}
	return nil
}

// IsTerminal returns true if the ceremony has delivered its outcome.
func (m *Manager) IsTerminal(id uint64) bool {
	if m.terminal.Contains(id) {
		return true
	}
	state, ok := m.registry[id]
	return ok && state.Terminal()
}

// State returns the registered state of a ceremony.
func (m *Manager) State(id uint64) (*State, bool) {
	state, ok := m.registry[id]
	return state, ok
}

// Live returns the number of registered ceremonies.
func (m *Manager) Live() int {
	return len(m.registry)
}

// Run serializes inbound frames, authorization requests and expiry ticks on
// the calling goroutine until ctx is done or a fatal error occurs. Outcomes are
// reported from a second goroutine, which Run waits for before returning.
func (m *Manager) Run(ctx context.Context, inbound <-chan InboundFrame, requests <-chan Request, tickInterval time.Duration) error {
	out := newOutbox(m.reporter, m.outboxSize, m.log)
	m.outbox = out
	defer func() { m.outbox = nil }()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.run(ctx)
		return nil
	})
	g.Go(func() error {
		defer out.close()
		return m.loop(ctx, inbound, requests, tickInterval)
	})
	return g.Wait()
}

func (m *Manager) loop(ctx context.Context, inbound <-chan InboundFrame, requests <-chan Request, tickInterval time.Duration) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return nil
		case in := <-inbound:
			err = m.OnPeerMessage(ctx, in.From, in.Frame)
		case req := <-requests:
			if err = m.OnAuthorize(ctx, req); err != nil && !errors.Is(err, ErrPersistence) {
				m.log.Warn().Err(err).Uint64("ceremony_id", req.CeremonyID).Stringer("kind", req.Kind).Msg("authorization rejected")
				err = nil
			}
		case <-ticker.C:
			err = m.Tick(ctx, m.clock())
		}
		if err != nil {
			return err
		}
	}
}
