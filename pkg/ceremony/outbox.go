package ceremony

import (
	"context"

	"github.com/rs/zerolog"
)

// DefaultOutboxSize is the number of outcomes which may wait for the Reporter
// before the manager task blocks on the next one.
const DefaultOutboxSize = 256

type submission struct {
	outcome *Outcome
	sink    func(*Outcome)
}

// outbox submits outcomes to the Reporter on its own goroutine, in the order the
// ceremonies finished, so that a slow state chain does not stall the manager task.
type outbox struct {
	reporter Reporter
	jobs     chan submission
	log      zerolog.Logger
}

func newOutbox(reporter Reporter, size int, log zerolog.Logger) *outbox {
	return &outbox{
		reporter: reporter,
		jobs:     make(chan submission, size),
		log:      log,
	}
}

// enqueue blocks only while size outcomes are already waiting.
func (b *outbox) enqueue(ctx context.Context, s submission) error {
	select {
	case b.jobs <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run submits queued outcomes until close is called.
func (b *outbox) run(ctx context.Context) {
	for s := range b.jobs {
		submit(ctx, b.reporter, s.outcome, b.log)
		if s.sink != nil {
			s.sink(s.outcome)
		}
	}
}

func (b *outbox) close() {
	close(b.jobs)
}

// submit reports o to the state chain. Failures are logged and not retried.
func submit(ctx context.Context, reporter Reporter, o *Outcome, log zerolog.Logger) {
	var err error
	switch {
	case o.Kind == Keygen && o.Success():
		err = reporter.ReportKeygenOutcome(ctx, o.CeremonyID, o.KeyShare.PublicKeyBytes(), nil)
	case o.Kind == Keygen:
		err = reporter.ReportKeygenOutcome(ctx, o.CeremonyID, nil, o.Blamed)
	case o.Success():
		var sig []byte
		if sig, err = o.Signature.MarshalBinary(); err == nil {
			err = reporter.ReportSigningOutcome(ctx, o.CeremonyID, sig, nil)
		}
	default:
		err = reporter.ReportSigningOutcome(ctx, o.CeremonyID, nil, o.Blamed)
	}
	if err != nil {
		log.Warn().Err(err).Uint64("ceremony_id", o.CeremonyID).Stringer("kind", o.Kind).Msg("failed to report outcome")
	}
}
