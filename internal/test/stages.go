package test

import (
	"fmt"

	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/pkg/party"
)

// Interceptor may inspect, replace or drop (by returning nil) a message before
// it is delivered to the party to. It is called once per recipient with a copy
// of the message, so a broadcast may be altered for some recipients only.
type Interceptor func(msg *stage.Message, to party.Index) *stage.Message

type pending struct {
	from    party.Index
	content stage.Content
}

// RunStages drives the stages of every party until no more progress is possible.
//
// Every message goes through stage.Encode and stage.Decode, so the wire codec is
// exercised as well. Messages for a later stage are held back until the
// recipient reaches that stage. The returned map contains the last stage of
// each party, which is an *stage.Output or *stage.Abort if the party finished.
func RunStages(stages map[party.Index]stage.Stage, factory stage.ContentFactory, intercept Interceptor) (map[party.Index]stage.Stage, error) {
	n := len(stages)
	var queue []*stage.Message
	delayed := make(map[party.Index][]pending, n)

	initStage := func(s stage.Stage) error {
		out := make(chan *stage.Message, 2*n)
		if err := s.Init(out); err != nil {
			return err
		}
		close(out)
		for msg := range out {
			queue = append(queue, msg)
		}
		return nil
	}

	for _, s := range stages {
		if err := initStage(s); err != nil {
			return nil, err
		}
	}

	for {
		progressed := false

		for len(queue) > 0 {
			msg := queue[0]
			queue = queue[1:]
			for idx, s := range stages {
				if !msg.IsFor(idx) {
					continue
				}
				delivered := msg
				if intercept != nil {
					copied := *msg
					if delivered = intercept(&copied, idx); delivered == nil {
						continue
					}
				}
				data, err := stage.Encode(delivered.Content)
				if err != nil {
					return nil, err
				}
				content, err := stage.Decode(data, factory)
				if err != nil {
					return nil, fmt.Errorf("party %d: %w", idx, err)
				}
				if s.ShouldDelay(content.StageNumber()) {
					delayed[idx] = append(delayed[idx], pending{from: delivered.From, content: content})
					continue
				}
				s.Process(delivered.From, content)
			}
			progressed = true
		}

		for idx, s := range stages {
			if stage.IsTerminal(s) || len(s.AwaitedParties()) > 0 {
				continue
			}
			next := s.Finalize()
			stages[idx] = next
			progressed = true
			if stage.IsTerminal(next) {
				continue
			}
			if err := initStage(next); err != nil {
				return nil, err
			}
			replay := delayed[idx]
			delayed[idx] = nil
			for _, p := range replay {
				if next.ShouldDelay(p.content.StageNumber()) {
					delayed[idx] = append(delayed[idx], p)
					continue
				}
				next.Process(p.from, p.content)
			}
		}

		if !progressed {
			return stages, nil
		}
	}
}
