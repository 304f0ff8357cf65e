package stage

import "github.com/bridgeval/engine/pkg/party"

// Output is an empty stage containing the output of the protocol.
type Output struct {
	*Helper
	Result interface{}
}

// Number implements Stage.
func (r *Output) Number() Number { return r.FinalStageNumber() + 1 }

// Init implements Stage.
func (Output) Init(chan<- *Message) error { return nil }

// ShouldDelay implements Stage.
func (Output) ShouldDelay(Number) bool { return false }

// Process implements Stage.
func (Output) Process(party.Index, Content) Status { return Ignored }

// Finalize implements Stage.
func (r *Output) Finalize() Stage { return r }

// AwaitedParties implements Stage.
func (Output) AwaitedParties() party.IndexSlice { return nil }

// Abort is an empty stage containing a list of parties who misbehaved.
type Abort struct {
	*Helper
	Culprits party.IndexSlice
	Err      error
}

// Number implements Stage.
func (r *Abort) Number() Number { return r.FinalStageNumber() + 1 }

// Init implements Stage.
func (Abort) Init(chan<- *Message) error { return nil }

// ShouldDelay implements Stage.
func (Abort) ShouldDelay(Number) bool { return false }

// Process implements Stage.
func (Abort) Process(party.Index, Content) Status { return Ignored }

// Finalize implements Stage.
func (r *Abort) Finalize() Stage { return r }

// AwaitedParties implements Stage.
func (Abort) AwaitedParties() party.IndexSlice { return nil }

// IsTerminal returns true if s is an *Output or an *Abort.
func IsTerminal(s Stage) bool {
	switch s.(type) {
	case *Output, *Abort:
		return true
	}
	return false
}
