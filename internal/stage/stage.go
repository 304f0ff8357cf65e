package stage

import (
	"errors"

	"github.com/bridgeval/engine/pkg/party"
)

var (
	// ErrOutChanFull is returned when the out channel cannot hold all the messages of a stage.
	ErrOutChanFull = errors.New("stage: out channel is full")
	// ErrInvalidContent is returned when a stage receives a payload of the wrong type.
	ErrInvalidContent = errors.New("stage: content is not the right type")
	// ErrNilFields is returned when a payload is missing fields.
	ErrNilFields = errors.New("stage: message contained empty fields")
)

// Status is the result of processing a single message.
type Status int

const (
	// Ignored means the message was not recorded: duplicate, wrong stage or unexpected sender.
	Ignored Status = iota
	// Progress means the message was recorded and more are awaited.
	Progress
	// Complete means every expected message has now been received, and Finalize may be called.
	Complete
)

func (s Status) String() string {
	switch s {
	case Ignored:
		return "ignored"
	case Progress:
		return "progress"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Stage is one synchronous step of a ceremony. It collects one message from each
// expected participant, and is then finalized into the next stage.
//
// Stages never block and never talk to the network: outgoing messages are written
// to the out channel given to Init, and the caller is responsible for delivering them.
type Stage interface {
	// Number is the position of this stage in the protocol.
	Number() Number

	// Init emits this stage's outgoing messages.
	Init(out chan<- *Message) error

	// ShouldDelay returns true if a message for stage n must wait for a later stage.
	ShouldDelay(n Number) bool

	// Process records a message from a participant.
	Process(from party.Index, content Content) Status

	// Finalize is called once Process has returned Complete.
	//
	// It returns the next stage, an *Output holding the result of the protocol,
	// or an *Abort naming the parties responsible for the failure.
	Finalize() Stage

	// AwaitedParties returns the parties from which a message is still expected.
	AwaitedParties() party.IndexSlice
}
