package stage

import "github.com/bridgeval/engine/pkg/party"

// Content is the payload of a single stage message.
//
// Each protocol defines one Content type per stage, which together form a
// closed set selected by the stage number.
type Content interface {
	StageNumber() Number
}

// Message is an outgoing or decoded incoming stage message.
type Message struct {
	From party.Index
	// To is the recipient of a unicast message, and 0 for a broadcast.
	To      party.Index
	Content Content
}

// IsBroadcast returns true if the message is meant for every other participant.
func (m *Message) IsBroadcast() bool {
	return m.To == 0
}

// IsFor returns true if the message is intended for the designated party.
func (m *Message) IsFor(idx party.Index) bool {
	if m.From == idx {
		return false
	}
	return m.To == 0 || m.To == idx
}
