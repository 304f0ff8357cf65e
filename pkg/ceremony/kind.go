package ceremony

import (
	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/protocols/keygen"
	"github.com/bridgeval/engine/protocols/sign"
)

// Kind is the protocol run by a ceremony. Its value is the protocol tag of peer frames.
type Kind uint8

const (
	// Keygen is a distributed key generation.
	Keygen Kind = 0
	// Signing is a threshold signature.
	Signing Kind = 1
)

// Valid returns true if k is a known protocol.
func (k Kind) Valid() bool {
	return k == Keygen || k == Signing
}

func (k Kind) String() string {
	switch k {
	case Keygen:
		return "keygen"
	case Signing:
		return "signing"
	default:
		return "unknown"
	}
}

// contentFactory selects the stage payloads of the protocol.
func (k Kind) contentFactory() stage.ContentFactory {
	switch k {
	case Keygen:
		return keygen.ContentFactory
	case Signing:
		return sign.ContentFactory
	default:
		return func(stage.Number) (stage.Content, bool) { return nil, false }
	}
}
