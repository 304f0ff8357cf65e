package stage

import "github.com/bridgeval/engine/pkg/party"

type Info struct {
	// ProtocolID is an identifier for this protocol
	ProtocolID string
	// FinalStageNumber is the number of the last stage that exchanges messages.
	FinalStageNumber Number
	// CeremonyID is the identifier assigned by the state chain.
	CeremonyID uint64
	// SelfIndex is this party's index.
	SelfIndex party.Index
	// Parties are the indices taking part in this ceremony. For signing this
	// is a subset of the indices of ValidatorMap.
	Parties []party.Index
	// ValidatorMap resolves indices to accounts.
	ValidatorMap *party.ValidatorMap
	// Threshold is the degree of the sharing polynomial.
	Threshold int
}
