package sign

import (
	"errors"
	"fmt"

	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/pkg/hash"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/bridgeval/engine/pkg/pool"
	"github.com/bridgeval/engine/protocols/keygen"
)

const (
	// Frost threshold Schnorr signing over secp256k1.
	protocolID = "bridgeval/sign-secp256k1"
	// This protocol has 3 stages that exchange messages, numbered 0 to 2.
	finalStage stage.Number = 2
)

// These assert that our stages implement the stage.Stage interface.
var (
	_ stage.Stage = (*stage0)(nil)
	_ stage.Stage = (*stage1)(nil)
	_ stage.Stage = (*stage2)(nil)
)

// ErrTooFewSigners is returned when fewer than t+1 signers are requested.
var ErrTooFewSigners = errors.New("sign: not enough signers")

// Start returns the first stage of a signing of message by the given signers.
//
// The signers are indices of the validator map of key, and must include our own index.
func Start(ceremonyID uint64, key *keygen.KeyShare, signers []party.Index, message []byte, pl *pool.Pool) (stage.Stage, error) {
	if key == nil {
		return nil, errors.New("sign.Start: missing key share")
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("sign.Start: %w", err)
	}
	if len(signers) < key.Params.T+1 {
		return nil, fmt.Errorf("sign.Start: %w: %d signers for threshold %d", ErrTooFewSigners, len(signers), key.Params.T)
	}

	helper, err := stage.NewHelper(stage.Info{
		ProtocolID:       protocolID,
		FinalStageNumber: finalStage,
		CeremonyID:       ceremonyID,
		SelfIndex:        key.Index,
		Parties:          signers,
		ValidatorMap:     key.ValidatorMap,
		Threshold:        key.Params.T,
	}, pl, key.PublicKey, &hash.BytesWithDomain{TheDomain: "Message", Bytes: message})
	if err != nil {
		return nil, fmt.Errorf("sign.Start: %w", err)
	}

	return &stage0{
		Helper:    helper,
		Collector: stage.NewCollector(0, helper.OtherParties()),
		key:       key,
		message:   message,
	}, nil
}

// ContentFactory returns an empty message for the given stage of a signing.
func ContentFactory(n stage.Number) (stage.Content, bool) {
	switch n {
	case 0:
		return &message0{}, true
	case 1:
		return &message1{}, true
	case 2:
		return &message2{}, true
	default:
		return nil, false
	}
}

// SelectSigners returns the first t+1 candidates in index order.
func SelectSigners(candidates []party.Index, threshold int) (party.IndexSlice, error) {
	sorted := party.NewIndexSlice(candidates)
	if !sorted.Valid() {
		return nil, errors.New("sign.SelectSigners: invalid candidates")
	}
	if len(sorted) < threshold+1 {
		return nil, fmt.Errorf("sign.SelectSigners: %w: %d candidates for threshold %d", ErrTooFewSigners, len(sorted), threshold)
	}
	return sorted[:threshold+1], nil
}
