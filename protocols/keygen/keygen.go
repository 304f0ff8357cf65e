package keygen

import (
	"fmt"

	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/bridgeval/engine/pkg/pool"
)

const (
	// Pedersen DKG with public complaints, over secp256k1.
	protocolID = "bridgeval/dkg-secp256k1"
	// This protocol has 4 stages that exchange messages, numbered 0 to 3.
	finalStage stage.Number = 3
)

// These assert that our stages implement the stage.Stage interface.
var (
	_ stage.Stage = (*stage0)(nil)
	_ stage.Stage = (*stage1)(nil)
	_ stage.Stage = (*stage2)(nil)
	_ stage.Stage = (*stage3)(nil)
)

// Threshold returns the degree of the sharing polynomial for a set of n validators.
//
// This is the network rule t = ⌊2n/3⌋, and t + 1 signers are needed to sign.
func Threshold(n int) int {
	return (n * 2) / 3
}

// Params are the sharing parameters of a key.
type Params struct {
	// N is the number of shares.
	N int
	// T is the degree of the sharing polynomial.
	T int
}

// NewParams returns the parameters used for a key shared among n validators.
func NewParams(n int) Params {
	return Params{N: n, T: Threshold(n)}
}

// Validate checks that p respects the network threshold rule.
func (p Params) Validate() error {
	if p.N < 1 {
		return fmt.Errorf("keygen: invalid share count %d", p.N)
	}
	if p.T != Threshold(p.N) {
		return fmt.Errorf("keygen: threshold %d does not match %d for %d shares", p.T, Threshold(p.N), p.N)
	}
	return nil
}

// Start returns the first stage of a key generation among every validator in vmap.
//
// The returned stage must be driven by the caller: Init, then Process for each
// incoming message, and Finalize once every awaited party has contributed.
func Start(ceremonyID uint64, vmap *party.ValidatorMap, self party.AccountID, pl *pool.Pool) (stage.Stage, error) {
	if vmap == nil {
		return nil, fmt.Errorf("keygen.Start: missing validator map")
	}
	selfIndex, err := vmap.OwnIndex(self)
	if err != nil {
		return nil, fmt.Errorf("keygen.Start: %w", err)
	}
	params := NewParams(vmap.Size())

	helper, err := stage.NewHelper(stage.Info{
		ProtocolID:       protocolID,
		FinalStageNumber: finalStage,
		CeremonyID:       ceremonyID,
		SelfIndex:        selfIndex,
		Parties:          vmap.Indices(),
		ValidatorMap:     vmap,
		Threshold:        params.T,
	}, pl)
	if err != nil {
		return nil, fmt.Errorf("keygen.Start: %w", err)
	}

	return &stage0{
		Helper:    helper,
		Collector: stage.NewCollector(0, helper.OtherParties()),
		params:    params,
	}, nil
}

// ContentFactory returns an empty message for the given stage of a key generation.
func ContentFactory(n stage.Number) (stage.Content, bool) {
	switch n {
	case 0:
		return &message0{}, true
	case 1:
		return &message1{}, true
	case 2:
		return &message2{}, true
	case 3:
		return &message3{}, true
	default:
		return nil, false
	}
}
