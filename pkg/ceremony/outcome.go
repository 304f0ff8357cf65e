package ceremony

import (
	"sort"

	"github.com/bridgeval/engine/pkg/party"
	"github.com/bridgeval/engine/protocols/keygen"
	"github.com/bridgeval/engine/protocols/sign"
)

// Outcome is the final result of a ceremony, delivered exactly once.
type Outcome struct {
	CeremonyID uint64
	Kind       Kind

	// KeyShare is set when a key generation succeeded.
	KeyShare *keygen.KeyShare
	// Signature is set when a signing succeeded.
	Signature *sign.Signature

	// Blamed are the sorted accounts held responsible for a failure.
	Blamed []party.AccountID
	// Err describes the failure, and is nil on success.
	Err error
}

// Success returns true if the ceremony produced a result.
func (o *Outcome) Success() bool {
	return o.Err == nil
}

func sortAccounts(ids []party.AccountID) []party.AccountID {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	return ids
}
