package test

import (
	"github.com/bridgeval/engine/pkg/party"
)

// AccountIDs returns n deterministic, sorted accounts.
func AccountIDs(n int) []party.AccountID {
	ids := make([]party.AccountID, n)
	for i := range ids {
		ids[i][0] = byte('a' + i)
		ids[i][31] = byte(i)
	}
	return ids
}

// ValidatorMap returns the map over AccountIDs(n).
func ValidatorMap(n int) *party.ValidatorMap {
	m, err := party.NewValidatorMap(AccountIDs(n))
	if err != nil {
		panic(err)
	}
	return m
}
