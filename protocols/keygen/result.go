package keygen

import (
	"errors"
	"fmt"

	"github.com/bridgeval/engine/pkg/math/curve"
	"github.com/bridgeval/engine/pkg/party"
)

// KeyShare contains all the information produced after key generation, from the perspective
// of a single participant.
type KeyShare struct {
	// PublicKey is the aggregate public key of the validator set.
	//
	// This key can be used to verify signatures produced by any t+1 validators.
	PublicKey *curve.Point
	// SecretShare is the fraction of the secret key owned by this participant.
	SecretShare *curve.Scalar
	// Index is the position of this participant in ValidatorMap.
	Index party.Index
	// PublicShares maps every index to a commitment to its secret share.
	//
	// This will later be used to find signers whose signature share is inconsistent.
	PublicShares map[party.Index]*curve.Point
	// ValidatorMap is the map the key was generated with.
	ValidatorMap *party.ValidatorMap
	// Params are the sharing parameters.
	Params Params
}

// PublicKeyBytes returns the compressed aggregate public key, which identifies this key.
func (k *KeyShare) PublicKeyBytes() []byte {
	data, _ := k.PublicKey.MarshalBinary()
	return data
}

// Validate checks that the share is consistent with its public data.
func (k *KeyShare) Validate() error {
	if k.PublicKey == nil || k.SecretShare == nil || k.ValidatorMap == nil {
		return errors.New("keygen.KeyShare: missing fields")
	}
	if err := k.Params.Validate(); err != nil {
		return err
	}
	if k.Params.N != k.ValidatorMap.Size() || len(k.PublicShares) != k.Params.N {
		return fmt.Errorf("keygen.KeyShare: expected %d shares", k.Params.N)
	}
	if k.PublicKey.IsIdentity() {
		return errors.New("keygen.KeyShare: public key is the identity")
	}
	for _, idx := range k.ValidatorMap.Indices() {
		pub, ok := k.PublicShares[idx]
		if !ok || pub == nil || pub.IsIdentity() {
			return fmt.Errorf("keygen.KeyShare: invalid public share for %d", idx)
		}
	}
	own, ok := k.PublicShares[k.Index]
	if !ok || !k.SecretShare.ActOnBase().Equal(own) {
		return errors.New("keygen.KeyShare: secret share does not match its public share")
	}
	return nil
}

// Clone creates a deep clone of this struct, and all the values contained inside.
func (k *KeyShare) Clone() *KeyShare {
	publicShares := make(map[party.Index]*curve.Point, len(k.PublicShares))
	for idx, p := range k.PublicShares {
		publicShares[idx] = curve.NewIdentityPoint().Set(p)
	}
	return &KeyShare{
		PublicKey:    curve.NewIdentityPoint().Set(k.PublicKey),
		SecretShare:  k.SecretShare.Clone(),
		Index:        k.Index,
		PublicShares: publicShares,
		ValidatorMap: k.ValidatorMap,
		Params:       k.Params,
	}
}
