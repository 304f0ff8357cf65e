// Package keystore persists the key shares produced by key generation.
package keystore

import (
	"context"
	"encoding/hex"

	"github.com/bridgeval/engine/protocols/keygen"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when no share is stored under a public key.
var ErrNotFound = errors.New("keystore: key not found")

// Store keeps key shares indexed by their aggregate public key.
//
// Put must be durable when it returns: a share acknowledged by Put survives a crash.
type Store interface {
	Put(ctx context.Context, share *keygen.KeyShare) error
	Get(ctx context.Context, publicKey []byte) (*keygen.KeyShare, error)
	List(ctx context.Context) ([][]byte, error)
}

func encodeShare(share *keygen.KeyShare) ([]byte, error) {
	if share == nil {
		return nil, errors.New("keystore: nil share")
	}
	if err := share.Validate(); err != nil {
		return nil, errors.Wrap(err, "keystore: refusing to store invalid share")
	}
	data, err := cbor.Marshal(share)
	if err != nil {
		return nil, errors.Wrap(err, "keystore: encode share")
	}
	return data, nil
}

func decodeShare(data []byte) (*keygen.KeyShare, error) {
	share := new(keygen.KeyShare)
	if err := cbor.Unmarshal(data, share); err != nil {
		return nil, errors.Wrap(err, "keystore: decode share")
	}
	if err := share.Validate(); err != nil {
		return nil, errors.Wrap(err, "keystore: stored share is invalid")
	}
	return share, nil
}

// KeyName returns the hexadecimal name under which a public key is stored.
func KeyName(publicKey []byte) string {
	return hex.EncodeToString(publicKey)
}
