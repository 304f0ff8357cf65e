package p2p

import (
	"crypto/rand"
	"os"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/pkg/errors"
)

// LoadIdentity reads the libp2p private key at path, creating it if the file does not exist.
func LoadIdentity(path string) (crypto.PrivKey, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		key, _, err := crypto.GenerateEd25519Key(rand.Reader)
		if err != nil {
			return nil, errors.Wrap(err, "p2p: generate identity")
		}
		data, err := crypto.MarshalPrivateKey(key)
		if err != nil {
			return nil, errors.Wrap(err, "p2p: marshal identity")
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return nil, errors.Wrap(err, "p2p: write identity")
		}
		return key, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "p2p: read identity")
	}
	key, err := crypto.UnmarshalPrivateKey(data)
	if err != nil {
		return nil, errors.Wrapf(err, "p2p: parse identity %s", path)
	}
	return key, nil
}
