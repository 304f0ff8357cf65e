package keystore

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/bridgeval/engine/protocols/keygen"
)

// MemoryStore is a Store which keeps encoded shares in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, share *keygen.KeyShare) error {
	data, err := encodeShare(share)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[string(share.PublicKeyBytes())] = data
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, publicKey []byte) (*keygen.KeyShare, error) {
	s.mu.RLock()
	data, ok := s.records[string(publicKey)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeShare(data)
}

// List implements Store.
func (s *MemoryStore) List(context.Context) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([][]byte, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, []byte(k))
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return keys, nil
}
