package keystore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/internal/test"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/bridgeval/engine/protocols/keygen"
	"github.com/bridgeval/engine/protocols/sign"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateShare(t *testing.T, n int) *keygen.KeyShare {
	return generateShares(t, n)[1]
}

func generateShares(t *testing.T, n int) map[party.Index]*keygen.KeyShare {
	vmap := test.ValidatorMap(n)
	stages := make(map[party.Index]stage.Stage, n)
	for _, id := range test.AccountIDs(n) {
		s, err := keygen.Start(1, vmap, id, nil)
		require.NoError(t, err)
		idx, _ := vmap.IndexOf(id)
		stages[idx] = s
	}
	stages, err := test.RunStages(stages, keygen.ContentFactory, nil)
	require.NoError(t, err)
	shares := make(map[party.Index]*keygen.KeyShare, n)
	for idx, s := range stages {
		shares[idx] = s.(*stage.Output).Result.(*keygen.KeyShare)
	}
	return shares
}

func checkRoundTrip(t *testing.T, store Store, share *keygen.KeyShare) {
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, share))

	loaded, err := store.Get(ctx, share.PublicKeyBytes())
	require.NoError(t, err)
	assert.Equal(t, share.PublicKeyBytes(), loaded.PublicKeyBytes())
	assert.True(t, share.SecretShare.Equal(loaded.SecretShare))
	assert.Equal(t, share.Index, loaded.Index)
	assert.True(t, share.ValidatorMap.Equal(loaded.ValidatorMap))
	for idx, p := range share.PublicShares {
		assert.True(t, p.Equal(loaded.PublicShares[idx]))
	}

	_, err = store.Get(ctx, []byte{2, 3})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	share := generateShare(t, 3)
	checkRoundTrip(t, store, share)

	keys, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]byte{share.PublicKeyBytes()}, keys)

	assert.Error(t, store.Put(context.Background(), &keygen.KeyShare{}))
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "", zerolog.Nop())
	require.NoError(t, err)

	a, b := generateShare(t, 3), generateShare(t, 2)
	checkRoundTrip(t, store, a)
	checkRoundTrip(t, store, b)
	// overwriting the same key is allowed
	checkRoundTrip(t, store, a)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "not-hex.key"), []byte("x"), 0o600))
	keys, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, a.PublicKeyBytes())
	assert.Contains(t, keys, b.PublicKeyBytes())

	// a new store over the same directory sees the same records
	reopened, err := NewFileStore(dir, "", zerolog.Nop())
	require.NoError(t, err)
	loaded, err := reopened.Get(context.Background(), a.PublicKeyBytes())
	require.NoError(t, err)
	assert.True(t, a.SecretShare.Equal(loaded.SecretShare))

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temporary files should not remain")
}

func TestFileStore_Corruption(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "", zerolog.Nop())
	require.NoError(t, err)
	share := generateShare(t, 2)
	require.NoError(t, store.Put(context.Background(), share))

	path := filepath.Join(dir, KeyName(share.PublicKeyBytes())+".key")
	record, err := os.ReadFile(path)
	require.NoError(t, err)

	corrupted := append([]byte(nil), record...)
	corrupted[len(corrupted)-1] ^= 1
	require.NoError(t, os.WriteFile(path, corrupted, 0o600))
	_, err = store.Get(context.Background(), share.PublicKeyBytes())
	assert.ErrorIs(t, err, ErrChecksum)

	require.NoError(t, os.WriteFile(path, record[:len(record)-1], 0o600))
	_, err = store.Get(context.Background(), share.PublicKeyBytes())
	assert.Error(t, err)

	badMagic := append([]byte(nil), record...)
	badMagic[0] = 'X'
	require.NoError(t, os.WriteFile(path, badMagic, 0o600))
	_, err = store.Get(context.Background(), share.PublicKeyBytes())
	assert.Error(t, err)
}

func TestFileStore_Sealed(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "correct horse", zerolog.Nop())
	require.NoError(t, err)
	share := generateShare(t, 3)
	checkRoundTrip(t, store, share)

	record, err := os.ReadFile(filepath.Join(dir, KeyName(share.PublicKeyBytes())+".key"))
	require.NoError(t, err)
	assert.Equal(t, flagSealed, uint16(record[7]))

	reopened, err := NewFileStore(dir, "correct horse", zerolog.Nop())
	require.NoError(t, err)
	_, err = reopened.Get(context.Background(), share.PublicKeyBytes())
	require.NoError(t, err)

	wrong, err := NewFileStore(dir, "wrong", zerolog.Nop())
	require.NoError(t, err)
	_, err = wrong.Get(context.Background(), share.PublicKeyBytes())
	assert.Error(t, err)

	plain, err := NewFileStore(dir, "", zerolog.Nop())
	require.NoError(t, err)
	_, err = plain.Get(context.Background(), share.PublicKeyBytes())
	assert.ErrorIs(t, err, ErrSealed)
}

// Shares written by one store and read back by a new one over the same
// directories still produce a valid signature.
func TestFileStore_SignWithReloadedShares(t *testing.T) {
	ctx := context.Background()
	shares := generateShares(t, 3)
	publicKey := shares[1].PublicKeyBytes()

	dirs := make(map[party.Index]string, len(shares))
	for idx, share := range shares {
		dirs[idx] = t.TempDir()
		store, err := NewFileStore(dirs[idx], "correct horse", zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, share))
	}

	message := []byte("reloaded")
	signers := party.IndexSlice{1, 2, 3}
	stages := make(map[party.Index]stage.Stage, len(signers))
	for _, idx := range signers {
		store, err := NewFileStore(dirs[idx], "correct horse", zerolog.Nop())
		require.NoError(t, err)
		loaded, err := store.Get(ctx, publicKey)
		require.NoError(t, err)
		s, err := sign.Start(5, loaded, signers, message, nil)
		require.NoError(t, err)
		stages[idx] = s
	}

	stages, err := test.RunStages(stages, sign.ContentFactory, nil)
	require.NoError(t, err)
	for idx, s := range stages {
		output, ok := s.(*stage.Output)
		require.True(t, ok, "party %d did not finish: %T", idx, s)
		sig := output.Result.(*sign.Signature)
		assert.True(t, sig.Verify(shares[1].PublicKey, message))
	}
}
