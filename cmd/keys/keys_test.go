package keys

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bridgeval/engine/internal/stage"
	"github.com/bridgeval/engine/internal/test"
	"github.com/bridgeval/engine/pkg/keystore"
	"github.com/bridgeval/engine/pkg/party"
	"github.com/bridgeval/engine/protocols/keygen"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, configPath string, args ...string) (string, error) {
	cmd := New(&configPath)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestKeys(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "engine.yaml")
	storePath := filepath.Join(dir, "keys")
	require.NoError(t, os.WriteFile(configPath, []byte("keystore_path: "+storePath+"\nkeystore_passphrase_env: \"\"\n"), 0o600))

	vmap := test.ValidatorMap(3)
	stages := make(map[party.Index]stage.Stage, 3)
	for _, id := range test.AccountIDs(3) {
		s, err := keygen.Start(1, vmap, id, nil)
		require.NoError(t, err)
		idx, _ := vmap.IndexOf(id)
		stages[idx] = s
	}
	stages, err := test.RunStages(stages, keygen.ContentFactory, nil)
	require.NoError(t, err)
	share := stages[2].(*stage.Output).Result.(*keygen.KeyShare)

	store, err := keystore.NewFileStore(storePath, "", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), share))
	name := keystore.KeyName(share.PublicKeyBytes())

	out, err := execute(t, configPath, "list")
	require.NoError(t, err)
	assert.Equal(t, name+"\n", out)

	out, err = execute(t, configPath, "show", "0x"+name)
	require.NoError(t, err)
	assert.Contains(t, out, "own index:   2")
	assert.Contains(t, out, "threshold:   2")
	assert.Contains(t, out, test.AccountIDs(3)[0].String())

	_, err = execute(t, configPath, "show", "zz")
	assert.Error(t, err)
	_, err = execute(t, configPath, "show", "02ff")
	assert.ErrorIs(t, err, keystore.ErrNotFound)
}
