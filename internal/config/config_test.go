package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var account = strings.Repeat("01", 32)

func valid() Config {
	cfg := Default()
	cfg.OwnAccountID = account
	return cfg
}

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
own_account_id: `+account+`
stage_duration_ms: 2000
max_unauthorized_per_peer: 4
keystore_path: /var/lib/engine/keys
peers:
  - account_id: `+strings.Repeat("02", 32)+`
    address: /ip4/10.0.0.2/tcp/8078/p2p/12D3KooWExample
log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2*time.Second, cfg.StageDuration())
	assert.Equal(t, time.Second, cfg.TickInterval(), "defaults are kept for missing keys")
	assert.Equal(t, "/var/lib/engine/keys", cfg.KeystorePath)
	assert.Equal(t, 4, cfg.MaxUnauthorizedPerPeer)
	require.Len(t, cfg.Peers, 1)
	assert.Equal(t, "/ip4/10.0.0.2/tcp/8078/p2p/12D3KooWExample", cfg.Peers[0].Address)

	self, err := cfg.Self()
	require.NoError(t, err)
	assert.Equal(t, account, self.String())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "stage_duration: 10\n"))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = Load(writeConfig(t, "peers: nope\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing identity", func(c *Config) { c.OwnAccountID = "" }},
		{"bad hex", func(c *Config) { c.OwnAccountID = "zz" }},
		{"short account", func(c *Config) { c.OwnAccountID = "0102" }},
		{"zero stage duration", func(c *Config) { c.StageDurationMs = 0 }},
		{"zero tick", func(c *Config) { c.TickIntervalMs = 0 }},
		{"zero cache", func(c *Config) { c.TerminalCacheSize = 0 }},
		{"zero unauthorized limit", func(c *Config) { c.MaxUnauthorizedPerPeer = 0 }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"no keystore", func(c *Config) { c.KeystorePath = "" }},
		{"no transport", func(c *Config) { c.TransportEndpoint = "" }},
		{"no state chain", func(c *Config) { c.StateChainEndpoint = "" }},
		{"bad peer", func(c *Config) { c.Peers = []Peer{{AccountID: "x", Address: "/ip4/1.2.3.4"}} }},
		{"peer without address", func(c *Config) { c.Peers = []Peer{{AccountID: account}} }},
		{"duplicate peer", func(c *Config) {
			c.Peers = []Peer{{AccountID: account, Address: "a"}, {AccountID: account, Address: "b"}}
		}},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPassphrase(t *testing.T) {
	cfg := valid()
	t.Setenv(cfg.KeystorePassphraseEnv, "hunter2")
	assert.Equal(t, "hunter2", cfg.Passphrase())

	cfg.KeystorePassphraseEnv = ""
	assert.Empty(t, cfg.Passphrase())
}

func TestResolve(t *testing.T) {
	cfg, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg.LogLevel = "warn"
	assert.Equal(t, "warn", cfg.Logger().GetLevel().String())
	cfg.LogLevel = ""
	assert.Equal(t, "info", cfg.Logger().GetLevel().String())
}
