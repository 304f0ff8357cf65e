// Package config holds the configuration of an engine, read from a YAML file.
package config

import (
	"bytes"
	"os"
	"time"

	"github.com/bridgeval/engine/pkg/party"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Peer maps a validator account to the libp2p address of its engine.
type Peer struct {
	AccountID string `yaml:"account_id"`
	Address   string `yaml:"address"`
}

// Config of an engine.
type Config struct {
	OwnAccountID string `yaml:"own_account_id"`

	StageDurationMs   int `yaml:"stage_duration_ms"`
	TickIntervalMs    int `yaml:"tick_interval_ms"`
	TerminalCacheSize int `yaml:"terminal_cache_size"`
	// MaxUnauthorizedPerPeer bounds the ceremonies a peer may open before they are authorized.
	MaxUnauthorizedPerPeer int `yaml:"max_unauthorized_per_peer"`
	// Workers is the size of the verification pool, 0 for one per CPU.
	Workers int `yaml:"workers"`

	KeystorePath string `yaml:"keystore_path"`
	// KeystorePassphraseEnv names the environment variable holding the key store passphrase.
	KeystorePassphraseEnv string `yaml:"keystore_passphrase_env"`

	TransportEndpoint string `yaml:"transport_endpoint"`
	IdentityKeyPath   string `yaml:"identity_key_path"`
	Peers             []Peer `yaml:"peers"`

	StateChainEndpoint string `yaml:"state_chain_endpoint"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogConsole  bool   `yaml:"log_console"`
}

// Default returns the configuration used for every key missing from the file.
func Default() Config {
	return Config{
		StageDurationMs:        15000,
		TickIntervalMs:         1000,
		TerminalCacheSize:      4096,
		MaxUnauthorizedPerPeer: 16,
		KeystorePath:           "keystore",
		KeystorePassphraseEnv:  "ENGINE_KEYSTORE_PASSPHRASE",
		TransportEndpoint:      "/ip4/0.0.0.0/tcp/8078",
		IdentityKeyPath:        "identity.key",
		StateChainEndpoint:     "ws://127.0.0.1:9944",
		MetricsAddr:            ":9100",
		LogLevel:               "info",
	}
}

// Load reads the YAML file at path on top of Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "config: read")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: parse %s", path)
	}
	return cfg, nil
}

// Validate checks that the configuration can start an engine.
func (c Config) Validate() error {
	if c.OwnAccountID == "" {
		return errors.New("config: own_account_id is required")
	}
	if _, err := party.ParseAccountID(c.OwnAccountID); err != nil {
		return errors.Wrap(err, "config: own_account_id")
	}
	if c.StageDurationMs <= 0 {
		return errors.New("config: stage_duration_ms must be positive")
	}
	if c.TickIntervalMs <= 0 {
		return errors.New("config: tick_interval_ms must be positive")
	}
	if c.TerminalCacheSize <= 0 {
		return errors.New("config: terminal_cache_size must be positive")
	}
	if c.MaxUnauthorizedPerPeer <= 0 {
		return errors.New("config: max_unauthorized_per_peer must be positive")
	}
	if c.Workers < 0 {
		return errors.New("config: workers must not be negative")
	}
	if c.KeystorePath == "" {
		return errors.New("config: keystore_path is required")
	}
	if c.TransportEndpoint == "" || c.IdentityKeyPath == "" {
		return errors.New("config: transport_endpoint and identity_key_path are required")
	}
	if c.StateChainEndpoint == "" {
		return errors.New("config: state_chain_endpoint is required")
	}
	seen := make(map[party.AccountID]bool, len(c.Peers))
	for i, p := range c.Peers {
		id, err := party.ParseAccountID(p.AccountID)
		if err != nil {
			return errors.Wrapf(err, "config: peers[%d]", i)
		}
		if seen[id] {
			return errors.Errorf("config: peers[%d]: duplicate account %s", i, id.Short())
		}
		seen[id] = true
		if p.Address == "" {
			return errors.Errorf("config: peers[%d]: missing address", i)
		}
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "config: log_level")
	}
	return nil
}

// Self returns the parsed own account id.
func (c Config) Self() (party.AccountID, error) {
	return party.ParseAccountID(c.OwnAccountID)
}

// StageDuration returns the time allowed for each ceremony stage.
func (c Config) StageDuration() time.Duration {
	return time.Duration(c.StageDurationMs) * time.Millisecond
}

// TickInterval returns the period of expiry checks.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// Passphrase returns the key store passphrase, empty when keys are stored unsealed.
func (c Config) Passphrase() string {
	if c.KeystorePassphraseEnv == "" {
		return ""
	}
	return os.Getenv(c.KeystorePassphraseEnv)
}

// Logger returns the logger described by the configuration: JSON lines on
// stderr, or a console writer when log_console is set.
func (c Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if c.LogConsole {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// Resolve loads the file at path, or returns Default when path is empty.
func Resolve(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}
