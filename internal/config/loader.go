package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if SCOUT_CONFIG is set
//  3. env (prefix SCOUT_)
//
// The event key is then resolved and derived paths are filled in.
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("SCOUT_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// SCOUT_EVENT_KEY -> event_key (flat keys, underscores preserved).
	envProvider := env.Provider("SCOUT_", ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), "scout_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolve reads the event key file when needed and fills derived defaults.
func (c *Config) resolve() error {
	if c.EventKey == "" && c.EventKeyFile != "" {
		raw, err := os.ReadFile(c.EventKeyFile)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: event key file: %v", ErrLoadConfig, err)
		}
		c.EventKey = strings.TrimSpace(string(raw))
	}
	if c.SQLitePath == "" && c.EventKey != "" {
		c.SQLitePath = filepath.Join(c.DataDir, c.EventKey+".db")
	}
	if c.TBAKeyFile == "" {
		c.TBAKeyFile = filepath.Join(c.DataDir, "api_keys", "tba_key.txt")
	}
	if c.ReplicaDatabase == "" {
		c.ReplicaDatabase = c.EventKey
	}
	return nil
}

// Validate reports configuration errors that must stop the process.
func (c *Config) Validate() error {
	if c.EventKey == "" {
		return fmt.Errorf("%w: event key is empty (set event_key or %s)", ErrInvalidConfig, c.EventKeyFile)
	}
	switch c.StoreBackend {
	case BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.StoreBackend)
	}
	switch c.TimelineTieBreak {
	case TieBreakLexical, TieBreakRandom:
	default:
		return fmt.Errorf("%w: unknown timeline tie break %q", ErrInvalidConfig, c.TimelineTieBreak)
	}
	if c.TBATimeoutMS <= 0 || c.ReplicaIntervalMS <= 0 || c.CycleIntervalMS <= 0 {
		return fmt.Errorf("%w: timeouts and intervals must be positive", ErrInvalidConfig)
	}
	if c.TBARequestsPerSecond <= 0 {
		return fmt.Errorf("%w: tba_requests_per_second must be positive", ErrInvalidConfig)
	}
	if c.WinChanceMinMatches < 1 {
		return fmt.Errorf("%w: win_chance_min_matches must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// ReadTBAKey returns the TBA API key, or "" when the key file is absent.
func (c *Config) ReadTBAKey() (string, error) {
	raw, err := os.ReadFile(c.TBAKeyFile)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: tba key: %v", ErrLoadConfig, err)
	}
	return strings.TrimSpace(string(raw)), nil
}
