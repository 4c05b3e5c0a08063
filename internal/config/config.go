// Package config defines process configuration and its loading hooks.
//
// Conventions:
// - New() builds a Config with defaults; Load layers file and env on top.
// - The event key is resolved once at load time and passed explicitly to
//   every component that needs it.
package config

import (
	"path/filepath"
	"time"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Timeline tie-break policies.
const (
	TieBreakLexical = "lexical"
	TieBreakRandom  = "random"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// EventKey is the TBA event key, e.g. "2023caln". Read from EventKeyFile when empty.
	EventKey string `koanf:"event_key"`

	// EventKeyFile is a single-line file holding the event key.
	EventKeyFile string `koanf:"event_key_file"`

	// DataDir holds the team list, match schedule and API keys.
	DataDir string `koanf:"data_dir"`

	// SchemaDir overrides the embedded YAML schemas when set.
	SchemaDir string `koanf:"schema_dir"`

	// StoreBackend is "sqlite" or "memory".
	StoreBackend string `koanf:"store_backend"`

	// SQLitePath defaults to <data_dir>/<event_key>.db.
	SQLitePath string `koanf:"sqlite_path"`

	// TBABaseURL is the root of the TBA v3 API.
	TBABaseURL string `koanf:"tba_base_url"`

	// TBAKeyFile defaults to <data_dir>/api_keys/tba_key.txt.
	TBAKeyFile string `koanf:"tba_key_file"`

	// TBATimeoutMS bounds a single TBA request.
	TBATimeoutMS int `koanf:"tba_timeout_ms"`

	// TBARequestsPerSecond is the client-side TBA rate limit.
	TBARequestsPerSecond float64 `koanf:"tba_requests_per_second"`

	// ReplicaURI is the MongoDB URI of the cloud replica; empty disables it.
	ReplicaURI string `koanf:"replica_uri"`

	// ReplicaDatabase defaults to the event key.
	ReplicaDatabase string `koanf:"replica_database"`

	// ReplicaIntervalMS is the replica tail period.
	ReplicaIntervalMS int `koanf:"replica_interval_ms"`

	// TimelineTieBreak is "lexical" or "random".
	TimelineTieBreak string `koanf:"timeline_tie_break"`

	// WinChanceMinMatches is the number of played matches required before
	// the logistic win-chance fit replaces 0.5.
	WinChanceMinMatches int `koanf:"win_chance_min_matches"`

	// RecomputeAll forces a full recompute on the first cycle.
	RecomputeAll bool `koanf:"recompute_all"`

	// CycleIntervalMS is the pause between calculation cycles.
	CycleIntervalMS int `koanf:"cycle_interval_ms"`

	// Addr is the read API listen address; empty disables the API.
	Addr string `koanf:"addr"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		EventKeyFile:         filepath.Join("data", "competition.txt"),
		DataDir:              "data",
		StoreBackend:         BackendSQLite,
		TBABaseURL:           "https://www.thebluealliance.com/api/v3",
		TBATimeoutMS:         5000,
		TBARequestsPerSecond: 5,
		ReplicaIntervalMS:    5000,
		TimelineTieBreak:     TieBreakLexical,
		WinChanceMinMatches:  5,
		CycleIntervalMS:      5000,
	}
}

// TBATimeout returns the per-request TBA timeout.
func (c *Config) TBATimeout() time.Duration {
	return time.Duration(c.TBATimeoutMS) * time.Millisecond
}

// ReplicaInterval returns the replica tail period.
func (c *Config) ReplicaInterval() time.Duration {
	return time.Duration(c.ReplicaIntervalMS) * time.Millisecond
}

// CycleInterval returns the pause between calculation cycles.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.CycleIntervalMS) * time.Millisecond
}

// TeamListPath is the JSON array of team numbers for the event.
func (c *Config) TeamListPath() string {
	return filepath.Join(c.DataDir, "team_list.json")
}

// MatchSchedulePath is the JSON match schedule for the event.
func (c *Config) MatchSchedulePath() string {
	return filepath.Join(c.DataDir, "match_schedule.json")
}
