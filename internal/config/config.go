/*
Package config handles loading and saving skill-hub configuration.

Configuration is stored in ~/.skill-hub.json. The SKILL_HUB_CONFIG
environment variable points at a different file.

Schema:
  {
    "storageBackend": "sqlite",
    "dataDir": "/home/me/.skill-hub",
    "timezone": "Asia/Ho_Chi_Minh",
    "defaultTier": "Free",
    "evictOnFull": true,
    "tiersFile": "/home/me/.skill-hub/tiers.yaml",
    "generators": {
      "CodeHelper": {
        "command": "npx",
        "args": ["-y", "@acme/code-generator"],
        "env": {"KEY": "value"},
        "timeoutSeconds": 60
      }
    }
  }

Every field is optional.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/khanglvm/skill-hub/internal/storage"
)

// EnvConfigPath overrides the default config location.
const EnvConfigPath = "SKILL_HUB_CONFIG"

// Storage backends.
const (
	BackendSQLite  = "sqlite"
	BackendJournal = "journal"
)

// DefaultTier is the tier for owners with no session assignment.
const DefaultTier = "Free"

// Config represents the root configuration structure.
type Config struct {
	// StorageBackend selects where the ledger and corpus live: "sqlite" or "journal".
	StorageBackend string `json:"storageBackend,omitempty"`

	// DataDir holds the database or journal file. Defaults to ~/.skill-hub.
	DataDir string `json:"dataDir,omitempty"`

	// Timezone is the IANA zone that defines a quota day. Empty means local time.
	Timezone string `json:"timezone,omitempty"`

	// DefaultTier is the tier for owners that never called setTier.
	DefaultTier string `json:"defaultTier,omitempty"`

	// EvictOnFull drops the oldest output when an owner is at capacity.
	// When false, adding at capacity fails instead.
	EvictOnFull *bool `json:"evictOnFull,omitempty"`

	// TiersFile is an optional YAML tier catalog replacing the built-in one.
	TiersFile string `json:"tiersFile,omitempty"`

	// Generators maps skill names to the external process that produces
	// their content.
	Generators map[string]*GeneratorConfig `json:"generators,omitempty"`
}

// GeneratorConfig describes an external generator process.
type GeneratorConfig struct {
	// Command is the executable to run (e.g., "npx", "/path/to/binary").
	Command string `json:"command"`

	// Args are the command-line arguments.
	Args []string `json:"args,omitempty"`

	// Env contains extra environment variables for the process.
	Env map[string]string `json:"env,omitempty"`

	// TimeoutSeconds bounds one generate call. Zero means 60 seconds.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
}

// NewConfig creates a configuration with defaults filled in.
func NewConfig() *Config {
	evict := true
	return &Config{
		StorageBackend: BackendSQLite,
		DefaultTier:    DefaultTier,
		EvictOnFull:    &evict,
	}
}

// applyDefaults fills unset fields. DataDir is resolved lazily by StoragePath.
func (c *Config) applyDefaults() {
	if c.StorageBackend == "" {
		c.StorageBackend = BackendSQLite
	}
	if c.DefaultTier == "" {
		c.DefaultTier = DefaultTier
	}
	if c.EvictOnFull == nil {
		evict := true
		c.EvictOnFull = &evict
	}
}

// GetDefaultConfigPath returns $SKILL_HUB_CONFIG or ~/.skill-hub.json.
func GetDefaultConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".skill-hub.json"), nil
}

// Load reads the configuration from the default path.
func Load() (*Config, error) {
	configPath, err := GetDefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// EvictOnFullEnabled reports the effective evictOnFull setting.
func (c *Config) EvictOnFullEnabled() bool {
	return c.EvictOnFull == nil || *c.EvictOnFull
}

// StoragePath returns the database or journal file for the configured backend.
func (c *Config) StoragePath() (string, error) {
	dir := c.DataDir
	if dir == "" {
		var err error
		if dir, err = storage.DefaultDataDir(); err != nil {
			return "", err
		}
	}

	switch c.StorageBackend {
	case BackendJournal:
		return filepath.Join(dir, storage.JournalFile), nil
	case BackendSQLite, "":
		return filepath.Join(dir, storage.SQLiteFile), nil
	default:
		return "", fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}

// Location returns the time zone that bounds a quota day.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
