package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.StorageBackend != BackendSQLite {
		t.Errorf("Default StorageBackend should be sqlite, got %q", cfg.StorageBackend)
	}
	if cfg.DefaultTier != "Free" {
		t.Errorf("Default DefaultTier should be Free, got %q", cfg.DefaultTier)
	}
	if !cfg.EvictOnFullEnabled() {
		t.Error("Default EvictOnFull should be true")
	}
}

func TestSaveAndLoad(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ".skill-hub.json")

	evict := false
	cfg := NewConfig()
	cfg.StorageBackend = BackendJournal
	cfg.DataDir = "/var/lib/skill-hub"
	cfg.Timezone = "UTC"
	cfg.DefaultTier = "Pro"
	cfg.EvictOnFull = &evict
	cfg.TiersFile = "/etc/skill-hub/tiers.yaml"

	if err := Save(cfg, configPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if loaded.StorageBackend != BackendJournal {
		t.Errorf("Expected journal backend, got %q", loaded.StorageBackend)
	}
	if loaded.DataDir != cfg.DataDir || loaded.TiersFile != cfg.TiersFile {
		t.Errorf("Paths not preserved: %+v", loaded)
	}
	if loaded.DefaultTier != "Pro" {
		t.Errorf("Expected default tier Pro, got %q", loaded.DefaultTier)
	}
	if loaded.EvictOnFullEnabled() {
		t.Error("Expected evictOnFull false to survive a round trip")
	}
}

func TestLoadNonExistent(t *testing.T) {
	_, err := LoadFrom("/nonexistent/path/config.json")
	if err == nil {
		t.Error("LoadFrom should fail for non-existent file")
	}
}

func TestGetDefaultConfigPathEnvOverride(t *testing.T) {
	t.Setenv(EnvConfigPath, "/tmp/custom-skill-hub.json")

	path, err := GetDefaultConfigPath()
	if err != nil {
		t.Fatalf("GetDefaultConfigPath failed: %v", err)
	}
	if path != "/tmp/custom-skill-hub.json" {
		t.Errorf("expected env override, got %q", path)
	}
}

func TestStoragePath(t *testing.T) {
	tests := []struct {
		backend string
		want    string
		wantErr bool
	}{
		{backend: "", want: filepath.Join("/data", "ledger.db")},
		{backend: BackendSQLite, want: filepath.Join("/data", "ledger.db")},
		{backend: BackendJournal, want: filepath.Join("/data", "journal.cbor")},
		{backend: "postgres", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := &Config{StorageBackend: tt.backend, DataDir: "/data"}
			got, err := cfg.StoragePath()
			if (err != nil) != tt.wantErr {
				t.Fatalf("StoragePath() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("StoragePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := NewConfig()
	loc, err := cfg.Location()
	if err != nil || loc != time.Local {
		t.Errorf("empty timezone should be local, got %v (%v)", loc, err)
	}

	cfg.Timezone = "UTC"
	loc, err = cfg.Location()
	if err != nil || loc.String() != "UTC" {
		t.Errorf("expected UTC, got %v (%v)", loc, err)
	}

	cfg.Timezone = "Mars/Olympus_Mons"
	if _, err := cfg.Location(); err == nil {
		t.Error("expected error for unknown timezone")
	}
}
