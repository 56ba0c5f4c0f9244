package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/khanglvm/skill-hub/internal/config"
)

func TestNewSetupCmd(t *testing.T) {
	cmd := NewSetupCmd()

	if cmd == nil {
		t.Fatal("NewSetupCmd() returned nil")
	}

	if cmd.Use != "setup" {
		t.Errorf("Expected Use='setup', got %q", cmd.Use)
	}
}

func TestSetupCommandFlags(t *testing.T) {
	cmd := NewSetupCmd()

	for _, name := range []string{"backend", "data-dir", "timezone", "default-tier", "tiers-file", "no-evict", "force"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("Flag %q not registered", name)
		}
	}

	if got := cmd.Flags().Lookup("backend").DefValue; got != "sqlite" {
		t.Errorf("backend default = %q, want sqlite", got)
	}
}

func TestSetupWritesConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "skill-hub.json")

	out, err := execute(t, "setup", "--config", cfgPath,
		"--backend", "journal", "--data-dir", dir, "--timezone", "UTC", "--no-evict")
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if !strings.Contains(out, "journal.cbor") {
		t.Errorf("expected storage path in output, got:\n%s", out)
	}

	cfg, err := config.LoadFrom(cfgPath)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.StorageBackend != config.BackendJournal || cfg.Timezone != "UTC" || cfg.DataDir != dir {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.EvictOnFullEnabled() {
		t.Error("--no-evict should disable eviction")
	}

	// A second run without --force refuses to overwrite.
	if _, err := execute(t, "setup", "--config", cfgPath); err == nil {
		t.Error("expected setup to refuse overwriting an existing config")
	}
	if _, err := execute(t, "setup", "--config", cfgPath, "--force", "--data-dir", dir); err != nil {
		t.Errorf("setup --force failed: %v", err)
	}
}

func TestSetupRejectsUnknownDefaultTier(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "skill-hub.json")

	_, err := execute(t, "setup", "--config", cfgPath, "--default-tier", "Platinum")
	if err == nil || !strings.Contains(err.Error(), "Platinum") {
		t.Errorf("expected unknown tier error, got %v", err)
	}
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { configPath = "" })

	root := NewRootCmd()
	root.SetArgs(args)

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)

	err := root.Execute()
	return out.String(), err
}
