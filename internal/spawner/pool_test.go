package spawner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/khanglvm/skill-hub/internal/config"
	"github.com/khanglvm/skill-hub/internal/hub"
	"github.com/khanglvm/skill-hub/internal/outputs"
	"github.com/khanglvm/skill-hub/internal/storage"
	"github.com/khanglvm/skill-hub/internal/tier"
)

// TestHelperProcess is not a real test. It is the fake generator that the
// tests spawn by re-executing the test binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	mode := ""
	if len(args) > 1 {
		mode = args[1]
	}
	if mode == "noinit" {
		os.Exit(2)
	}

	scanner := bufio.NewScanner(os.Stdin)
	enc := json.NewEncoder(os.Stdout)
	for scanner.Scan() {
		var req struct {
			ID     int64  `json:"id"`
			Method string `json:"method"`
			Params struct {
				Skill  string         `json:"skill"`
				Params map[string]any `json:"params"`
			} `json:"params"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			os.Exit(3)
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch {
		case req.Method == "initialize":
			resp["result"] = map[string]any{"name": "fake-generator"}
		case mode == "echo":
			resp["result"] = map[string]any{
				"text":        "generated for " + req.Params.Skill,
				"metadata":    req.Params.Params,
				"description": "echo",
			}
		case mode == "binary":
			resp["result"] = map[string]any{"data": []byte{0x89, 'P', 'N', 'G'}, "filename": "out.png"}
		case mode == "empty":
			resp["result"] = map[string]any{}
		case mode == "remote-error":
			resp["error"] = map[string]any{"code": -32000, "message": "model overloaded"}
		case mode == "slow":
			time.Sleep(10 * time.Second)
			resp["result"] = map[string]any{"text": "too late"}
		case mode == "crash":
			os.Exit(4)
		}
		enc.Encode(resp)
	}
	os.Exit(0)
}

func helperCommand(name string, args ...string) *exec.Cmd {
	cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
	return exec.Command(os.Args[0], cs...)
}

// newHelperPool builds a pool whose skills run the fake generator in the given modes.
func newHelperPool(t *testing.T, modes map[tier.Skill]string, timeoutSeconds int) *Pool {
	t.Helper()

	orig := execCommand
	execCommand = helperCommand
	t.Cleanup(func() { execCommand = orig })

	generators := make(map[string]*config.GeneratorConfig, len(modes))
	for skill, mode := range modes {
		generators[string(skill)] = &config.GeneratorConfig{
			Command:        mode,
			Env:            map[string]string{"GO_WANT_HELPER_PROCESS": "1"},
			TimeoutSeconds: timeoutSeconds,
		}
	}

	pool := NewPool(generators)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestNewPool(t *testing.T) {
	pool := NewPool(map[string]*config.GeneratorConfig{
		"GraphicsWizard": {Command: "painter"},
		"CodeHelper":     {Command: "coder"},
	})

	skills := pool.Skills()
	if len(skills) != 2 || skills[0] != tier.SkillCodeHelper || skills[1] != tier.SkillGraphicsWizard {
		t.Errorf("unexpected skills %v", skills)
	}
	if pool.processes == nil {
		t.Error("processes map not initialized")
	}
	if _, ok := pool.Generator(tier.SkillCodeHelper); !ok {
		t.Error("expected a generator for CodeHelper")
	}
	if _, ok := pool.Generator(tier.SkillAudioMaestro); ok {
		t.Error("expected no generator for AudioMaestro")
	}
}

func TestGenerateText(t *testing.T) {
	pool := newHelperPool(t, map[tier.Skill]string{tier.SkillCodeHelper: "echo"}, 10)

	got, err := pool.Generate(context.Background(), tier.SkillCodeHelper, map[string]any{"language": "go"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got.Content.Kind != outputs.KindText || got.Content.Text != "generated for CodeHelper" {
		t.Errorf("unexpected content %+v", got.Content)
	}
	if got.Metadata["language"] != "go" || got.Description != "echo" {
		t.Errorf("unexpected metadata %+v", got)
	}

	pool.mu.Lock()
	first := pool.processes[tier.SkillCodeHelper]
	pool.mu.Unlock()

	if _, err := pool.Generate(context.Background(), tier.SkillCodeHelper, nil); err != nil {
		t.Fatalf("second Generate failed: %v", err)
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()
	if len(pool.processes) != 1 || pool.processes[tier.SkillCodeHelper] != first {
		t.Error("expected the process to be reused")
	}
}

func TestGenerateBinary(t *testing.T) {
	pool := newHelperPool(t, map[tier.Skill]string{tier.SkillGraphicsWizard: "binary"}, 10)

	got, err := pool.Generate(context.Background(), tier.SkillGraphicsWizard, nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got.Content.Kind != outputs.KindBinary || string(got.Content.Data) != "\x89PNG" {
		t.Errorf("unexpected content %+v", got.Content)
	}
	if got.Filename != "out.png" {
		t.Errorf("expected filename out.png, got %q", got.Filename)
	}
}

func TestGenerateEmptyResult(t *testing.T) {
	pool := newHelperPool(t, map[tier.Skill]string{tier.SkillCodeHelper: "empty"}, 10)

	_, err := pool.Generate(context.Background(), tier.SkillCodeHelper, nil)
	if err == nil || !strings.Contains(err.Error(), "no content") {
		t.Errorf("expected no content error, got %v", err)
	}
}

func TestGenerateRemoteErrorKeepsProcess(t *testing.T) {
	pool := newHelperPool(t, map[tier.Skill]string{tier.SkillAudioMaestro: "remote-error"}, 10)

	_, err := pool.Generate(context.Background(), tier.SkillAudioMaestro, nil)
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Message != "model overloaded" {
		t.Fatalf("expected RemoteError, got %v", err)
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()
	if _, ok := pool.processes[tier.SkillAudioMaestro]; !ok {
		t.Error("a remote error should not discard the process")
	}
}

func TestGenerateTimeoutDiscardsProcess(t *testing.T) {
	pool := newHelperPool(t, map[tier.Skill]string{tier.SkillCodeHelper: "slow"}, 1)

	start := time.Now()
	_, err := pool.Generate(context.Background(), tier.SkillCodeHelper, nil)
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Fatalf("expected timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()
	if len(pool.processes) != 0 {
		t.Error("a timed out process should be discarded")
	}
}

func TestGenerateContextCancel(t *testing.T) {
	pool := newHelperPool(t, map[tier.Skill]string{tier.SkillCodeHelper: "slow"}, 30)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := pool.Generate(ctx, tier.SkillCodeHelper, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestGenerateCrashRespawns(t *testing.T) {
	pool := newHelperPool(t, map[tier.Skill]string{tier.SkillCodeHelper: "crash"}, 10)

	for i := 0; i < 2; i++ {
		_, err := pool.Generate(context.Background(), tier.SkillCodeHelper, nil)
		if err == nil || !strings.Contains(err.Error(), "failed to read response") {
			t.Fatalf("call %d: expected read failure, got %v", i, err)
		}
	}
}

func TestGenerateInitializeFailure(t *testing.T) {
	pool := newHelperPool(t, map[tier.Skill]string{tier.SkillMiniPersona: "noinit"}, 10)

	_, err := pool.Generate(context.Background(), tier.SkillMiniPersona, nil)
	if err == nil || !strings.Contains(err.Error(), "failed to initialize") {
		t.Errorf("expected initialize failure, got %v", err)
	}
}

func TestGenerateUnknownSkill(t *testing.T) {
	pool := NewPool(nil)

	_, err := pool.Generate(context.Background(), tier.SkillCodeHelper, nil)
	if !errors.Is(err, ErrNoGenerator) {
		t.Errorf("expected ErrNoGenerator, got %v", err)
	}
}

func TestHubGenerateThroughPool(t *testing.T) {
	pool := newHelperPool(t, map[tier.Skill]string{tier.SkillCodeHelper: "echo"}, 10)

	store := storage.NewJournalStorage(filepath.Join(t.TempDir(), storage.JournalFile))
	if err := store.Init(); err != nil {
		t.Fatalf("failed to init storage: %v", err)
	}
	defer store.Close()

	h, err := hub.New(store, tier.DefaultCatalog())
	if err != nil {
		t.Fatalf("failed to create hub: %v", err)
	}
	gen, _ := pool.Generator(tier.SkillCodeHelper)

	// Free allows two CodeHelper generations a day.
	for i := 0; i < 3; i++ {
		res, err := h.Generate(context.Background(), "alice", tier.SkillCodeHelper, gen, map[string]any{"n": i})
		if err != nil {
			t.Fatalf("Generate %d failed: %v", i, err)
		}
		if want := i < 2; res.Admission.Allowed != want {
			t.Fatalf("Generate %d: allowed = %v, want %v", i, res.Admission.Allowed, want)
		}
		if res.Admission.Allowed && res.Output.Content.Text != "generated for CodeHelper" {
			t.Errorf("Generate %d: unexpected output %+v", i, res.Output)
		}
	}

	used, err := h.Ledger().CountToday("alice", tier.SkillCodeHelper, storage.ActionGenerate)
	if err != nil || used != 2 {
		t.Errorf("expected 2 recorded generations, got %d (%v)", used, err)
	}
}

func TestPoolClose(t *testing.T) {
	pool := newHelperPool(t, map[tier.Skill]string{tier.SkillCodeHelper: "echo"}, 10)

	if err := NewPool(nil).Close(); err != nil {
		t.Errorf("Close() on empty pool returned error: %v", err)
	}

	if _, err := pool.Generate(context.Background(), tier.SkillCodeHelper, nil); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()
	if len(pool.processes) != 0 {
		t.Errorf("Expected 0 processes after Close(), got %d", len(pool.processes))
	}
}

func TestGetNpmPackageFromConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.GeneratorConfig
		want string
	}{
		{"npx with -y", config.GeneratorConfig{Command: "npx", Args: []string{"-y", "@acme/painter"}}, "@acme/painter"},
		{"npx bare", config.GeneratorConfig{Command: "npx", Args: []string{"composer"}}, "composer"},
		{"not npx", config.GeneratorConfig{Command: "node", Args: []string{"gen.js"}}, ""},
		{"npx flags only", config.GeneratorConfig{Command: "npx", Args: []string{"--yes"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getNpmPackageFromConfig(&tt.cfg); got != tt.want {
				t.Errorf("getNpmPackageFromConfig() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemoteErrorMessage(t *testing.T) {
	err := &RemoteError{Code: -32000, Message: "boom"}
	if got := err.Error(); got != fmt.Sprintf("generator error %d: %s", -32000, "boom") {
		t.Errorf("unexpected message %q", got)
	}
}
