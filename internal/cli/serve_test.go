package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewServeCmd(t *testing.T) {
	cmd := NewServeCmd()

	if cmd == nil {
		t.Fatal("NewServeCmd() returned nil")
	}

	if cmd.Use != "serve" {
		t.Errorf("Expected Use='serve', got %q", cmd.Use)
	}
}

func TestServeCommandHelp(t *testing.T) {
	cmd := NewServeCmd()
	cmd.SetArgs([]string{"--help"})

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	err := cmd.Execute()
	if err != nil {
		t.Fatalf("Execute() with --help failed: %v", err)
	}

	output := buf.String()

	expectedStrings := []string{
		"serve",
		"JSON-RPC",
		"stdio",
		"outputs.finalize",
		"skills.generate",
		"generators",
	}

	for _, expected := range expectedStrings {
		if !strings.Contains(output, expected) {
			t.Errorf("Help output missing %q", expected)
		}
	}
}

func TestServeCommandProperties(t *testing.T) {
	cmd := NewServeCmd()

	if cmd.Short == "" {
		t.Error("Command missing short description")
	}

	if cmd.Long == "" {
		t.Error("Command missing long description")
	}

	if cmd.RunE == nil {
		t.Error("Command RunE function not set")
	}
}
