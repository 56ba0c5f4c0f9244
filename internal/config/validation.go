package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Validate checks settings that would otherwise fail later at startup.
// Unset fields are valid; they take defaults. The first problem found is
// returned as a *FieldError.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "", BackendSQLite, BackendJournal:
	default:
		return &FieldError{
			Field:  "storageBackend",
			Reason: fmt.Sprintf("unknown backend %q, want %q or %q", c.StorageBackend, BackendSQLite, BackendJournal),
		}
	}

	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return &FieldError{Field: "timezone", Reason: fmt.Sprintf("%q: %v", c.Timezone, err)}
		}
	}

	if c.TiersFile != "" {
		switch strings.ToLower(filepath.Ext(c.TiersFile)) {
		case ".yaml", ".yml":
		default:
			return &FieldError{Field: "tiersFile", Reason: fmt.Sprintf("%q is not a .yaml or .yml file", c.TiersFile)}
		}
	}

	for skill, gen := range c.Generators {
		if err := ValidateGenerator(skill, gen); err != nil {
			return err
		}
	}
	return nil
}

// IsSelfReference checks if a generator config would spawn skill-hub itself.
func IsSelfReference(gen *GeneratorConfig) bool {
	binaryName := filepath.Base(os.Args[0])
	if gen.Command == binaryName || filepath.Base(gen.Command) == "skill-hub" {
		return true
	}

	if gen.Command == "npx" {
		for _, arg := range gen.Args {
			if arg == "@khanglvm/skill-hub" || arg == "skill-hub" {
				return true
			}
		}
	}
	return false
}

// ValidateGenerator checks one entry of the generators map.
func ValidateGenerator(skill string, gen *GeneratorConfig) error {
	field := "generators." + skill
	switch {
	case gen == nil || gen.Command == "":
		return &FieldError{Field: field, Reason: "empty command"}
	case gen.TimeoutSeconds < 0:
		return &FieldError{Field: field, Reason: fmt.Sprintf("negative timeoutSeconds %d", gen.TimeoutSeconds)}
	case IsSelfReference(gen):
		return &FieldError{Field: field, Reason: "self-reference detected, skill-hub cannot spawn itself"}
	}
	return nil
}
