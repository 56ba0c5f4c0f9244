package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// LoadFrom reads, validates and fills defaults for the config at path.
// Failures are typed: *ConfigNotFoundError, *PermissionError or
// *InvalidConfigError.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, &ConfigNotFoundError{Path: path}
	case errors.Is(err, fs.ErrPermission):
		perm := &PermissionError{Path: path, Op: "read"}
		if info, statErr := os.Stat(path); statErr == nil {
			perm.Mode = info.Mode()
		}
		return nil, perm
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, invalidConfig(path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadOrDefault behaves like LoadFrom but returns the default configuration
// when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := LoadFrom(path)
	var notFound *ConfigNotFoundError
	if errors.As(err, &notFound) {
		return NewConfig(), nil
	}
	return cfg, err
}
