package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
)

// Save validates cfg and writes it to path. The previous file is kept as
// path.bak. Both files are replaced by rename, so concurrent readers and
// writers never observe a partial config.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return invalidConfig(path, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := backupConfig(path); err != nil {
		log.Printf("Warning: failed to back up %s: %v", path, err)
	}
	if err := atomicWrite(path, data); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return &PermissionError{Path: path, Op: "write"}
		}
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// backupConfig copies the current file to path.bak. A missing file is
// the first run and needs no backup.
func backupConfig(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return atomicWrite(path+".bak", data)
}

// atomicWrite writes data to a unique temp file next to path and renames
// it into place.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// parse decodes and validates a config file's contents.
func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// invalidConfig wraps a parse or validation failure for path.
func invalidConfig(path string, err error) *InvalidConfigError {
	var fe *FieldError
	if errors.As(err, &fe) {
		return &InvalidConfigError{Path: path, Field: fe.Field, Message: fe.Reason}
	}
	return &InvalidConfigError{Path: path, Message: fmt.Sprintf("JSON parse error: %v", err)}
}
