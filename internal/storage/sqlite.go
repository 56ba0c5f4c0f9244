/*
Package storage provides SQLite database migrations and helper functions.

This file contains schema definitions, migration logic, and list
serialization utilities for the storage layer.
*/
package storage

import (
	"encoding/json"
	"fmt"
	"log"
)

// runMigrations executes database schema migrations.
func (s *SQLiteStorage) runMigrations() error {
	if err := s.createMigrationsTable(); err != nil {
		return err
	}

	version, err := s.getCurrentMigrationVersion()
	if err != nil {
		return err
	}

	// Run migrations in order
	migrations := []migration{
		{version: 1, name: "usage_ledger", up: s.migration001UsageLedger},
		{version: 2, name: "learning_corpus", up: s.migration002LearningCorpus},
	}

	for _, m := range migrations {
		if version < m.version {
			log.Printf("Running migration %d: %s", m.version, m.name)
			if err := m.up(); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.version, err)
			}
			if err := s.setMigrationVersion(m.version, m.name); err != nil {
				return err
			}
		}
	}

	return nil
}

// migration represents a single database migration.
type migration struct {
	version int
	name    string
	up      func() error
}

// createMigrationsTable creates the schema_migrations table.
func (s *SQLiteStorage) createMigrationsTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`
	_, err := s.db.Exec(query)
	return err
}

// getCurrentMigrationVersion returns the highest applied migration version.
func (s *SQLiteStorage) getCurrentMigrationVersion() (int, error) {
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")

	var version int
	if err := row.Scan(&version); err != nil {
		return 0, err
	}

	return version, nil
}

// setMigrationVersion records a migration as applied.
func (s *SQLiteStorage) setMigrationVersion(version int, name string) error {
	_, err := s.db.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", version, name)
	return err
}

// migration001UsageLedger creates the append-only usage table.
// Timestamps are stored as Unix nanoseconds so range scans compare numerically.
func (s *SQLiteStorage) migration001UsageLedger() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS usage_records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			owner TEXT NOT NULL,
			skill TEXT NOT NULL,
			action TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			output_id TEXT,
			tier TEXT NOT NULL,
			automatic INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return fmt.Errorf("failed to create usage_records table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_usage_owner_skill_action_ts
		ON usage_records(owner, skill, action, timestamp)
	`); err != nil {
		return fmt.Errorf("failed to create usage_records quota index: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_usage_owner_ts
		ON usage_records(owner, timestamp, seq)
	`); err != nil {
		return fmt.Errorf("failed to create usage_records history index: %w", err)
	}

	return nil
}

// migration002LearningCorpus creates the learning pattern table.
func (s *SQLiteStorage) migration002LearningCorpus() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS learning_patterns (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			owner TEXT NOT NULL,
			skill TEXT NOT NULL,
			content_type TEXT NOT NULL,
			summary TEXT NOT NULL,
			steps TEXT NOT NULL,
			fixes TEXT NOT NULL,
			user_context TEXT,
			metrics TEXT NOT NULL,
			source_output_id TEXT NOT NULL,
			source_digest TEXT,
			created_at INTEGER NOT NULL,
			usage_count INTEGER NOT NULL DEFAULT 0,
			success_rate REAL NOT NULL DEFAULT 1.0
		)
	`); err != nil {
		return fmt.Errorf("failed to create learning_patterns table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_learning_patterns_created
		ON learning_patterns(created_at, seq)
	`); err != nil {
		return fmt.Errorf("failed to create learning_patterns created index: %w", err)
	}

	return nil
}

// listToJSON converts a string list to JSON for storage.
func listToJSON(list []string) string {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		log.Printf("Warning: failed to marshal list: %v", err)
		return "[]"
	}
	return string(data)
}

// jsonToList parses JSON storage back to a string list.
func jsonToList(jsonStr string) ([]string, error) {
	var list []string
	if err := json.Unmarshal([]byte(jsonStr), &list); err != nil {
		return nil, err
	}
	return list, nil
}
