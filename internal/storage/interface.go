/*
Package storage implements the persistent, append-only store behind the
usage ledger and the learning corpus.

Two backends are provided: SQLiteStorage (modernc.org/sqlite, a pure Go,
CGo-free implementation) and JournalStorage (a CBOR record log replayed
into memory on open). Unlike a best-effort cache, write failures here are
always returned: losing an audit event would corrupt quota and training
guarantees.
*/
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

var (
	// ErrUnavailable is returned when the store has not been initialized
	// or has been closed.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrNotFound is returned when a pattern id does not exist.
	ErrNotFound = errors.New("not found")
)

// Storage defines the interface for persistent storage operations.
type Storage interface {
	// Init opens the store and runs migrations or replay.
	Init() error

	// AppendUsage appends a usage record. Records are never updated.
	AppendUsage(rec UsageRecord) error

	// CountUsage counts usage records matching the query.
	CountUsage(q UsageQuery) (int, error)

	// UsageHistory yields records for owner (all owners if empty) in
	// ascending timestamp order. Each range re-reads the store.
	UsageHistory(owner string) iter.Seq2[UsageRecord, error]

	// AppendPattern appends a new learning pattern.
	AppendPattern(p Pattern) error

	// AppendPromotion appends a pattern together with the learn record of
	// its source output. Either both are stored or neither is.
	AppendPromotion(p Pattern, rec UsageRecord) error

	// UpdatePatternStats replaces the usage count and success rate of a pattern.
	UpdatePatternStats(id string, stats PatternStats) error

	// GetPattern returns a pattern by id.
	GetPattern(id string) (Pattern, error)

	// Patterns yields all patterns in creation order.
	Patterns() iter.Seq2[Pattern, error]

	// Close releases the underlying resources.
	Close() error
}

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db       *sql.DB
	dbPath   string
	mu       sync.Mutex
	initOnce sync.Once
	initErr  error
}

// NewStorage creates a SQLite storage instance at dbPath.
//
// The parent directory is created on Init if it doesn't exist.
func NewStorage(dbPath string) *SQLiteStorage {
	return &SQLiteStorage{dbPath: dbPath}
}

// Default file names inside the data directory.
const (
	SQLiteFile  = "ledger.db"
	JournalFile = "journal.cbor"
)

// DefaultDataDir returns ~/.skill-hub.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".skill-hub"), nil
}

// Init initializes the database and runs migrations.
func (s *SQLiteStorage) Init() error {
	s.initOnce.Do(func() {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(s.dbPath), 0755); err != nil {
			s.initErr = fmt.Errorf("failed to create db directory: %w", err)
			return
		}

		db, err := sql.Open("sqlite", s.dbPath)
		if err != nil {
			s.initErr = fmt.Errorf("failed to open database: %w", err)
			return
		}

		// A single connection serializes writers and keeps the
		// append order identical to the commit order.
		db.SetMaxOpenConns(1)

		if err := db.Ping(); err != nil {
			db.Close()
			s.initErr = fmt.Errorf("failed to ping database: %w", err)
			return
		}

		s.db = db
		if err := s.runMigrations(); err != nil {
			db.Close()
			s.db = nil
			s.initErr = fmt.Errorf("failed to run migrations: %w", err)
			return
		}
	})

	if s.initErr != nil {
		log.Printf("Warning: %v", s.initErr)
	}
	return s.initErr
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.db = nil
	return nil
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var (
	_ Storage = (*SQLiteStorage)(nil)
	_ Storage = (*JournalStorage)(nil)
)
