package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log"
	"time"

	"github.com/khanglvm/skill-hub/internal/tier"
)

const patternColumns = `seq, id, owner, skill, content_type, summary, steps, fixes, user_context,
	metrics, source_output_id, source_digest, created_at, usage_count, success_rate`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// AppendPattern appends a learning pattern to the corpus.
func (s *SQLiteStorage) AppendPattern(p Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrUnavailable
	}
	return insertPattern(s.db, p)
}

// AppendPromotion inserts the pattern and its learn record in one transaction.
func (s *SQLiteStorage) AppendPromotion(p Pattern, rec UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrUnavailable
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin promotion: %w", err)
	}
	defer tx.Rollback()

	if err := insertPattern(tx, p); err != nil {
		return err
	}
	if err := insertUsage(tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit promotion: %w", err)
	}
	return nil
}

func insertPattern(db execer, p Pattern) error {
	metrics, err := json.Marshal(p.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal pattern metrics: %w", err)
	}

	query := `
		INSERT INTO learning_patterns (id, owner, skill, content_type, summary, steps, fixes, user_context,
			metrics, source_output_id, source_digest, created_at, usage_count, success_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = db.Exec(query,
		p.ID,
		p.Owner,
		string(p.Skill),
		string(p.ContentType),
		p.Summary,
		listToJSON(p.Steps),
		listToJSON(p.Fixes),
		p.UserContext,
		string(metrics),
		p.SourceOutputID,
		p.SourceDigest,
		p.CreatedAt.UnixNano(),
		p.UsageCount,
		p.SuccessRate,
	)
	if err != nil {
		return fmt.Errorf("failed to append pattern: %w", err)
	}
	return nil
}

// UpdatePatternStats replaces the running statistics of a pattern.
func (s *SQLiteStorage) UpdatePatternStats(id string, stats PatternStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrUnavailable
	}

	result, err := s.db.Exec(
		"UPDATE learning_patterns SET usage_count = ?, success_rate = ? WHERE id = ?",
		stats.UsageCount, stats.SuccessRate, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update pattern stats: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update pattern stats: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetPattern returns a pattern by id.
func (s *SQLiteStorage) GetPattern(id string) (Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return Pattern{}, ErrUnavailable
	}

	row := s.db.QueryRow("SELECT "+patternColumns+" FROM learning_patterns WHERE id = ?", id)
	p, _, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Pattern{}, fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	return p, err
}

// Patterns yields all patterns in creation order, one page at a time.
func (s *SQLiteStorage) Patterns() iter.Seq2[Pattern, error] {
	return func(yield func(Pattern, error) bool) {
		lastSeq := int64(0)
		for {
			page, err := s.patternPage(lastSeq)
			if err != nil {
				yield(Pattern{}, err)
				return
			}
			for _, row := range page {
				if !yield(row.pattern, nil) {
					return
				}
				lastSeq = row.seq
			}
			if len(page) < historyPageSize {
				return
			}
		}
	}
}

type patternRow struct {
	pattern Pattern
	seq     int64
}

// patternPage pages on seq: patterns are appended with non-decreasing
// created_at, so seq order is creation order.
func (s *SQLiteStorage) patternPage(afterSeq int64) ([]patternRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, ErrUnavailable
	}

	rows, err := s.db.Query(
		"SELECT "+patternColumns+" FROM learning_patterns WHERE seq > ? ORDER BY seq ASC LIMIT ?",
		afterSeq, historyPageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var page []patternRow
	for rows.Next() {
		p, seq, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		page = append(page, patternRow{pattern: p, seq: seq})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read patterns: %w", err)
	}
	return page, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (Pattern, int64, error) {
	var p Pattern
	var seq, createdAt int64
	var skill, contentType, steps, fixes, metrics string
	var userContext, digest sql.NullString

	if err := row.Scan(
		&seq,
		&p.ID,
		&p.Owner,
		&skill,
		&contentType,
		&p.Summary,
		&steps,
		&fixes,
		&userContext,
		&metrics,
		&p.SourceOutputID,
		&digest,
		&createdAt,
		&p.UsageCount,
		&p.SuccessRate,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Pattern{}, 0, err
		}
		return Pattern{}, 0, fmt.Errorf("failed to scan pattern row: %w", err)
	}

	p.Skill = tier.Skill(skill)
	p.ContentType = ContentType(contentType)
	p.UserContext = userContext.String
	p.SourceDigest = digest.String
	p.CreatedAt = time.Unix(0, createdAt)

	var err error
	if p.Steps, err = jsonToList(steps); err != nil {
		log.Printf("Warning: failed to parse steps for pattern %s: %v", p.ID, err)
	}
	if p.Fixes, err = jsonToList(fixes); err != nil {
		log.Printf("Warning: failed to parse fixes for pattern %s: %v", p.ID, err)
	}
	if len(p.Fixes) == 0 {
		p.Fixes = nil
	}
	if err := json.Unmarshal([]byte(metrics), &p.Metrics); err != nil {
		log.Printf("Warning: failed to parse metrics for pattern %s: %v", p.ID, err)
	}

	return p, seq, nil
}
