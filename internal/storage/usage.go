package storage

import (
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/khanglvm/skill-hub/internal/tier"
)

// historyPageSize bounds how many rows one history page reads.
const historyPageSize = 256

// AppendUsage records a usage event.
func (s *SQLiteStorage) AppendUsage(rec UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrUnavailable
	}
	return insertUsage(s.db, rec)
}

func insertUsage(db execer, rec UsageRecord) error {
	query := `
		INSERT INTO usage_records (id, owner, skill, action, timestamp, output_id, tier, automatic)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		rec.ID,
		rec.Owner,
		string(rec.Skill),
		string(rec.Action),
		rec.Timestamp.UnixNano(),
		nullString(rec.OutputID),
		rec.Tier,
		boolToInt(rec.Automatic),
	)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	return nil
}

// CountUsage counts usage records matching the query.
func (s *SQLiteStorage) CountUsage(q UsageQuery) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return 0, ErrUnavailable
	}

	var builder strings.Builder
	var args []interface{}
	builder.WriteString("SELECT COUNT(*) FROM usage_records WHERE 1=1")
	if q.Owner != "" {
		builder.WriteString(" AND owner = ?")
		args = append(args, q.Owner)
	}
	if q.Skill != "" {
		builder.WriteString(" AND skill = ?")
		args = append(args, string(q.Skill))
	}
	if q.Action != "" {
		builder.WriteString(" AND action = ?")
		args = append(args, string(q.Action))
	}
	if !q.From.IsZero() {
		builder.WriteString(" AND timestamp >= ?")
		args = append(args, q.From.UnixNano())
	}
	if !q.To.IsZero() {
		builder.WriteString(" AND timestamp < ?")
		args = append(args, q.To.UnixNano())
	}

	var count int
	if err := s.db.QueryRow(builder.String(), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return count, nil
}

// UsageHistory yields usage records in ascending timestamp order.
//
// Rows are read in pages keyed on (timestamp, seq), so no connection is
// held while the caller processes a record.
func (s *SQLiteStorage) UsageHistory(owner string) iter.Seq2[UsageRecord, error] {
	return func(yield func(UsageRecord, error) bool) {
		lastTS, lastSeq := int64(-1<<63), int64(-1)
		for {
			page, err := s.usagePage(owner, lastTS, lastSeq)
			if err != nil {
				yield(UsageRecord{}, err)
				return
			}
			for _, row := range page {
				if !yield(row.rec, nil) {
					return
				}
				lastTS, lastSeq = row.ts, row.seq
			}
			if len(page) < historyPageSize {
				return
			}
		}
	}
}

type usageRow struct {
	rec UsageRecord
	ts  int64
	seq int64
}

func (s *SQLiteStorage) usagePage(owner string, afterTS, afterSeq int64) ([]usageRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, ErrUnavailable
	}

	query := `
		SELECT seq, id, owner, skill, action, timestamp, output_id, tier, automatic
		FROM usage_records
		WHERE (? = '' OR owner = ?)
		  AND (timestamp > ? OR (timestamp = ? AND seq > ?))
		ORDER BY timestamp ASC, seq ASC
		LIMIT ?
	`

	rows, err := s.db.Query(query, owner, owner, afterTS, afterTS, afterSeq, historyPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage history: %w", err)
	}
	defer rows.Close()

	page := make([]usageRow, 0, historyPageSize)
	for rows.Next() {
		var row usageRow
		var skill, action string
		var outputID sql.NullString
		var automatic int

		if err := rows.Scan(
			&row.seq,
			&row.rec.ID,
			&row.rec.Owner,
			&skill,
			&action,
			&row.ts,
			&outputID,
			&row.rec.Tier,
			&automatic,
		); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}

		row.rec.Skill = tier.Skill(skill)
		row.rec.Action = Action(action)
		row.rec.Timestamp = time.Unix(0, row.ts)
		row.rec.OutputID = outputID.String
		row.rec.Automatic = automatic == 1
		page = append(page, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read usage history: %w", err)
	}
	return page, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
