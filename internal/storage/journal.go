package storage

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/khanglvm/skill-hub/internal/codec"
)

// journalKind tags each record in the journal file.
type journalKind uint8

const (
	kindUsage   journalKind = 1
	kindPattern journalKind = 2
	kindStats   journalKind = 3

	// kindPromotion carries a pattern and its learn record in one entry.
	kindPromotion journalKind = 4
)

// journalEntry is one record of the CBOR sequence on disk.
type journalEntry struct {
	Kind      journalKind   `json:"k"`
	Usage     *UsageRecord  `json:"u,omitempty"`
	Pattern   *Pattern      `json:"p,omitempty"`
	PatternID string        `json:"id,omitempty"`
	Stats     *PatternStats `json:"s,omitempty"`
}

// JournalStorage is an append-only CBOR log of typed records. Init replays
// the log into memory; every derived counter is rebuilt from it.
type JournalStorage struct {
	path       string
	mu         sync.RWMutex
	file       *os.File
	usage      []UsageRecord
	patterns   []Pattern
	patternIdx map[string]int
	initOnce   sync.Once
	initErr    error
}

// NewJournalStorage creates a journal-backed storage at path.
func NewJournalStorage(path string) *JournalStorage {
	return &JournalStorage{
		path:       path,
		patternIdx: make(map[string]int),
	}
}

// Init replays the journal and opens it for appending.
func (j *JournalStorage) Init() error {
	j.initOnce.Do(func() {
		if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
			j.initErr = fmt.Errorf("failed to create journal directory: %w", err)
			return
		}
		if err := j.replay(); err != nil {
			j.initErr = err
			return
		}
		f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			j.initErr = fmt.Errorf("failed to open journal: %w", err)
			return
		}
		j.file = f
	})
	return j.initErr
}

// replay reads every complete record. A torn trailing record (from a crash
// mid-write) is truncated away.
func (j *JournalStorage) replay() error {
	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open journal for replay: %w", err)
	}
	defer f.Close()

	dec := codec.NewDecoder(f)
	good := 0
	for {
		var entry journalEntry
		err := dec.Decode(&entry)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			log.Printf("Warning: journal %s has a torn record at offset %d, truncating", j.path, good)
			return os.Truncate(j.path, int64(good))
		}
		if err != nil {
			return fmt.Errorf("failed to replay journal at offset %d: %w", good, err)
		}
		j.apply(entry)
		good = dec.NumBytesRead()
	}
}

// apply folds an entry into the in-memory state. Caller holds j.mu or is Init.
func (j *JournalStorage) apply(entry journalEntry) {
	switch entry.Kind {
	case kindUsage:
		if entry.Usage != nil {
			j.usage = append(j.usage, *entry.Usage)
		}
	case kindPattern:
		if entry.Pattern != nil {
			j.patternIdx[entry.Pattern.ID] = len(j.patterns)
			j.patterns = append(j.patterns, *entry.Pattern)
		}
	case kindPromotion:
		if entry.Pattern != nil && entry.Usage != nil {
			j.patternIdx[entry.Pattern.ID] = len(j.patterns)
			j.patterns = append(j.patterns, *entry.Pattern)
			j.usage = append(j.usage, *entry.Usage)
		}
	case kindStats:
		if idx, ok := j.patternIdx[entry.PatternID]; ok && entry.Stats != nil {
			j.patterns[idx].PatternStats = *entry.Stats
		}
	default:
		log.Printf("Warning: unknown journal record kind %d", entry.Kind)
	}
}

// write appends and fsyncs one entry. Caller holds j.mu.
func (j *JournalStorage) write(entry journalEntry) error {
	if j.file == nil {
		return ErrUnavailable
	}
	data, err := codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode journal record: %w", err)
	}
	if _, err := j.file.Write(data); err != nil {
		return fmt.Errorf("failed to append journal record: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal: %w", err)
	}
	return nil
}

// AppendUsage appends a usage record.
func (j *JournalStorage) AppendUsage(rec UsageRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := journalEntry{Kind: kindUsage, Usage: &rec}
	if err := j.write(entry); err != nil {
		return err
	}
	j.apply(entry)
	return nil
}

// CountUsage counts matching usage records.
func (j *JournalStorage) CountUsage(q UsageQuery) (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.file == nil {
		return 0, ErrUnavailable
	}
	count := 0
	for _, rec := range j.usage {
		if q.Matches(rec) {
			count++
		}
	}
	return count, nil
}

// UsageHistory yields a snapshot of owner's records sorted by timestamp.
func (j *JournalStorage) UsageHistory(owner string) iter.Seq2[UsageRecord, error] {
	return func(yield func(UsageRecord, error) bool) {
		j.mu.RLock()
		if j.file == nil {
			j.mu.RUnlock()
			yield(UsageRecord{}, ErrUnavailable)
			return
		}
		var snapshot []UsageRecord
		for _, rec := range j.usage {
			if owner == "" || rec.Owner == owner {
				snapshot = append(snapshot, rec)
			}
		}
		j.mu.RUnlock()

		slices.SortStableFunc(snapshot, func(a, b UsageRecord) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
		for _, rec := range snapshot {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// AppendPattern appends a pattern.
func (j *JournalStorage) AppendPattern(p Pattern) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.patternIdx[p.ID]; exists {
		return fmt.Errorf("pattern %s already exists", p.ID)
	}
	entry := journalEntry{Kind: kindPattern, Pattern: &p}
	if err := j.write(entry); err != nil {
		return err
	}
	j.apply(entry)
	return nil
}

// AppendPromotion appends a pattern and its learn record as one entry, so a
// torn write drops both on replay.
func (j *JournalStorage) AppendPromotion(p Pattern, rec UsageRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.patternIdx[p.ID]; exists {
		return fmt.Errorf("pattern %s already exists", p.ID)
	}
	entry := journalEntry{Kind: kindPromotion, Pattern: &p, Usage: &rec}
	if err := j.write(entry); err != nil {
		return err
	}
	j.apply(entry)
	return nil
}

// UpdatePatternStats appends a stats record for a pattern.
func (j *JournalStorage) UpdatePatternStats(id string, stats PatternStats) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, ok := j.patternIdx[id]; !ok {
		return fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	entry := journalEntry{Kind: kindStats, PatternID: id, Stats: &stats}
	if err := j.write(entry); err != nil {
		return err
	}
	j.apply(entry)
	return nil
}

// GetPattern returns a pattern by id.
func (j *JournalStorage) GetPattern(id string) (Pattern, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	idx, ok := j.patternIdx[id]
	if !ok {
		return Pattern{}, fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	return clonePattern(j.patterns[idx]), nil
}

// Patterns yields a snapshot of all patterns in append order.
func (j *JournalStorage) Patterns() iter.Seq2[Pattern, error] {
	return func(yield func(Pattern, error) bool) {
		j.mu.RLock()
		snapshot := make([]Pattern, len(j.patterns))
		for i, p := range j.patterns {
			snapshot[i] = clonePattern(p)
		}
		j.mu.RUnlock()

		for _, p := range snapshot {
			if !yield(p, nil) {
				return
			}
		}
	}
}

// Close closes the journal file.
func (j *JournalStorage) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	if err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}

func clonePattern(p Pattern) Pattern {
	p.Steps = slices.Clone(p.Steps)
	p.Fixes = slices.Clone(p.Fixes)
	return p
}
