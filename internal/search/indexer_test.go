package search

import (
	"errors"
	"fmt"
	"iter"
	"testing"

	"github.com/khanglvm/skill-hub/internal/storage"
	"github.com/khanglvm/skill-hub/internal/tier"
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	indexer, err := NewIndexer()
	if err != nil {
		t.Fatalf("failed to create indexer: %v", err)
	}
	t.Cleanup(func() { indexer.Close() })
	return indexer
}

func samplePatterns() []storage.Pattern {
	return []storage.Pattern{
		{
			ID:          "p-go",
			Skill:       tier.SkillCodeHelper,
			ContentType: storage.ContentCode,
			Summary:     "Concurrent worker pool in Go",
			Steps:       []string{"Create job channel", "Start goroutines"},
		},
		{
			ID:          "p-logo",
			Skill:       tier.SkillGraphicsWizard,
			ContentType: storage.ContentImage,
			Summary:     "Minimal logo with gradient",
			Steps:       []string{"Pick palette", "Render vector"},
			Fixes:       []string{"Increase contrast"},
		},
		{
			ID:          "p-py",
			Skill:       tier.SkillCodeHelper,
			ContentType: storage.ContentCode,
			Summary:     "CSV parser script",
			UserContext: "needed for a gradient boosting dataset",
		},
	}
}

func seq(patterns []storage.Pattern) iter.Seq2[storage.Pattern, error] {
	return func(yield func(storage.Pattern, error) bool) {
		for _, p := range patterns {
			if !yield(p, nil) {
				return
			}
		}
	}
}

func TestIndexPattern(t *testing.T) {
	indexer := newTestIndexer(t)

	for _, p := range samplePatterns() {
		if err := indexer.IndexPattern(p); err != nil {
			t.Fatalf("failed to index pattern: %v", err)
		}
	}

	count, err := indexer.Count()
	if err != nil {
		t.Fatalf("failed to get count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 indexed patterns, got %d", count)
	}

	// Re-indexing the same id replaces the document.
	if err := indexer.IndexPattern(samplePatterns()[0]); err != nil {
		t.Fatalf("failed to re-index pattern: %v", err)
	}
	if count, _ := indexer.Count(); count != 3 {
		t.Errorf("expected re-index to keep count at 3, got %d", count)
	}
}

func TestSearch(t *testing.T) {
	indexer := newTestIndexer(t)
	if _, err := indexer.Rebuild(seq(samplePatterns())); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	results, err := indexer.Search("goroutines", "", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) == 0 || results[0].PatternID != "p-go" {
		t.Fatalf("expected p-go first for 'goroutines', got %+v", results)
	}
	if results[0].Skill != tier.SkillCodeHelper || results[0].ContentType != storage.ContentCode {
		t.Errorf("expected stored fields on hit, got %+v", results[0])
	}
	if results[0].Summary != "Concurrent worker pool in Go" {
		t.Errorf("expected summary on hit, got %q", results[0].Summary)
	}

	// Fixes are searchable.
	results, err = indexer.Search("contrast", "", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 || results[0].PatternID != "p-logo" {
		t.Errorf("expected p-logo for 'contrast', got %+v", results)
	}
}

func TestSearch_SkillFilter(t *testing.T) {
	indexer := newTestIndexer(t)
	if _, err := indexer.Rebuild(seq(samplePatterns())); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	// "gradient" appears in a graphics summary and a code user context.
	results, err := indexer.Search("gradient", tier.SkillCodeHelper, 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 || results[0].PatternID != "p-py" {
		t.Errorf("expected only p-py, got %+v", results)
	}
}

func TestSearch_EmptyQueryMatchesAll(t *testing.T) {
	indexer := newTestIndexer(t)
	if _, err := indexer.Rebuild(seq(samplePatterns())); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	results, err := indexer.Search("", "", 0)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestSearch_NoResults(t *testing.T) {
	indexer := newTestIndexer(t)
	if _, err := indexer.Rebuild(seq(samplePatterns())); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	results, err := indexer.Search("nonexistent_pattern_xyz", "", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results for non-existent query, got %d", len(results))
	}
}

func TestRebuild_LargeCorpus(t *testing.T) {
	indexer := newTestIndexer(t)

	var patterns []storage.Pattern
	for i := 0; i < 1200; i++ {
		patterns = append(patterns, storage.Pattern{
			ID:      fmt.Sprintf("p-%d", i),
			Skill:   tier.SkillCodeHelper,
			Summary: fmt.Sprintf("pattern number %d", i),
		})
	}

	n, err := indexer.Rebuild(seq(patterns))
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if n != 1200 {
		t.Errorf("expected 1200 indexed, got %d", n)
	}
	if count, _ := indexer.Count(); count != 1200 {
		t.Errorf("expected doc count 1200, got %d", count)
	}
}

func TestRebuild_ReadError(t *testing.T) {
	indexer := newTestIndexer(t)

	broken := func(yield func(storage.Pattern, error) bool) {
		if !yield(samplePatterns()[0], nil) {
			return
		}
		yield(storage.Pattern{}, errors.New("disk read"))
	}

	n, err := indexer.Rebuild(broken)
	if err == nil {
		t.Fatal("expected rebuild to fail on read error")
	}
	if n != 1 {
		t.Errorf("expected 1 pattern processed before failure, got %d", n)
	}
}
