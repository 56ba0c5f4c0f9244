/*
Package learning curates approved outputs into a corpus of reusable
patterns for a downstream fine-tuning pipeline.

Promotion is a terminal action on an output: the pattern is appended, a
learn usage record is written and the output leaves the store, all while
the owner's shard is locked, so an output is promoted at most once.
Patterns are never deleted; only their usage count and success rate
change afterwards.
*/
package learning

import (
	"errors"
	"fmt"
	"iter"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/khanglvm/skill-hub/internal/outputs"
	"github.com/khanglvm/skill-hub/internal/storage"
	"github.com/khanglvm/skill-hub/internal/usage"
)

var (
	// ErrNothingToPromote is returned when the output is not held, either
	// because it never existed or because it was already finalized.
	ErrNothingToPromote = errors.New("nothing to promote")

	// ErrPatternNotFound is returned when a pattern id is unknown.
	ErrPatternNotFound = errors.New("pattern not found")
)

// Corpus is the persistent side of the learning store.
// storage.Storage satisfies it.
type Corpus interface {
	UpdatePatternStats(id string, stats storage.PatternStats) error
	GetPattern(id string) (storage.Pattern, error)
	Patterns() iter.Seq2[storage.Pattern, error]
}

// Promoter stores a new pattern together with its learn record, all or
// nothing. *usage.Ledger satisfies it.
type Promoter interface {
	RecordPromotion(p storage.Pattern, rec storage.UsageRecord) (storage.UsageRecord, error)
}

// Finalizer runs a terminal action on a held output. *outputs.Store
// satisfies it.
type Finalizer interface {
	Finalize(id string, terminal func(outputs.Output) error) (outputs.Output, bool, error)
}

// Indexer receives newly promoted patterns for search.
type Indexer interface {
	IndexPattern(p storage.Pattern) error
}

// Option customizes a Curator during construction.
type Option func(*Curator)

// WithClock overrides the clock used to stamp patterns.
func WithClock(now func() time.Time) Option {
	return func(c *Curator) {
		c.now = now
	}
}

// WithIndexer attaches a search index. Index failures are logged and
// never block promotion.
func WithIndexer(idx Indexer) Option {
	return func(c *Curator) {
		c.index = idx
	}
}

// Curator promotes outputs into patterns and maintains their statistics.
type Curator struct {
	store    Finalizer
	corpus   Corpus
	promoter Promoter
	index    Indexer
	now      func() time.Time

	// statsMu serializes read-modify-write of pattern statistics.
	statsMu sync.Mutex
}

// NewCurator builds a curator. promoter writes new patterns and their
// learn records.
func NewCurator(store Finalizer, corpus Corpus, promoter Promoter, opts ...Option) *Curator {
	c := &Curator{
		store:    store,
		corpus:   corpus,
		promoter: promoter,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PromoteRequest describes one promotion.
type PromoteRequest struct {
	// OutputID is the held output to promote.
	OutputID string `json:"outputId"`

	// Tier is the promoting owner's tier name, frozen into the learn record.
	Tier string `json:"tier"`

	// Summary describes the pattern. Derived from the output when empty.
	Summary string `json:"summary,omitempty"`

	// Steps are the reasoning steps. Derived from metadata when empty.
	Steps []string `json:"steps,omitempty"`

	// Fixes lists corrections applied to the output.
	Fixes []string `json:"fixes,omitempty"`

	// UserContext is free text stored with the pattern.
	UserContext string `json:"userContext,omitempty"`
}

// Promote turns a held output into a pattern.
//
// A missing or already finalized output yields ErrNothingToPromote and
// creates nothing. The pattern and its learn record are written together;
// a failed write stores neither, returns *usage.LedgerWriteError and leaves
// the output held, so a retry promotes it exactly once.
func (c *Curator) Promote(req PromoteRequest) (storage.Pattern, error) {
	var pattern storage.Pattern

	_, found, err := c.store.Finalize(req.OutputID, func(out outputs.Output) error {
		p := c.buildPattern(out, req)
		_, err := c.promoter.RecordPromotion(p, storage.UsageRecord{
			Owner:    out.Owner,
			Skill:    out.Skill,
			Action:   storage.ActionLearn,
			OutputID: out.ID,
			Tier:     req.Tier,
		})
		if err != nil {
			return err
		}
		pattern = p
		return nil
	})
	if err != nil {
		return storage.Pattern{}, err
	}
	if !found {
		return storage.Pattern{}, fmt.Errorf("output %s: %w", req.OutputID, ErrNothingToPromote)
	}

	if c.index != nil {
		if err := c.index.IndexPattern(pattern); err != nil {
			log.Printf("Warning: failed to index pattern %s: %v", pattern.ID, err)
		}
	}
	return pattern, nil
}

func (c *Curator) buildPattern(out outputs.Output, req PromoteRequest) storage.Pattern {
	steps := req.Steps
	if len(steps) == 0 {
		steps = DefaultSteps(out)
	}
	summary := req.Summary
	if summary == "" {
		summary = defaultSummary(out)
	}

	return storage.Pattern{
		ID:             uuid.NewString(),
		Owner:          out.Owner,
		Skill:          out.Skill,
		ContentType:    Classify(out.Skill),
		Summary:        summary,
		Steps:          steps,
		Fixes:          req.Fixes,
		UserContext:    req.UserContext,
		Metrics:        ExtractMetrics(out.Metadata),
		SourceOutputID: out.ID,
		SourceDigest:   out.Digest,
		CreatedAt:      c.now(),
		PatternStats: storage.PatternStats{
			UsageCount:  0,
			SuccessRate: 1.0,
		},
	}
}

// Reinforce records one reuse of a pattern and folds success into its
// running success rate as an incremental mean over the new usage count.
func (c *Curator) Reinforce(id string, success bool) (storage.Pattern, error) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	p, err := c.corpus.GetPattern(id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Pattern{}, fmt.Errorf("pattern %s: %w", id, ErrPatternNotFound)
	}
	if err != nil {
		return storage.Pattern{}, fmt.Errorf("failed to load pattern %s: %w", id, err)
	}

	p.PatternStats = nextStats(p.PatternStats, success)
	if err := c.corpus.UpdatePatternStats(id, p.PatternStats); err != nil {
		return storage.Pattern{}, &usage.LedgerWriteError{Op: "reinforce", Err: err}
	}
	return p, nil
}

func nextStats(s storage.PatternStats, success bool) storage.PatternStats {
	n := s.UsageCount + 1
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	return storage.PatternStats{
		UsageCount:  n,
		SuccessRate: (s.SuccessRate*float64(n-1) + outcome) / float64(n),
	}
}

// Get returns a pattern by id.
func (c *Curator) Get(id string) (storage.Pattern, error) {
	p, err := c.corpus.GetPattern(id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Pattern{}, fmt.Errorf("pattern %s: %w", id, ErrPatternNotFound)
	}
	return p, err
}

// Export yields the corpus in creation order. The sequence is finite and
// restartable; patterns promoted while ranging may or may not appear.
func (c *Curator) Export() iter.Seq2[storage.Pattern, error] {
	return c.corpus.Patterns()
}
