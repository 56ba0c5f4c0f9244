/*
Package hub wires the tier catalog, usage ledger, admission control, output
store and learning curator into the operations a presentation layer calls.

Every operation is owner-scoped and safe for concurrent use. The tier an
owner is on is tracked per session here rather than globally, and frozen
into every usage record written on the owner's behalf.
*/
package hub

import (
	"errors"
	"fmt"
	"iter"
	"log"
	"sync"
	"time"

	"github.com/khanglvm/skill-hub/internal/admission"
	"github.com/khanglvm/skill-hub/internal/analytics"
	"github.com/khanglvm/skill-hub/internal/learning"
	"github.com/khanglvm/skill-hub/internal/outputs"
	"github.com/khanglvm/skill-hub/internal/search"
	"github.com/khanglvm/skill-hub/internal/storage"
	"github.com/khanglvm/skill-hub/internal/tier"
	"github.com/khanglvm/skill-hub/internal/usage"
)

var (
	// ErrInvalidAction is returned for finalize actions other than
	// download, copy or discard.
	ErrInvalidAction = errors.New("invalid finalize action")

	// ErrBatchNotPermitted is returned when the owner's tier lacks batch
	// operations.
	ErrBatchNotPermitted = errors.New("batch operations not available on this tier")

	// ErrAnalyticsNotPermitted is returned when the owner's tier lacks
	// analytics access.
	ErrAnalyticsNotPermitted = errors.New("analytics not available on this tier")

	// ErrSearchDisabled is returned when no search index is attached.
	ErrSearchDisabled = errors.New("pattern search is disabled")
)

// Option customizes a Hub during construction.
type Option func(*options)

type options struct {
	defaultTier string
	loc         *time.Location
	now         func() time.Time
	evictOnFull bool
	index       *search.Indexer
}

// WithDefaultTier sets the tier of owners with no assignment.
func WithDefaultTier(name string) Option {
	return func(o *options) { o.defaultTier = name }
}

// WithLocation sets the time zone that defines quota days.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

// WithClock overrides the clock shared by every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithEvictOnFull selects FIFO eviction (true) or rejection when an owner
// is at capacity.
func WithEvictOnFull(evict bool) Option {
	return func(o *options) { o.evictOnFull = evict }
}

// WithIndexer enables pattern search. The index is rebuilt from the corpus
// when the hub is created.
func WithIndexer(idx *search.Indexer) Option {
	return func(o *options) { o.index = idx }
}

// Hub is the engine's exposed surface.
type Hub struct {
	catalog   *tier.Catalog
	ledger    *usage.Ledger
	admission *admission.Controller
	store     *outputs.Store
	curator   *learning.Curator
	analytics *analytics.Aggregator
	index     *search.Indexer

	defaultTier tier.Tier

	mu       sync.RWMutex
	sessions map[string]string // owner -> tier name
}

// New builds a hub over an initialized store.
func New(store storage.Storage, catalog *tier.Catalog, opts ...Option) (*Hub, error) {
	o := options{
		defaultTier: "Free",
		loc:         time.Local,
		now:         time.Now,
		evictOnFull: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	def, err := catalog.Get(o.defaultTier)
	if err != nil {
		return nil, fmt.Errorf("default tier: %w", err)
	}

	ledger := usage.NewLedger(store, usage.WithClock(o.now), usage.WithLocation(o.loc))
	outputStore := outputs.NewStore(ledger,
		outputs.WithClock(o.now),
		outputs.WithEvictOnFull(o.evictOnFull),
	)

	curatorOpts := []learning.Option{learning.WithClock(o.now)}
	if o.index != nil {
		curatorOpts = append(curatorOpts, learning.WithIndexer(o.index))
	}
	curator := learning.NewCurator(outputStore, store, ledger, curatorOpts...)

	h := &Hub{
		catalog:     catalog,
		ledger:      ledger,
		admission:   admission.NewController(catalog, ledger),
		store:       outputStore,
		curator:     curator,
		analytics:   analytics.NewAggregator(ledger, curator),
		index:       o.index,
		defaultTier: def,
		sessions:    make(map[string]string),
	}

	if h.index != nil {
		n, err := h.index.Rebuild(curator.Export())
		if err != nil {
			log.Printf("Warning: pattern index rebuild incomplete (%d indexed): %v", n, err)
		}
	}
	return h, nil
}

// Catalog returns the tier catalog.
func (h *Hub) Catalog() *tier.Catalog {
	return h.catalog
}

// Ledger returns the usage ledger.
func (h *Hub) Ledger() *usage.Ledger {
	return h.ledger
}

// Analytics returns the aggregator for operator-level reports.
func (h *Hub) Analytics() *analytics.Aggregator {
	return h.analytics
}

// TierOf returns the tier owner is currently on.
func (h *Hub) TierOf(owner string) tier.Tier {
	h.mu.RLock()
	name, ok := h.sessions[owner]
	h.mu.RUnlock()

	if !ok {
		return h.defaultTier
	}
	t, err := h.catalog.Get(name)
	if err != nil {
		return h.defaultTier
	}
	return t
}

// SetTier moves owner to the named tier. If the new tier retains fewer
// outputs than owner holds, the oldest are evicted and returned. Records
// already written keep the tier they were written under.
func (h *Hub) SetTier(owner, name string) (tier.Tier, []outputs.Output, error) {
	if owner == "" {
		return tier.Tier{}, nil, fmt.Errorf("set tier: owner is required")
	}
	t, err := h.catalog.Get(name)
	if err != nil {
		return tier.Tier{}, nil, err
	}

	h.mu.Lock()
	h.sessions[owner] = t.Name
	h.mu.Unlock()

	evicted, err := h.store.EvictOldestIfOverCapacity(owner, t)
	return t, evicted, err
}

// CanProceed checks owner's quota for skill on their current tier.
func (h *Hub) CanProceed(owner string, skill tier.Skill) (admission.Result, error) {
	return h.admission.CanProceed(owner, h.TierOf(owner), skill)
}

// AddOutput stores out and records its generate event. Evicted outputs
// are reported in the result. If the generate record cannot be written
// the output is withdrawn and the ledger error returned.
func (h *Hub) AddOutput(out outputs.Output) (outputs.AddResult, error) {
	t := h.TierOf(out.Owner)

	res, err := h.store.Add(t, out)
	if err != nil {
		return outputs.AddResult{}, err
	}

	_, err = h.ledger.Record(storage.UsageRecord{
		Owner:    res.Output.Owner,
		Skill:    res.Output.Skill,
		Action:   storage.ActionGenerate,
		OutputID: res.Output.ID,
		Tier:     t.Name,
	})
	if err != nil {
		h.store.Remove(res.Output.ID)
		return outputs.AddResult{}, err
	}
	return res, nil
}

// GetOutput returns a held output.
func (h *Hub) GetOutput(id string) (outputs.Output, error) {
	return h.store.Get(id)
}

// ListOutputs returns owner's held outputs, optionally for one skill.
func (h *Hub) ListOutputs(owner string, skill tier.Skill) []outputs.Output {
	return h.store.ListBySkill(owner, skill)
}

// PromoteOutput promotes a held output into the learning corpus. A missing
// or already finalized output wraps learning.ErrNothingToPromote.
func (h *Hub) PromoteOutput(req learning.PromoteRequest) (storage.Pattern, error) {
	out, err := h.store.Get(req.OutputID)
	if errors.Is(err, outputs.ErrNotFound) {
		return storage.Pattern{}, fmt.Errorf("output %s: %w", req.OutputID, learning.ErrNothingToPromote)
	}
	if err != nil {
		return storage.Pattern{}, err
	}

	req.Tier = h.TierOf(out.Owner).Name
	return h.curator.Promote(req)
}

// Reinforce records one reuse outcome for a pattern.
func (h *Hub) Reinforce(patternID string, success bool) (storage.Pattern, error) {
	return h.curator.Reinforce(patternID, success)
}

// GetPattern returns a corpus pattern.
func (h *Hub) GetPattern(id string) (storage.Pattern, error) {
	return h.curator.Get(id)
}

// SearchPatterns finds corpus patterns by text, optionally for one skill.
func (h *Hub) SearchPatterns(text string, skill tier.Skill, limit int) ([]search.Result, error) {
	if h.index == nil {
		return nil, ErrSearchDisabled
	}
	return h.index.Search(text, skill, limit)
}

// CorpusExport yields the learning corpus in creation order.
func (h *Hub) CorpusExport() iter.Seq2[storage.Pattern, error] {
	return h.curator.Export()
}

// AnalyticsReport builds owner's dashboard. The owner's tier must have
// analytics access.
func (h *Hub) AnalyticsReport(owner string) (analytics.Report, error) {
	result, err := h.CanProceed(owner, tier.SkillAnalytics)
	if err != nil {
		return analytics.Report{}, err
	}
	if !result.Allowed {
		return analytics.Report{}, fmt.Errorf("%w: %s", ErrAnalyticsNotPermitted, result.Reason)
	}
	return h.analytics.Report(owner, analytics.DefaultReportOptions())
}

// Close releases the search index. The storage backend is owned by the
// caller.
func (h *Hub) Close() error {
	if h.index != nil {
		return h.index.Close()
	}
	return nil
}
