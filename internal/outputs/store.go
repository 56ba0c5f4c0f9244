package outputs

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/khanglvm/skill-hub/internal/storage"
	"github.com/khanglvm/skill-hub/internal/tier"
)

// Recorder appends usage records. *usage.Ledger satisfies it.
type Recorder interface {
	Record(rec storage.UsageRecord) (storage.UsageRecord, error)
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithClock overrides the clock used to stamp CreatedAt.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithEvictOnFull selects the policy when an owner is at capacity: evict
// the oldest output (true, the default) or reject the add.
func WithEvictOnFull(evict bool) StoreOption {
	return func(s *Store) {
		s.evictOnFull = evict
	}
}

// Store is a bounded, in-memory holding area for outputs.
//
// Each owner has its own shard and lock, so operations for different
// owners never contend. The id index is shared and guarded separately;
// shard locks are always taken before the index lock.
type Store struct {
	recorder    Recorder
	now         func() time.Time
	evictOnFull bool

	mu     sync.Mutex
	shards map[string]*shard
	index  map[string]string // output id -> owner
}

type shard struct {
	mu      sync.Mutex
	entries []Output // ascending CreatedAt
}

// AddResult describes a successful add.
type AddResult struct {
	Output  Output   `json:"output"`
	Evicted []Output `json:"evicted,omitempty"`
}

// NewStore builds a store that reports evictions to recorder.
func NewStore(recorder Recorder, opts ...StoreOption) *Store {
	s := &Store{
		recorder:    recorder,
		now:         time.Now,
		evictOnFull: true,
		shards:      make(map[string]*shard),
		index:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) shardFor(owner string) *shard {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shards[owner]
	if !ok {
		sh = &shard{}
		s.shards[owner] = sh
	}
	return sh
}

func (s *Store) ownerOf(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.index[id]
	return owner, ok
}

// Add stores out for its owner under tier t.
//
// When the owner is already at t.MaxMemoryOutputs, the oldest outputs are
// evicted (each recorded as an automatic discard) or, with eviction
// disabled, a *CapacityError is returned. If an eviction record cannot be
// written the add is abandoned and the ledger error returned.
func (s *Store) Add(t tier.Tier, out Output) (AddResult, error) {
	if out.Owner == "" {
		return AddResult{}, fmt.Errorf("add output: owner is required")
	}
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = s.now()
	}
	if out.Digest == "" {
		out.Digest = Digest(out.Content)
	}
	out = out.clone()

	sh := s.shardFor(out.Owner)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	bound := max(t.MaxMemoryOutputs, 1)
	if len(sh.entries) >= bound && !s.evictOnFull {
		return AddResult{}, &CapacityError{Owner: out.Owner, Tier: t.Name, Limit: bound}
	}

	// Ids are global, so the check and the claim share one index critical section.
	s.mu.Lock()
	if _, exists := s.index[out.ID]; exists {
		s.mu.Unlock()
		return AddResult{}, fmt.Errorf("add output %s: %w", out.ID, ErrDuplicateID)
	}
	s.index[out.ID] = out.Owner
	s.mu.Unlock()

	pos, _ := slices.BinarySearchFunc(sh.entries, out, func(e, target Output) int {
		if e.CreatedAt.After(target.CreatedAt) {
			return 1
		}
		return -1
	})
	sh.entries = slices.Insert(sh.entries, pos, out)

	// The new output is never its own victim, even when its CreatedAt is
	// older than everything held.
	evicted, err := s.evictLocked(sh, t, bound, out.ID)
	if err != nil {
		s.removeLocked(sh, out.ID)
		return AddResult{}, err
	}
	return AddResult{Output: out.clone(), Evicted: evicted}, nil
}

// EvictOldestIfOverCapacity removes the oldest outputs while owner holds
// more than t allows, recording each as an automatic discard.
func (s *Store) EvictOldestIfOverCapacity(owner string, t tier.Tier) ([]Output, error) {
	sh := s.shardFor(owner)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	return s.evictLocked(sh, t, max(t.MaxMemoryOutputs, 1), "")
}

// evictLocked trims sh to bound, oldest first, skipping keep. Each
// victim's discard record is written before the victim is dropped.
// Caller holds sh.mu.
func (s *Store) evictLocked(sh *shard, t tier.Tier, bound int, keep string) ([]Output, error) {
	var evicted []Output
	for len(sh.entries) > bound {
		victim := sh.entries[0]
		if victim.ID == keep {
			victim = sh.entries[1]
		}
		_, err := s.recorder.Record(storage.UsageRecord{
			Owner:     victim.Owner,
			Skill:     victim.Skill,
			Action:    storage.ActionDiscard,
			OutputID:  victim.ID,
			Tier:      t.Name,
			Automatic: true,
		})
		if err != nil {
			return evicted, err
		}
		s.removeLocked(sh, victim.ID)
		evicted = append(evicted, victim)
	}
	return evicted, nil
}

// removeLocked drops id from sh and the index. Caller holds sh.mu.
func (s *Store) removeLocked(sh *shard, id string) (Output, bool) {
	idx := slices.IndexFunc(sh.entries, func(e Output) bool { return e.ID == id })
	if idx < 0 {
		return Output{}, false
	}
	out := sh.entries[idx]
	sh.entries = slices.Delete(sh.entries, idx, idx+1)

	s.mu.Lock()
	delete(s.index, id)
	s.mu.Unlock()
	return out, true
}

// Get returns a held output.
func (s *Store) Get(id string) (Output, error) {
	owner, ok := s.ownerOf(id)
	if !ok {
		return Output{}, fmt.Errorf("output %s: %w", id, ErrNotFound)
	}

	sh := s.shardFor(owner)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	for _, e := range sh.entries {
		if e.ID == id {
			return e.clone(), nil
		}
	}
	return Output{}, fmt.Errorf("output %s: %w", id, ErrNotFound)
}

// ListBySkill returns owner's held outputs for skill, oldest first.
// An empty skill lists every held output.
func (s *Store) ListBySkill(owner string, skill tier.Skill) []Output {
	sh := s.shardFor(owner)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var out []Output
	for _, e := range sh.entries {
		if skill == "" || e.Skill == skill {
			out = append(out, e.clone())
		}
	}
	return out
}

// Count returns how many outputs owner holds.
func (s *Store) Count(owner string) int {
	sh := s.shardFor(owner)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return len(sh.entries)
}

// Remove drops an output without recording anything. It returns false if
// the id is not held; a missing id is never an error.
func (s *Store) Remove(id string) bool {
	owner, ok := s.ownerOf(id)
	if !ok {
		return false
	}

	sh := s.shardFor(owner)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	_, removed := s.removeLocked(sh, id)
	return removed
}

// Finalize runs terminal on a held output while holding its owner's lock,
// then removes it. If terminal fails the output stays held and the error
// is returned. The boolean is false when the id is not held, in which case
// terminal is not called. At most one Finalize per id ever succeeds.
func (s *Store) Finalize(id string, terminal func(Output) error) (Output, bool, error) {
	owner, ok := s.ownerOf(id)
	if !ok {
		return Output{}, false, nil
	}

	sh := s.shardFor(owner)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	idx := slices.IndexFunc(sh.entries, func(e Output) bool { return e.ID == id })
	if idx < 0 {
		return Output{}, false, nil
	}
	out := sh.entries[idx].clone()

	if err := terminal(out); err != nil {
		return Output{}, true, err
	}

	s.removeLocked(sh, id)
	return out, true, nil
}
