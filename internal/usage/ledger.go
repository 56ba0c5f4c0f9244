/*
Package usage implements the append-only usage ledger.

Every lifecycle event (generate, download, copy, discard, learn) is written
as one immutable storage.UsageRecord. Daily quotas are not counters that a
job resets at midnight; they are derived by filtering records on the
calendar day in the ledger's time zone, so a restart or a day boundary
needs no special handling.
*/
package usage

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/khanglvm/skill-hub/internal/storage"
	"github.com/khanglvm/skill-hub/internal/tier"
)

// ErrLedgerWrite matches every LedgerWriteError via errors.Is.
var ErrLedgerWrite = errors.New("ledger write failure")

// LedgerWriteError reports that an audit event could not be persisted.
// It is the one fatal error category of the engine: callers must abort
// the in-flight request rather than continue without the record.
type LedgerWriteError struct {
	Op  string
	Err error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("ledger write failure (%s): %v", e.Op, e.Err)
}

func (e *LedgerWriteError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrLedgerWrite) true for any LedgerWriteError.
func (e *LedgerWriteError) Is(target error) bool { return target == ErrLedgerWrite }

// Option customizes a Ledger during construction.
type Option func(*Ledger)

// WithClock overrides the clock used to stamp records and compute "today".
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithLocation sets the time zone that defines calendar days.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// Ledger is the append-only record of lifecycle events.
type Ledger struct {
	store storage.Storage
	now   func() time.Time
	loc   *time.Location
}

// NewLedger builds a ledger over an initialized store.
func NewLedger(store storage.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		now:   time.Now,
		loc:   time.Local,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the ledger clock's current time.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// Location returns the ledger's time zone.
func (l *Ledger) Location() *time.Location {
	return l.loc
}

// Record appends an event. A missing ID or timestamp is filled in; the
// stored record is returned. Storage failures are wrapped in
// *LedgerWriteError and must not be ignored.
func (l *Ledger) Record(rec storage.UsageRecord) (storage.UsageRecord, error) {
	rec, err := l.prepare(rec)
	if err != nil {
		return storage.UsageRecord{}, err
	}
	if err := l.store.AppendUsage(rec); err != nil {
		return storage.UsageRecord{}, &LedgerWriteError{Op: string(rec.Action), Err: err}
	}
	return rec, nil
}

// RecordPromotion appends pattern and its learn record in a single write.
// On failure neither is stored.
func (l *Ledger) RecordPromotion(pattern storage.Pattern, rec storage.UsageRecord) (storage.UsageRecord, error) {
	if rec.Action != storage.ActionLearn {
		return storage.UsageRecord{}, fmt.Errorf("usage record: promotion needs action %q, got %q", storage.ActionLearn, rec.Action)
	}
	rec, err := l.prepare(rec)
	if err != nil {
		return storage.UsageRecord{}, err
	}
	if err := l.store.AppendPromotion(pattern, rec); err != nil {
		return storage.UsageRecord{}, &LedgerWriteError{Op: "promote", Err: err}
	}
	return rec, nil
}

func (l *Ledger) prepare(rec storage.UsageRecord) (storage.UsageRecord, error) {
	if rec.Owner == "" {
		return storage.UsageRecord{}, fmt.Errorf("usage record: owner is required")
	}
	if _, err := storage.ParseAction(string(rec.Action)); err != nil {
		return storage.UsageRecord{}, fmt.Errorf("usage record: %w", err)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}
	return rec, nil
}

// DayBounds returns the [start, end) calendar day containing t in the
// ledger's time zone. DST days are 23 or 25 hours long.
func (l *Ledger) DayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(l.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, l.loc)
	return start, start.AddDate(0, 0, 1)
}

// CountToday counts owner's records for skill and action on the current
// calendar day. "Today" is recomputed from the clock on every call.
func (l *Ledger) CountToday(owner string, skill tier.Skill, action storage.Action) (int, error) {
	return l.CountOn(owner, skill, action, l.now())
}

// CountOn counts owner's records for skill and action on the calendar day
// containing day.
func (l *Ledger) CountOn(owner string, skill tier.Skill, action storage.Action, day time.Time) (int, error) {
	start, end := l.DayBounds(day)
	count, err := l.store.CountUsage(storage.UsageQuery{
		Owner:  owner,
		Skill:  skill,
		Action: action,
		From:   start,
		To:     end,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count usage for %s/%s: %w", owner, skill, err)
	}
	return count, nil
}

// History yields owner's records in ascending timestamp order. Pass an
// empty owner for every owner. The sequence is finite and restartable.
func (l *Ledger) History(owner string) iter.Seq2[storage.UsageRecord, error] {
	return l.store.UsageHistory(owner)
}
