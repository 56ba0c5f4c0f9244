package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/khanglvm/skill-hub/internal/tier"
)

// backends runs a test against every Storage implementation.
func backends(t *testing.T, fn func(t *testing.T, store Storage)) {
	t.Run("sqlite", func(t *testing.T) {
		store := NewStorage(filepath.Join(t.TempDir(), "ledger.db"))
		if err := store.Init(); err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		defer store.Close()
		fn(t, store)
	})
	t.Run("journal", func(t *testing.T) {
		store := NewJournalStorage(filepath.Join(t.TempDir(), "ledger.journal"))
		if err := store.Init(); err != nil {
			t.Fatalf("Init failed: %v", err)
		}
		defer store.Close()
		fn(t, store)
	})
}

func TestCountUsage(t *testing.T) {
	backends(t, func(t *testing.T, store Storage) {
		day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		records := []UsageRecord{
			{ID: "1", Owner: "alice", Skill: tier.SkillCodeHelper, Action: ActionGenerate, Timestamp: day.Add(1 * time.Hour), Tier: "Free"},
			{ID: "2", Owner: "alice", Skill: tier.SkillCodeHelper, Action: ActionGenerate, Timestamp: day.Add(23 * time.Hour), Tier: "Free"},
			{ID: "3", Owner: "alice", Skill: tier.SkillCodeHelper, Action: ActionGenerate, Timestamp: day.Add(24 * time.Hour), Tier: "Free"},
			{ID: "4", Owner: "alice", Skill: tier.SkillCodeHelper, Action: ActionDownload, Timestamp: day.Add(2 * time.Hour), Tier: "Free", OutputID: "o1"},
			{ID: "5", Owner: "bob", Skill: tier.SkillCodeHelper, Action: ActionGenerate, Timestamp: day.Add(3 * time.Hour), Tier: "Pro"},
		}
		for _, rec := range records {
			if err := store.AppendUsage(rec); err != nil {
				t.Fatalf("AppendUsage failed: %v", err)
			}
		}

		count, err := store.CountUsage(UsageQuery{
			Owner:  "alice",
			Skill:  tier.SkillCodeHelper,
			Action: ActionGenerate,
			From:   day,
			To:     day.Add(24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("CountUsage failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 generate records on the day, got %d", count)
		}
	})
}

func TestUsageHistoryOrderAndFields(t *testing.T) {
	backends(t, func(t *testing.T, store Storage) {
		base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
		for i, offset := range []time.Duration{3, 1, 2} {
			rec := UsageRecord{
				ID:        string(rune('a' + i)),
				Owner:     "alice",
				Skill:     tier.SkillAudioMaestro,
				Action:    ActionDiscard,
				Timestamp: base.Add(offset * time.Minute),
				OutputID:  "out",
				Tier:      "Pro",
				Automatic: i == 0,
			}
			if err := store.AppendUsage(rec); err != nil {
				t.Fatalf("AppendUsage failed: %v", err)
			}
		}

		var got []UsageRecord
		for rec, err := range store.UsageHistory("alice") {
			if err != nil {
				t.Fatalf("UsageHistory failed: %v", err)
			}
			got = append(got, rec)
		}

		if len(got) != 3 {
			t.Fatalf("expected 3 records, got %d", len(got))
		}
		wantIDs := []string{"b", "c", "a"}
		for i, id := range wantIDs {
			if got[i].ID != id {
				t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
			}
		}
		if !got[2].Automatic {
			t.Error("expected automatic flag to round-trip")
		}
		if got[0].Tier != "Pro" || got[0].OutputID != "out" {
			t.Errorf("unexpected fields: %+v", got[0])
		}

		// Restartable: a second range sees the same records.
		n := 0
		for _, err := range store.UsageHistory("alice") {
			if err != nil {
				t.Fatalf("UsageHistory failed: %v", err)
			}
			n++
		}
		if n != 3 {
			t.Errorf("expected second pass to yield 3, got %d", n)
		}
	})
}

func TestPatterns(t *testing.T) {
	backends(t, func(t *testing.T, store Storage) {
		created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
		for i, id := range []string{"p1", "p2"} {
			p := Pattern{
				ID:             id,
				Owner:          "alice",
				Skill:          tier.SkillCodeHelper,
				ContentType:    ContentCode,
				Summary:        "summary " + id,
				Steps:          []string{"one", "two"},
				Metrics:        Metrics{ExecutionTimeMS: 12.5, QualityScore: 0.9},
				SourceOutputID: "out-" + id,
				CreatedAt:      created.Add(time.Duration(i) * time.Second),
				PatternStats:   PatternStats{UsageCount: 0, SuccessRate: 1.0},
			}
			if err := store.AppendPattern(p); err != nil {
				t.Fatalf("AppendPattern failed: %v", err)
			}
		}

		if err := store.UpdatePatternStats("p1", PatternStats{UsageCount: 2, SuccessRate: 0.5}); err != nil {
			t.Fatalf("UpdatePatternStats failed: %v", err)
		}

		p, err := store.GetPattern("p1")
		if err != nil {
			t.Fatalf("GetPattern failed: %v", err)
		}
		if p.UsageCount != 2 || p.SuccessRate != 0.5 {
			t.Errorf("unexpected stats: %+v", p.PatternStats)
		}
		if len(p.Steps) != 2 || p.Metrics.QualityScore != 0.9 {
			t.Errorf("unexpected pattern body: %+v", p)
		}

		var ids []string
		for p, err := range store.Patterns() {
			if err != nil {
				t.Fatalf("Patterns failed: %v", err)
			}
			ids = append(ids, p.ID)
		}
		if len(ids) != 2 || ids[0] != "p1" || ids[1] != "p2" {
			t.Errorf("expected [p1 p2], got %v", ids)
		}

		if _, err := store.GetPattern("missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := store.UpdatePatternStats("missing", PatternStats{}); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on update, got %v", err)
		}
	})
}

// TestJournalReplay verifies that reopening a journal rebuilds all state.
func TestJournalReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.journal")

	first := NewJournalStorage(path)
	if err := first.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := first.AppendUsage(UsageRecord{ID: "u1", Owner: "alice", Skill: tier.SkillCodeHelper, Action: ActionGenerate, Timestamp: now, Tier: "Free"}); err != nil {
		t.Fatalf("AppendUsage failed: %v", err)
	}
	if err := first.AppendPattern(Pattern{ID: "p1", Summary: "s", CreatedAt: now, PatternStats: PatternStats{SuccessRate: 1}}); err != nil {
		t.Fatalf("AppendPattern failed: %v", err)
	}
	if err := first.UpdatePatternStats("p1", PatternStats{UsageCount: 3, SuccessRate: 2.0 / 3.0}); err != nil {
		t.Fatalf("UpdatePatternStats failed: %v", err)
	}
	first.Close()

	second := NewJournalStorage(path)
	if err := second.Init(); err != nil {
		t.Fatalf("replay Init failed: %v", err)
	}
	defer second.Close()

	count, err := second.CountUsage(UsageQuery{Owner: "alice", Action: ActionGenerate})
	if err != nil {
		t.Fatalf("CountUsage failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 replayed usage record, got %d", count)
	}

	p, err := second.GetPattern("p1")
	if err != nil {
		t.Fatalf("GetPattern failed: %v", err)
	}
	if p.UsageCount != 3 {
		t.Errorf("expected replayed usage count 3, got %d", p.UsageCount)
	}
	if !p.CreatedAt.Equal(now) {
		t.Errorf("expected CreatedAt %v, got %v", now, p.CreatedAt)
	}
}

func TestAppendPromotion(t *testing.T) {
	backends(t, func(t *testing.T, store Storage) {
		now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
		p := Pattern{ID: "p1", Owner: "alice", Skill: tier.SkillCodeHelper, SourceOutputID: "o1", CreatedAt: now, PatternStats: PatternStats{SuccessRate: 1}}
		rec := UsageRecord{ID: "u1", Owner: "alice", Skill: tier.SkillCodeHelper, Action: ActionLearn, OutputID: "o1", Timestamp: now, Tier: "Pro"}

		if err := store.AppendPromotion(p, rec); err != nil {
			t.Fatalf("AppendPromotion failed: %v", err)
		}
		if _, err := store.GetPattern("p1"); err != nil {
			t.Errorf("pattern not stored: %v", err)
		}
		learns, _ := store.CountUsage(UsageQuery{Owner: "alice", Action: ActionLearn})
		if learns != 1 {
			t.Errorf("expected 1 learn record, got %d", learns)
		}

		// Reusing the pattern id fails and must not leave a second learn record.
		rec.ID = "u2"
		if err := store.AppendPromotion(p, rec); err == nil {
			t.Fatal("expected duplicate pattern id to fail")
		}
		learns, _ = store.CountUsage(UsageQuery{Owner: "alice", Action: ActionLearn})
		if learns != 1 {
			t.Errorf("failed promotion left a learn record, got %d", learns)
		}
	})
}

func TestJournalReplayPromotion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.journal")
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	first := NewJournalStorage(path)
	if err := first.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	err := first.AppendPromotion(
		Pattern{ID: "p1", Owner: "alice", SourceOutputID: "o1", CreatedAt: now, PatternStats: PatternStats{SuccessRate: 1}},
		UsageRecord{ID: "u1", Owner: "alice", Skill: tier.SkillCodeHelper, Action: ActionLearn, OutputID: "o1", Timestamp: now, Tier: "Pro"},
	)
	if err != nil {
		t.Fatalf("AppendPromotion failed: %v", err)
	}
	first.Close()

	second := NewJournalStorage(path)
	if err := second.Init(); err != nil {
		t.Fatalf("replay Init failed: %v", err)
	}
	defer second.Close()

	if _, err := second.GetPattern("p1"); err != nil {
		t.Errorf("replayed pattern missing: %v", err)
	}
	if n, _ := second.CountUsage(UsageQuery{Action: ActionLearn}); n != 1 {
		t.Errorf("expected 1 replayed learn record, got %d", n)
	}
}
