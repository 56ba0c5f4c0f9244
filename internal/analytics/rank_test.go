package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/khanglvm/skill-hub/internal/storage"
)

var rankNow = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func pattern(id string, uses int, rate float64, age time.Duration) storage.Pattern {
	return storage.Pattern{
		ID:           id,
		CreatedAt:    rankNow.Add(-age),
		PatternStats: storage.PatternStats{UsageCount: uses, SuccessRate: rate},
	}
}

func TestUsageComponent_Saturates(t *testing.T) {
	if got := usageComponent(pattern("a", 30, 1, 0)); math.Abs(got-0.3) > 1e-9 {
		t.Errorf("expected 0.3, got %f", got)
	}
	if got := usageComponent(pattern("a", 500, 1, 0)); got != 1.0 {
		t.Errorf("expected usage to saturate at 1.0, got %f", got)
	}
}

func TestRecencyComponent_ExponentialDecay(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want float64
	}{
		{0, 1.0},
		{7 * 24 * time.Hour, 0.5},
		{14 * 24 * time.Hour, 0.25},
		{-time.Hour, 1.0}, // clock skew
	}
	for _, tt := range tests {
		got := recencyComponent(pattern("a", 0, 1, tt.age), rankNow)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("age %v: expected %f, got %f", tt.age, tt.want, got)
		}
	}
}

func TestScore_Components(t *testing.T) {
	p := pattern("a", 50, 0.8, 7*24*time.Hour)
	want := 0.6*0.5 + 0.3*0.5 + 0.1*0.8
	if got := Score(p, rankNow); math.Abs(got-want) > 1e-9 {
		t.Errorf("expected score %f, got %f", want, got)
	}
}

func TestRankPatterns_Sorting(t *testing.T) {
	patterns := []storage.Pattern{
		pattern("stale", 0, 1.0, 60*24*time.Hour),
		pattern("popular", 90, 0.9, 3*24*time.Hour),
		pattern("fresh", 0, 1.0, 0),
	}

	ranked := RankPatterns(patterns, rankNow)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 scores, got %d", len(ranked))
	}

	order := []string{ranked[0].PatternID, ranked[1].PatternID, ranked[2].PatternID}
	want := []string{"popular", "fresh", "stale"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestRankPatterns_Empty(t *testing.T) {
	if got := RankPatterns(nil, rankNow); len(got) != 0 {
		t.Errorf("expected no scores, got %d", len(got))
	}
}
