package analytics

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/khanglvm/skill-hub/internal/storage"
)

const (
	// usageWeight is the weight for reuse count in the score (0.6 = 60%).
	usageWeight = 0.6

	// recencyWeight is the weight for recency in the score (0.3 = 30%).
	recencyWeight = 0.3

	// successWeight is the weight for success rate in the score (0.1 = 10%).
	successWeight = 0.1

	// usageSaturation is the reuse count treated as "heavily used".
	usageSaturation = 100.0

	// recencyHalfLife is the half-life for exponential decay (7 days).
	recencyHalfLife = 7 * 24 * time.Hour
)

// PatternScore is a pattern with its ranking score.
type PatternScore struct {
	PatternID   string  `json:"patternId"`
	Summary     string  `json:"summary"`
	UsageCount  int     `json:"usageCount"`
	SuccessRate float64 `json:"successRate"`
	Score       float64 `json:"score"`
}

// Score rates a pattern as of now.
// Formula: 0.6*usage + 0.3*recency + 0.1*successRate
func Score(p storage.Pattern, now time.Time) float64 {
	return usageWeight*usageComponent(p) +
		recencyWeight*recencyComponent(p, now) +
		successWeight*p.SuccessRate
}

// usageComponent normalizes the reuse count to 0-1.
func usageComponent(p storage.Pattern) float64 {
	return math.Min(float64(p.UsageCount)/usageSaturation, 1.0)
}

// recencyComponent decays exponentially with pattern age:
// 1.0 when new, 0.5 after a week, 0.25 after two.
func recencyComponent(p storage.Pattern, now time.Time) float64 {
	age := now.Sub(p.CreatedAt)
	if age <= 0 {
		return 1.0
	}
	return math.Exp(-math.Ln2 * age.Hours() / recencyHalfLife.Hours())
}

// RankPatterns sorts patterns by score (descending). Equal scores keep
// corpus order.
func RankPatterns(patterns []storage.Pattern, now time.Time) []PatternScore {
	scores := make([]PatternScore, 0, len(patterns))
	for _, p := range patterns {
		scores = append(scores, PatternScore{
			PatternID:   p.ID,
			Summary:     p.Summary,
			UsageCount:  p.UsageCount,
			SuccessRate: p.SuccessRate,
			Score:       Score(p, now),
		})
	}

	slices.SortStableFunc(scores, func(a, b PatternScore) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return scores
}
