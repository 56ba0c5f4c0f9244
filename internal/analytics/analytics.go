/*
Package analytics computes read-only rollups over the usage ledger and the
learning corpus for dashboards.

Nothing is cached: every call re-reads the ledger and corpus, so results
are never staler than the last recorded event.
*/
package analytics

import (
	"cmp"
	"fmt"
	"iter"
	"maps"
	"slices"
	"time"

	"github.com/khanglvm/skill-hub/internal/storage"
	"github.com/khanglvm/skill-hub/internal/tier"
)

// UsageSource is the ledger side. *usage.Ledger satisfies it.
type UsageSource interface {
	History(owner string) iter.Seq2[storage.UsageRecord, error]
	Location() *time.Location
	Now() time.Time
}

// PatternSource is the corpus side. *learning.Curator satisfies it.
type PatternSource interface {
	Export() iter.Seq2[storage.Pattern, error]
}

// Aggregator computes rollups on demand.
type Aggregator struct {
	usage    UsageSource
	patterns PatternSource
}

// NewAggregator builds an aggregator.
func NewAggregator(usage UsageSource, patterns PatternSource) *Aggregator {
	return &Aggregator{usage: usage, patterns: patterns}
}

// SkillCount pairs a skill with an event count.
type SkillCount struct {
	Skill tier.Skill `json:"skill"`
	Count int        `json:"count"`
}

// WeekBucket summarizes the patterns added during one calendar week.
type WeekBucket struct {
	// Start is Monday 00:00 in the ledger's time zone.
	Start              time.Time `json:"start"`
	PatternsAdded      int       `json:"patternsAdded"`
	AverageSuccessRate float64   `json:"averageSuccessRate"`
}

// TotalsBySkill counts owner's records per skill. An empty owner covers
// every owner; an empty action counts every action.
func (a *Aggregator) TotalsBySkill(owner string, action storage.Action) (map[tier.Skill]int, error) {
	totals := make(map[tier.Skill]int)
	for rec, err := range a.usage.History(owner) {
		if err != nil {
			return nil, fmt.Errorf("failed to read usage history: %w", err)
		}
		if action == "" || rec.Action == action {
			totals[rec.Skill]++
		}
	}
	return totals, nil
}

// TotalsByAction counts owner's records per action.
func (a *Aggregator) TotalsByAction(owner string) (map[storage.Action]int, error) {
	totals := make(map[storage.Action]int)
	for rec, err := range a.usage.History(owner) {
		if err != nil {
			return nil, fmt.Errorf("failed to read usage history: %w", err)
		}
		totals[rec.Action]++
	}
	return totals, nil
}

// MostUsedSkills returns the top n skills by generate count, ties broken
// by name. n <= 0 returns every skill.
func (a *Aggregator) MostUsedSkills(owner string, n int) ([]SkillCount, error) {
	totals, err := a.TotalsBySkill(owner, storage.ActionGenerate)
	if err != nil {
		return nil, err
	}

	ranked := make([]SkillCount, 0, len(totals))
	for _, skill := range slices.Sorted(maps.Keys(totals)) {
		ranked = append(ranked, SkillCount{Skill: skill, Count: totals[skill]})
	}
	slices.SortStableFunc(ranked, func(x, y SkillCount) int {
		return cmp.Compare(y.Count, x.Count)
	})

	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

// collectPatterns reads owner's patterns (every owner if empty).
func (a *Aggregator) collectPatterns(owner string) ([]storage.Pattern, error) {
	var patterns []storage.Pattern
	for p, err := range a.patterns.Export() {
		if err != nil {
			return nil, fmt.Errorf("failed to read corpus: %w", err)
		}
		if owner == "" || p.Owner == owner {
			patterns = append(patterns, p)
		}
	}
	return patterns, nil
}

// TotalsByContentType counts owner's patterns per content type.
func (a *Aggregator) TotalsByContentType(owner string) (map[storage.ContentType]int, error) {
	patterns, err := a.collectPatterns(owner)
	if err != nil {
		return nil, err
	}
	totals := make(map[storage.ContentType]int)
	for _, p := range patterns {
		totals[p.ContentType]++
	}
	return totals, nil
}

// PatternsBySkill counts owner's patterns per source skill.
func (a *Aggregator) PatternsBySkill(owner string) (map[tier.Skill]int, error) {
	patterns, err := a.collectPatterns(owner)
	if err != nil {
		return nil, err
	}
	totals := make(map[tier.Skill]int)
	for _, p := range patterns {
		totals[p.Skill]++
	}
	return totals, nil
}

// AverageSuccessRate returns the mean success rate over owner's patterns
// and how many patterns it covers. An empty corpus averages to 0.
func (a *Aggregator) AverageSuccessRate(owner string) (float64, int, error) {
	patterns, err := a.collectPatterns(owner)
	if err != nil {
		return 0, 0, err
	}
	return meanSuccess(patterns), len(patterns), nil
}

func meanSuccess(patterns []storage.Pattern) float64 {
	if len(patterns) == 0 {
		return 0
	}
	var sum float64
	for _, p := range patterns {
		sum += p.SuccessRate
	}
	return sum / float64(len(patterns))
}

// weekStart returns Monday 00:00 of the week containing t in loc.
func weekStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	offset := (int(local.Weekday()) + 6) % 7 // days since Monday
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return day.AddDate(0, 0, -offset)
}

// WeeklyTrend buckets owner's patterns by creation week for the last
// weeks weeks, oldest first, ending with the current week.
func (a *Aggregator) WeeklyTrend(owner string, weeks int) ([]WeekBucket, error) {
	if weeks <= 0 {
		return nil, nil
	}
	patterns, err := a.collectPatterns(owner)
	if err != nil {
		return nil, err
	}

	loc := a.usage.Location()
	current := weekStart(a.usage.Now(), loc)

	buckets := make([]WeekBucket, weeks)
	grouped := make([][]storage.Pattern, weeks)
	for i := range buckets {
		buckets[i].Start = current.AddDate(0, 0, -7*(weeks-1-i))
	}

	end := current.AddDate(0, 0, 7)
	for _, p := range patterns {
		if p.CreatedAt.Before(buckets[0].Start) || !p.CreatedAt.Before(end) {
			continue
		}
		i := weeks - 1
		for i > 0 && p.CreatedAt.Before(buckets[i].Start) {
			i--
		}
		grouped[i] = append(grouped[i], p)
	}

	for i := range buckets {
		buckets[i].PatternsAdded = len(grouped[i])
		buckets[i].AverageSuccessRate = meanSuccess(grouped[i])
	}
	return buckets, nil
}

// Report is the combined dashboard view.
type Report struct {
	Owner              string                      `json:"owner,omitempty"`
	GeneratedAt        time.Time                   `json:"generatedAt"`
	UsageBySkill       map[tier.Skill]int          `json:"usageBySkill"`
	UsageByAction      map[storage.Action]int      `json:"usageByAction"`
	MostUsedSkills     []SkillCount                `json:"mostUsedSkills"`
	PatternCount       int                         `json:"patternCount"`
	PatternsBySkill    map[tier.Skill]int          `json:"patternsBySkill"`
	PatternsByType     map[storage.ContentType]int `json:"patternsByContentType"`
	AverageSuccessRate float64                     `json:"averageSuccessRate"`
	WeeklyTrend        []WeekBucket                `json:"weeklyTrend"`
	TopPatterns        []PatternScore              `json:"topPatterns"`
}

// ReportOptions sizes the list sections of a Report.
type ReportOptions struct {
	TopSkills   int
	Weeks       int
	TopPatterns int
}

// DefaultReportOptions returns the dashboard defaults.
func DefaultReportOptions() ReportOptions {
	return ReportOptions{TopSkills: 3, Weeks: 4, TopPatterns: 5}
}

// Report builds every rollup for owner (every owner if empty).
func (a *Aggregator) Report(owner string, opts ReportOptions) (Report, error) {
	r := Report{Owner: owner, GeneratedAt: a.usage.Now()}

	var err error
	if r.UsageBySkill, err = a.TotalsBySkill(owner, storage.ActionGenerate); err != nil {
		return Report{}, err
	}
	if r.UsageByAction, err = a.TotalsByAction(owner); err != nil {
		return Report{}, err
	}
	if r.MostUsedSkills, err = a.MostUsedSkills(owner, opts.TopSkills); err != nil {
		return Report{}, err
	}

	patterns, err := a.collectPatterns(owner)
	if err != nil {
		return Report{}, err
	}
	r.PatternCount = len(patterns)
	r.PatternsBySkill = make(map[tier.Skill]int)
	r.PatternsByType = make(map[storage.ContentType]int)
	for _, p := range patterns {
		r.PatternsBySkill[p.Skill]++
		r.PatternsByType[p.ContentType]++
	}
	r.AverageSuccessRate = meanSuccess(patterns)

	if r.WeeklyTrend, err = a.WeeklyTrend(owner, opts.Weeks); err != nil {
		return Report{}, err
	}

	ranked := RankPatterns(patterns, r.GeneratedAt)
	if opts.TopPatterns > 0 && len(ranked) > opts.TopPatterns {
		ranked = ranked[:opts.TopPatterns]
	}
	r.TopPatterns = ranked
	return r, nil
}
