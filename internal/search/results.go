/*
Package search implements full-text search over the learning corpus.

Patterns are indexed by summary, steps, fixes and user context, with skill
and content type as exact-match filters. The index lives in memory and is
rebuilt from storage when the process starts.
*/
package search

import (
	"github.com/khanglvm/skill-hub/internal/storage"
	"github.com/khanglvm/skill-hub/internal/tier"
)

// Result is a single search hit with its relevance score.
type Result struct {
	PatternID   string              `json:"patternId"`
	Skill       tier.Skill          `json:"skill"`
	ContentType storage.ContentType `json:"contentType"`
	Summary     string              `json:"summary"`
	Score       float64             `json:"score"`
}
