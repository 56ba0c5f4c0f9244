/*
Package storage provides data models for the usage ledger and learning corpus.

These models are the persisted, append-only records: one UsageRecord per
lifecycle event and one Pattern per promoted output. Both are shared by the
SQLite and journal backends.
*/
package storage

import (
	"fmt"
	"time"

	"github.com/khanglvm/skill-hub/internal/tier"
)

// Action is the lifecycle event a UsageRecord describes.
type Action string

const (
	ActionGenerate Action = "generate"
	ActionDownload Action = "download"
	ActionCopy     Action = "copy"
	ActionDiscard  Action = "discard"
	ActionLearn    Action = "learn"
)

// ParseAction validates an action name.
func ParseAction(name string) (Action, error) {
	switch a := Action(name); a {
	case ActionGenerate, ActionDownload, ActionCopy, ActionDiscard, ActionLearn:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action: %q", name)
	}
}

// IsTerminal reports whether the action ends an output's lifecycle.
func (a Action) IsTerminal() bool {
	switch a {
	case ActionDownload, ActionCopy, ActionDiscard, ActionLearn:
		return true
	default:
		return false
	}
}

// UsageRecord is one immutable lifecycle event.
type UsageRecord struct {
	// ID is a unique identifier for the record (UUID).
	ID string `json:"id"`

	// Owner is the session or user the event belongs to.
	Owner string `json:"owner"`

	// Skill is the skill category of the event.
	Skill tier.Skill `json:"skill"`

	// Action is the lifecycle event.
	Action Action `json:"action"`

	// Timestamp is when the event happened (not when it was queried).
	Timestamp time.Time `json:"timestamp"`

	// OutputID references the output, or is empty for aggregate events.
	OutputID string `json:"outputId,omitempty"`

	// Tier is the tier name in effect when the event was written.
	Tier string `json:"tier"`

	// Automatic marks discards caused by eviction rather than the user.
	Automatic bool `json:"automatic,omitempty"`
}

// UsageQuery selects usage records for counting.
// Zero-valued fields match everything; From is inclusive, To exclusive.
type UsageQuery struct {
	Owner  string
	Skill  tier.Skill
	Action Action
	From   time.Time
	To     time.Time
}

// Matches reports whether a record satisfies the query.
func (q UsageQuery) Matches(rec UsageRecord) bool {
	if q.Owner != "" && rec.Owner != q.Owner {
		return false
	}
	if q.Skill != "" && rec.Skill != q.Skill {
		return false
	}
	if q.Action != "" && rec.Action != q.Action {
		return false
	}
	if !q.From.IsZero() && rec.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !rec.Timestamp.Before(q.To) {
		return false
	}
	return true
}

// ContentType classifies what a learning pattern was derived from.
type ContentType string

const (
	ContentCode               ContentType = "code"
	ContentImage              ContentType = "image"
	ContentAudio              ContentType = "audio"
	ContentAnalytics          ContentType = "analytics"
	ContentMiniPersona        ContentType = "mini_persona"
	ContentDonationAutomation ContentType = "donation_automation"
	ContentGeneral            ContentType = "general"
)

// Metrics holds performance measurements extracted from an output.
type Metrics struct {
	ExecutionTimeMS  float64 `json:"executionTimeMs,omitempty"`
	RenderTimeMS     float64 `json:"renderTimeMs,omitempty"`
	ProcessingTimeMS float64 `json:"processingTimeMs,omitempty"`
	QualityScore     float64 `json:"qualityScore,omitempty"`
}

// PatternStats is the mutable part of a pattern.
type PatternStats struct {
	UsageCount  int     `json:"usageCount"`
	SuccessRate float64 `json:"successRate"`
}

// Pattern is a curated summary of an approved output.
type Pattern struct {
	// ID is a unique identifier for the pattern (UUID).
	ID string `json:"id"`

	// Owner is who promoted the source output.
	Owner string `json:"owner"`

	// Skill is the source skill.
	Skill tier.Skill `json:"skill"`

	// ContentType is the classification derived from Skill.
	ContentType ContentType `json:"contentType"`

	// Summary is a natural-language description of the pattern.
	Summary string `json:"summary"`

	// Steps are the ordered reasoning or processing steps.
	Steps []string `json:"steps"`

	// Fixes lists corrections applied to the output, if any.
	Fixes []string `json:"fixes,omitempty"`

	// UserContext is free text supplied at promotion.
	UserContext string `json:"userContext,omitempty"`

	// Metrics are the performance measurements of the source output.
	Metrics Metrics `json:"metrics"`

	// SourceOutputID is the promoted output.
	SourceOutputID string `json:"sourceOutputId"`

	// SourceDigest is the content digest of the promoted output.
	SourceDigest string `json:"sourceDigest,omitempty"`

	// CreatedAt is when the pattern was promoted.
	CreatedAt time.Time `json:"createdAt"`

	PatternStats
}
