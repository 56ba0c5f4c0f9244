/*
Package admission decides whether a generation request may proceed.

The check runs before the (expensive, external) generator is invoked. It is
read-then-act, not compare-and-swap: two concurrent requests may both be
admitted for the last slot, and the ledger simply records both. The next
check sees every consumed slot.
*/
package admission

import (
	"fmt"

	"github.com/khanglvm/skill-hub/internal/storage"
	"github.com/khanglvm/skill-hub/internal/tier"
)

// Counter reports how many events an owner produced today.
// *usage.Ledger satisfies it.
type Counter interface {
	CountToday(owner string, skill tier.Skill, action storage.Action) (int, error)
}

// Result is the outcome of an admission check. A denial is an ordinary
// result, never an error.
type Result struct {
	// Allowed reports whether generation may proceed.
	Allowed bool `json:"allowed"`

	// Remaining is the number of generations left today after this
	// check, or -1 when the quota is unbounded.
	Remaining int `json:"remaining"`

	// Unlimited reports that the tier has no cap for the skill.
	Unlimited bool `json:"unlimited"`

	// Used is today's generate count for the skill.
	Used int `json:"used"`

	// Limit is the tier's daily limit (-1 for unlimited).
	Limit int `json:"limit"`

	// Skill and Tier echo the request.
	Skill tier.Skill `json:"skill"`
	Tier  string     `json:"tier"`

	// SuggestedTier is the next tier that would admit the request,
	// empty when allowed or when no tier would.
	SuggestedTier string `json:"suggestedTier,omitempty"`

	// SuggestedLimit is SuggestedTier's limit for the skill.
	SuggestedLimit int `json:"suggestedLimit,omitempty"`

	// Reason explains a denial for display.
	Reason string `json:"reason,omitempty"`
}

// Controller performs admission checks against the ledger and catalog.
type Controller struct {
	catalog *tier.Catalog
	counter Counter
}

// NewController builds a controller.
func NewController(catalog *tier.Catalog, counter Counter) *Controller {
	return &Controller{catalog: catalog, counter: counter}
}

// CanProceed checks whether owner, currently on t, may generate skill now.
// It only fails when the ledger cannot be read.
func (c *Controller) CanProceed(owner string, t tier.Tier, skill tier.Skill) (Result, error) {
	result := Result{
		Skill: skill,
		Tier:  t.Name,
		Limit: t.Limit(skill),
	}

	if result.Limit == tier.Unlimited {
		result.Allowed = true
		result.Unlimited = true
		result.Remaining = -1
		return result, nil
	}

	used := 0
	if result.Limit > 0 {
		var err error
		used, err = c.counter.CountToday(owner, skill, storage.ActionGenerate)
		if err != nil {
			return Result{}, fmt.Errorf("admission check for %s: %w", skill, err)
		}
	}

	result.Used = used
	result.Remaining = max(0, result.Limit-used)
	result.Allowed = result.Remaining > 0
	if result.Allowed {
		return result, nil
	}

	next, ok := c.catalog.NextTierFor(t.Name, skill, used)
	if ok {
		result.SuggestedTier = next.Name
		result.SuggestedLimit = next.Limit(skill)
	}
	result.Reason = denialReason(result)
	return result, nil
}

func denialReason(r Result) string {
	var base string
	if r.Limit == 0 {
		base = fmt.Sprintf("%s is not available on the %s tier", r.Skill, r.Tier)
	} else {
		base = fmt.Sprintf("daily %s limit reached (%d/%d on the %s tier)", r.Skill, r.Used, r.Limit, r.Tier)
	}

	switch {
	case r.SuggestedTier == "" && r.Limit == 0:
		return fmt.Sprintf("%s is not available on the %s tier or any tier above it", r.Skill, r.Tier)
	case r.SuggestedTier == "":
		return base + "; try again tomorrow"
	case r.SuggestedLimit == tier.Unlimited:
		return fmt.Sprintf("%s; upgrade to %s for unlimited %s", base, r.SuggestedTier, r.Skill)
	default:
		return fmt.Sprintf("%s; upgrade to %s for %d per day", base, r.SuggestedTier, r.SuggestedLimit)
	}
}
