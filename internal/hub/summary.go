package hub

import (
	"time"

	"github.com/khanglvm/skill-hub/internal/storage"
	"github.com/khanglvm/skill-hub/internal/tier"
)

// SkillUsage is today's quota position for one skill.
type SkillUsage struct {
	Skill     tier.Skill `json:"skill"`
	Used      int        `json:"used"`
	Limit     int        `json:"limit"`
	Remaining int        `json:"remaining"`
	Unlimited bool       `json:"unlimited"`
}

// UsageSnapshot is owner's quota position for the current day.
type UsageSnapshot struct {
	Owner      string       `json:"owner"`
	Tier       string       `json:"tier"`
	Day        time.Time    `json:"day"`
	Skills     []SkillUsage `json:"skills"`
	Held       int          `json:"held"`
	MaxOutputs int          `json:"maxOutputs"`
}

// UsageSummary reports today's generate counts and remaining quota per
// known skill for owner.
func (h *Hub) UsageSummary(owner string) (UsageSnapshot, error) {
	t := h.TierOf(owner)
	now := h.ledger.Now()
	day, _ := h.ledger.DayBounds(now)

	snap := UsageSnapshot{
		Owner:      owner,
		Tier:       t.Name,
		Day:        day,
		Held:       h.store.Count(owner),
		MaxOutputs: t.MaxMemoryOutputs,
	}

	for _, skill := range tier.Skills() {
		used, err := h.ledger.CountOn(owner, skill, storage.ActionGenerate, now)
		if err != nil {
			return UsageSnapshot{}, err
		}

		su := SkillUsage{Skill: skill, Used: used, Limit: t.Limit(skill)}
		if su.Limit == tier.Unlimited {
			su.Unlimited = true
			su.Remaining = -1
		} else {
			su.Remaining = max(0, su.Limit-used)
		}
		snap.Skills = append(snap.Skills, su)
	}
	return snap, nil
}
