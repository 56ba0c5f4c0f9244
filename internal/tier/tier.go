/*
Package tier defines the usage tiers that govern what an owner may generate.

A Tier bundles per-skill daily limits, feature flags and the number of
outputs an owner may keep in memory at once. Tiers are immutable after the
catalog is built and may be shared freely between goroutines.
*/
package tier

import (
	"errors"
	"fmt"
)

// Unlimited marks a skill limit with no daily cap.
const Unlimited = -1

// ErrUnknownTier is returned when a tier name is not in the catalog.
var ErrUnknownTier = errors.New("unknown tier")

// Skill is a category of on-demand content generation.
type Skill string

// Known skills. Callers may use other names; they simply have no quota.
const (
	SkillCodeHelper         Skill = "CodeHelper"
	SkillGraphicsWizard     Skill = "GraphicsWizard"
	SkillAudioMaestro       Skill = "AudioMaestro"
	SkillAnalytics          Skill = "Analytics"
	SkillMiniPersona        Skill = "MiniPersona"
	SkillDonationAutomation Skill = "DonationAutomation"
)

// Skills lists the known skills in display order.
func Skills() []Skill {
	return []Skill{
		SkillCodeHelper,
		SkillGraphicsWizard,
		SkillAudioMaestro,
		SkillAnalytics,
		SkillMiniPersona,
		SkillDonationAutomation,
	}
}

// Features holds the boolean capabilities of a tier.
type Features struct {
	// AnalyticsAccess gates the Analytics skill.
	AnalyticsAccess bool `json:"analyticsAccess" yaml:"analyticsAccess"`

	// BatchOperations allows finalizing several outputs in one call.
	BatchOperations bool `json:"batchOperations" yaml:"batchOperations"`
}

// Tier is an immutable bundle of quotas and feature flags.
type Tier struct {
	// Name identifies the tier (e.g., "Free").
	Name string `json:"name" yaml:"name"`

	// Limits holds the daily generate limit per numeric-quota skill.
	// Unlimited (-1) means no cap.
	Limits map[Skill]int `json:"limits" yaml:"limits"`

	// Features holds flag-style capabilities.
	Features Features `json:"features" yaml:"features"`

	// MaxMemoryOutputs bounds how many outputs an owner may hold at once.
	MaxMemoryOutputs int `json:"maxMemoryOutputs" yaml:"maxMemoryOutputs"`
}

// Limit returns the effective daily limit for a skill.
//
// Flag-gated skills are folded into the same model: the Analytics skill is
// Unlimited when the tier has analytics access and 0 otherwise. Skills the
// tier does not mention have limit 0.
func (t Tier) Limit(skill Skill) int {
	if skill == SkillAnalytics {
		if t.Features.AnalyticsAccess {
			return Unlimited
		}
		return 0
	}
	limit, ok := t.Limits[skill]
	if !ok {
		return 0
	}
	if limit < 0 {
		return Unlimited
	}
	return limit
}

// Permits reports whether the tier allows at least `used+1` generations of skill.
func (t Tier) Permits(skill Skill, used int) bool {
	limit := t.Limit(skill)
	return limit == Unlimited || used < limit
}

// Validate checks that a tier definition is usable.
func (t Tier) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("tier: empty name")
	}
	if t.MaxMemoryOutputs <= 0 {
		return fmt.Errorf("tier %s: maxMemoryOutputs must be positive, got %d", t.Name, t.MaxMemoryOutputs)
	}
	for skill, limit := range t.Limits {
		if limit < Unlimited {
			return fmt.Errorf("tier %s: invalid limit %d for %s", t.Name, limit, skill)
		}
	}
	return nil
}

// clone returns a deep copy so catalog entries cannot be mutated through
// values handed to callers.
func (t Tier) clone() Tier {
	limits := make(map[Skill]int, len(t.Limits))
	for skill, limit := range t.Limits {
		limits[skill] = limit
	}
	t.Limits = limits
	return t
}
