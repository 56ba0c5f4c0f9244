package tier

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is a read-only, ordered registry of tiers. The order is the
// upgrade path: later tiers are considered upgrades of earlier ones.
type Catalog struct {
	tiers  []Tier
	byName map[string]int
}

// catalogFile is the YAML layout accepted by LoadCatalogFile.
type catalogFile struct {
	Tiers []Tier `yaml:"tiers"`
}

// NewCatalog builds a catalog from tier definitions in upgrade order.
func NewCatalog(tiers ...Tier) (*Catalog, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("tier catalog: no tiers defined")
	}

	c := &Catalog{
		tiers:  make([]Tier, 0, len(tiers)),
		byName: make(map[string]int, len(tiers)),
	}
	for _, t := range tiers {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byName[t.Name]; dup {
			return nil, fmt.Errorf("tier catalog: duplicate tier %q", t.Name)
		}
		c.byName[t.Name] = len(c.tiers)
		c.tiers = append(c.tiers, t.clone())
	}
	return c, nil
}

// DefaultCatalog returns the built-in Free/Pro/Creator catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		Tier{
			Name: "Free",
			Limits: map[Skill]int{
				SkillCodeHelper:         2,
				SkillGraphicsWizard:     1,
				SkillAudioMaestro:       1,
				SkillMiniPersona:        0,
				SkillDonationAutomation: 0,
			},
			MaxMemoryOutputs: 5,
		},
		Tier{
			Name: "Pro",
			Limits: map[Skill]int{
				SkillCodeHelper:         20,
				SkillGraphicsWizard:     10,
				SkillAudioMaestro:       10,
				SkillMiniPersona:        5,
				SkillDonationAutomation: 5,
			},
			Features:         Features{AnalyticsAccess: true, BatchOperations: true},
			MaxMemoryOutputs: 50,
		},
		Tier{
			Name: "Creator",
			Limits: map[Skill]int{
				SkillCodeHelper:         Unlimited,
				SkillGraphicsWizard:     Unlimited,
				SkillAudioMaestro:       Unlimited,
				SkillMiniPersona:        Unlimited,
				SkillDonationAutomation: Unlimited,
			},
			Features:         Features{AnalyticsAccess: true, BatchOperations: true},
			MaxMemoryOutputs: 200,
		},
	)
	if err != nil {
		panic("tier: built-in catalog is invalid: " + err.Error())
	}
	return c
}

// LoadCatalogFile reads a YAML catalog:
//
//	tiers:
//	  - name: Free
//	    maxMemoryOutputs: 5
//	    limits: {CodeHelper: 2}
//	    features: {analyticsAccess: false}
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tier catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tier catalog %s: %w", path, err)
	}
	return NewCatalog(file.Tiers...)
}

// Get returns the tier with the given name.
func (c *Catalog) Get(name string) (Tier, error) {
	idx, ok := c.byName[name]
	if !ok {
		return Tier{}, fmt.Errorf("%w: %q", ErrUnknownTier, name)
	}
	return c.tiers[idx].clone(), nil
}

// List returns all tiers in upgrade order.
func (c *Catalog) List() []Tier {
	out := make([]Tier, len(c.tiers))
	for i, t := range c.tiers {
		out[i] = t.clone()
	}
	return out
}

// NextTierFor returns the first tier after `current` whose limit for skill
// would admit one more generation given `used`. The second result is false
// when no such upgrade exists.
func (c *Catalog) NextTierFor(current string, skill Skill, used int) (Tier, bool) {
	start := 0
	if idx, ok := c.byName[current]; ok {
		start = idx + 1
	}
	for _, t := range c.tiers[start:] {
		if t.Permits(skill, used) {
			return t.clone(), true
		}
	}
	return Tier{}, false
}
