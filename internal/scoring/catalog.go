package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/MikeSquared-Agency/Cortex/internal/config"
	"github.com/MikeSquared-Agency/Cortex/internal/roster"
)

// Catalog is the validated, read-only balancer configuration: modalities,
// skills, weight overrides, exclusion rules and fallback chains. A config
// reload builds a new Catalog; an existing one is never mutated.
type Catalog struct {
	modalities        map[string]config.ModalityConfig
	skills            map[string]config.SkillConfig
	overrides         map[string]map[string]float64
	exclusions        map[string][]string
	modalityFallbacks map[string][]string
	balancer          config.BalancerConfig

	modalityIDs []string
	skillIDs    []string
}

// NewCatalog validates cfg and copies the parts the selector reads.
func NewCatalog(cfg *config.Config) (*Catalog, error) {
	c := &Catalog{
		modalities:        make(map[string]config.ModalityConfig, len(cfg.Modalities)),
		skills:            make(map[string]config.SkillConfig, len(cfg.Skills)),
		overrides:         make(map[string]map[string]float64, len(cfg.SkillModalityOverrides)),
		exclusions:        make(map[string][]string, len(cfg.ExclusionRules)),
		modalityFallbacks: make(map[string][]string, len(cfg.ModalityFallbacks)),
		balancer:          cfg.Balancer,
	}

	b := cfg.Balancer
	if !(b.FloorHours > 0) || math.IsInf(b.FloorHours, 0) {
		return nil, fmt.Errorf("%w: floor_hours must be > 0, got %v", ErrInvalidConfig, b.FloorHours)
	}
	if b.ImbalanceThresholdPct < 0 || math.IsNaN(b.ImbalanceThresholdPct) {
		return nil, fmt.Errorf("%w: imbalance_threshold_pct must be >= 0", ErrInvalidConfig)
	}
	if math.IsNaN(b.MinAssignmentsPerSkill) || math.IsInf(b.MinAssignmentsPerSkill, 0) {
		return nil, fmt.Errorf("%w: min_assignments_per_skill must be finite", ErrInvalidConfig)
	}
	if len(cfg.Modalities) == 0 || len(cfg.Skills) == 0 {
		return nil, fmt.Errorf("%w: at least one modality and one skill required", ErrInvalidConfig)
	}

	for id, m := range cfg.Modalities {
		if !finiteNonNegative(m.Factor) {
			return nil, fmt.Errorf("%w: modality %s factor %v", ErrInvalidConfig, id, m.Factor)
		}
		c.modalities[id] = m
	}
	for id, s := range cfg.Skills {
		if !finiteNonNegative(s.Weight) {
			return nil, fmt.Errorf("%w: skill %s weight %v", ErrInvalidConfig, id, s.Weight)
		}
		c.skills[id] = s
	}

	for id, s := range c.skills {
		for _, fb := range s.Fallback.Skills {
			if _, ok := c.skills[fb]; !ok {
				return nil, fmt.Errorf("%w: skill %s falls back to unknown skill %s", ErrInvalidConfig, id, fb)
			}
			if fb == id {
				return nil, fmt.Errorf("%w: skill %s falls back to itself", ErrInvalidConfig, id)
			}
		}
	}
	for skill, rule := range cfg.ExclusionRules {
		if _, ok := c.skills[skill]; !ok {
			return nil, fmt.Errorf("%w: exclusion rule for unknown skill %s", ErrInvalidConfig, skill)
		}
		for _, ex := range rule.ExcludeSkills {
			if _, ok := c.skills[ex]; !ok {
				return nil, fmt.Errorf("%w: skill %s excludes unknown skill %s", ErrInvalidConfig, skill, ex)
			}
		}
		c.exclusions[skill] = append([]string(nil), rule.ExcludeSkills...)
	}
	for mod, bySkill := range cfg.SkillModalityOverrides {
		if _, ok := c.modalities[mod]; !ok {
			return nil, fmt.Errorf("%w: override for unknown modality %s", ErrInvalidConfig, mod)
		}
		m := make(map[string]float64, len(bySkill))
		for skill, w := range bySkill {
			if _, ok := c.skills[skill]; !ok {
				return nil, fmt.Errorf("%w: override for unknown skill %s", ErrInvalidConfig, skill)
			}
			if !finiteNonNegative(w) {
				return nil, fmt.Errorf("%w: override %s/%s weight %v", ErrInvalidConfig, mod, skill, w)
			}
			m[skill] = w
		}
		c.overrides[mod] = m
	}
	for mod, targets := range cfg.ModalityFallbacks {
		if _, ok := c.modalities[mod]; !ok {
			return nil, fmt.Errorf("%w: modality fallback for unknown modality %s", ErrInvalidConfig, mod)
		}
		for _, t := range targets {
			if _, ok := c.modalities[t]; !ok || t == mod {
				return nil, fmt.Errorf("%w: modality %s cannot fall back to %s", ErrInvalidConfig, mod, t)
			}
		}
		c.modalityFallbacks[mod] = append([]string(nil), targets...)
	}

	c.modalityIDs = sortedKeys(c.modalities)
	c.skillIDs = sortedKeys(c.skills)
	return c, nil
}

func finiteNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Weight returns the override for (modality, skill) if one is configured,
// else skill.weight * modality.factor.
func (c *Catalog) Weight(modality, skill string) (float64, error) {
	m, ok := c.modalities[modality]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownModality, modality)
	}
	s, ok := c.skills[skill]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSkill, skill)
	}
	if w, ok := c.overrides[modality][skill]; ok {
		return w, nil
	}
	return s.Weight * m.Factor, nil
}

// EffectiveWeight scales Weight by the worker's modifier. With
// modifier_applies_to_active_only the modifier is used only when the
// worker's value for the skill is exactly Active.
func (c *Catalog) EffectiveWeight(modality, skill string, value roster.SkillValue, modifier float64) (float64, error) {
	w, err := c.Weight(modality, skill)
	if err != nil {
		return 0, err
	}
	if c.balancer.ModifierAppliesToActiveOnly && value != roster.Active {
		return w, nil
	}
	return w * modifier, nil
}

// Validate reports ErrInvalidRequest for unregistered identifiers.
func (c *Catalog) Validate(modality, skill string) error {
	if _, ok := c.modalities[modality]; !ok {
		return fmt.Errorf("%w: %w: %q", ErrInvalidRequest, ErrUnknownModality, modality)
	}
	if _, ok := c.skills[skill]; !ok {
		return fmt.Errorf("%w: %w: %q", ErrInvalidRequest, ErrUnknownSkill, skill)
	}
	return nil
}

func (c *Catalog) HasModality(id string) bool {
	_, ok := c.modalities[id]
	return ok
}

func (c *Catalog) HasSkill(id string) bool {
	_, ok := c.skills[id]
	return ok
}

func (c *Catalog) Modalities() []string { return c.modalityIDs }

func (c *Catalog) Skills() []string { return c.skillIDs }

func (c *Catalog) Balancer() config.BalancerConfig { return c.balancer }

func (c *Catalog) Fallback(skill string) config.Fallback { return c.skills[skill].Fallback }

func (c *Catalog) Exclusions(skill string) []string { return c.exclusions[skill] }

func (c *Catalog) ModalityFallbacks(modality string) []string { return c.modalityFallbacks[modality] }
