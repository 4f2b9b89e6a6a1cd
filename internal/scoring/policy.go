package scoring

import (
	"sort"
	"strings"

	"github.com/MikeSquared-Agency/Cortex/internal/config"
	"github.com/MikeSquared-Agency/Cortex/internal/roster"
)

const (
	PolicyExclusion = "exclusion"
	PolicyFallback  = "fallback"
)

// RoutingPolicy builds the candidate pool for one request. Level 1 is the
// primary pool (the only one a strict request may use), Level 2 a broadened
// one. An empty pool means no assignment.
type RoutingPolicy interface {
	Name() string
	selectPool(pc *poolContext, strict bool) (poolResult, error)
}

// PolicyFor picks the strategy configured by use_exclusion_routing.
func PolicyFor(c *Catalog) RoutingPolicy {
	if c.Balancer().UseExclusionRouting {
		return exclusionPolicy{}
	}
	return fallbackPolicy{}
}

type candidate struct {
	id    string
	value roster.SkillValue
	ratio float64
}

type poolResult struct {
	pool      []candidate
	level     int
	poolSkill string
	spilled   bool
}

// poolContext memoises the base pool of one (modality, skill) selection.
type poolContext struct {
	view     View
	catalog  *Catalog
	modality string
	skill    string

	base   []candidate
	loaded bool
}

// eligible returns on-shift, non-drained workers whose value for the
// requested skill is not Excluded, sorted by id.
func (pc *poolContext) eligible() ([]candidate, error) {
	if pc.loaded {
		return pc.base, nil
	}
	for _, id := range pc.view.Roster.OnShift(pc.modality) {
		if pc.view.skipped(id) {
			continue
		}
		v, err := pc.view.Roster.SkillValue(id, pc.modality, pc.skill)
		if err != nil {
			return nil, err
		}
		if !v.Eligible() {
			continue
		}
		pc.base = append(pc.base, candidate{id: id, value: v, ratio: pc.view.Loads.Ratio(pc.modality, id)})
	}
	sort.Slice(pc.base, func(i, j int) bool { return pc.base[i].id < pc.base[j].id })
	pc.loaded = true
	return pc.base, nil
}

// holders narrows the eligible pool to workers active for skill.
func (pc *poolContext) holders(skill string) ([]candidate, error) {
	base, err := pc.eligible()
	if err != nil {
		return nil, err
	}
	var out []candidate
	for _, c := range base {
		v := c.value
		if skill != pc.skill {
			if v, err = pc.view.Roster.SkillValue(c.id, pc.modality, skill); err != nil {
				return nil, err
			}
		}
		if v.IsActive() {
			out = append(out, c)
		}
	}
	return out, nil
}

type exclusionPolicy struct{}

func (exclusionPolicy) Name() string { return PolicyExclusion }

// selectPool: Level 1 drops holders of any active skill excluded for the
// request; Level 2 ignores exclusion rules.
func (exclusionPolicy) selectPool(pc *poolContext, strict bool) (poolResult, error) {
	base, err := pc.eligible()
	if err != nil {
		return poolResult{}, err
	}
	excluded := pc.catalog.Exclusions(pc.skill)

	var primary []candidate
	for _, c := range base {
		blocked := false
		for _, ex := range excluded {
			v, err := pc.view.Roster.SkillValue(c.id, pc.modality, ex)
			if err != nil {
				return poolResult{}, err
			}
			if v.IsActive() {
				blocked = true
				break
			}
		}
		if !blocked {
			primary = append(primary, c)
		}
	}
	if len(primary) > 0 {
		return poolResult{pool: primary, level: 1, poolSkill: pc.skill}, nil
	}
	if strict || len(base) == 0 {
		return poolResult{}, nil
	}
	return poolResult{pool: base, level: 2, poolSkill: pc.skill}, nil
}

type fallbackPolicy struct{}

func (fallbackPolicy) Name() string { return PolicyFallback }

// selectPool: Level 1 is the active holders of the requested skill. Level 2
// walks the fallback chain and finally any non-excluded worker. With
// allow_fallback_on_imbalance a lopsided primary pool is merged with the
// fallback pool.
func (fallbackPolicy) selectPool(pc *poolContext, strict bool) (poolResult, error) {
	own, err := pc.holders(pc.skill)
	if err != nil {
		return poolResult{}, err
	}
	if strict {
		if len(own) == 0 {
			return poolResult{}, nil
		}
		return poolResult{pool: own, level: 1, poolSkill: pc.skill}, nil
	}

	fb, fbSkill, err := fallbackPool(pc)
	if err != nil {
		return poolResult{}, err
	}

	if len(own) > 0 {
		b := pc.catalog.Balancer()
		if b.AllowFallbackOnImbalance && len(fb) > 0 &&
			minRatio(own) > minRatio(fb)*(1+b.ImbalanceThresholdPct/100) {
			return poolResult{pool: union(own, fb), level: 2, poolSkill: pc.skill + "+" + fbSkill, spilled: true}, nil
		}
		return poolResult{pool: own, level: 1, poolSkill: pc.skill}, nil
	}
	if len(fb) > 0 {
		return poolResult{pool: fb, level: 2, poolSkill: fbSkill}, nil
	}

	base, err := pc.eligible()
	if err != nil || len(base) == 0 {
		return poolResult{}, err
	}
	return poolResult{pool: base, level: 2, poolSkill: pc.skill}, nil
}

// fallbackPool resolves the configured chain: the first non-empty pool of a
// sequential chain, or the union of every pool of a parallel one.
func fallbackPool(pc *poolContext) ([]candidate, string, error) {
	fb := pc.catalog.Fallback(pc.skill)
	switch fb.Mode {
	case config.FallbackParallel:
		var pool []candidate
		for _, s := range fb.Skills {
			h, err := pc.holders(s)
			if err != nil {
				return nil, "", err
			}
			pool = union(pool, h)
		}
		return pool, strings.Join(fb.Skills, "|"), nil
	default:
		for _, s := range fb.Skills {
			h, err := pc.holders(s)
			if err != nil {
				return nil, "", err
			}
			if len(h) > 0 {
				return h, s, nil
			}
		}
	}
	return nil, "", nil
}

func minRatio(pool []candidate) float64 {
	return lowestRatio(pool).ratio
}

// union merges two id-sorted pools, keeping the order and dropping duplicates.
func union(a, b []candidate) []candidate {
	out := make([]candidate, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i].id < b[j].id):
			out = append(out, a[i])
			i++
		case i == len(a) || b[j].id < a[i].id:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
