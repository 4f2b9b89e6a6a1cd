package scoring

import (
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/Cortex/internal/roster"
)

// Availability is the roster as seen at one instant.
type Availability interface {
	OnShift(modality string) []string
	SkillValue(worker, modality, skill string) (roster.SkillValue, error)
	Modifier(worker string) float64
}

// Loads exposes the ledger counters the selector ranks by.
type Loads interface {
	WeightedCount(modality, worker string) float64
	Ratio(modality, worker string) float64
}

// View is everything one selection reads. The caller builds it inside the
// modality lock so it cannot change mid-decision.
type View struct {
	Roster Availability
	Loads  Loads
	// Skip hides workers an operator has drained.
	Skip func(worker string) bool
}

func (v View) skipped(worker string) bool {
	return v.Skip != nil && v.Skip(worker)
}

type Request struct {
	Modality string `json:"modality"`
	Skill    string `json:"skill"`
	Strict   bool   `json:"strict"`
}

// Selection is the outcome of Select. Found=false is a successful "no
// qualified worker right now" answer, not an error.
type Selection struct {
	Found     bool   `json:"found"`
	Worker    string `json:"worker,omitempty"`
	Modality  string `json:"modality"`
	Skill     string `json:"skill"`
	PoolSkill string `json:"pool_skill,omitempty"`
	Level     int    `json:"level,omitempty"`
	Phase     Phase  `json:"phase"`
	Policy    string `json:"policy"`

	Value    roster.SkillValue `json:"value"`
	Weight   float64           `json:"weight"`
	Ratio    float64           `json:"ratio"`
	PoolSize int               `json:"pool_size"`
	Spilled  bool              `json:"spilled,omitempty"`

	// CrossModality is set when the winner was found via modality_fallbacks.
	// PoolSkill differs from Skill when a fallback chain was walked.
	CrossModality bool `json:"cross_modality,omitempty"`
}

// Assisted reports whether the assignment counts on the weighted track.
func (s Selection) Assisted() bool { return s.Value == roster.Weighted }

// Selector picks the least-loaded qualified worker. It never records.
type Selector struct {
	catalog *Catalog
	logger  *slog.Logger
}

func NewSelector(catalog *Catalog, logger *slog.Logger) *Selector {
	return &Selector{catalog: catalog, logger: logger}
}

func (s *Selector) Catalog() *Catalog { return s.catalog }

// Modalities returns every modality a request for modality may touch, the
// requested one first. Callers lock all of them before Select.
func (s *Selector) Modalities(req Request) []string {
	out := []string{req.Modality}
	if !req.Strict {
		out = append(out, s.catalog.ModalityFallbacks(req.Modality)...)
	}
	return out
}

// Select runs the routing policy for req against v.
func (s *Selector) Select(v View, req Request) (Selection, error) {
	if err := s.catalog.Validate(req.Modality, req.Skill); err != nil {
		return Selection{}, err
	}
	policy := PolicyFor(s.catalog)

	sel, err := s.selectIn(v, policy, req.Modality, req)
	if err != nil || sel.Found || req.Strict {
		return sel, err
	}

	for _, mod := range s.catalog.ModalityFallbacks(req.Modality) {
		alt, err := s.selectIn(v, policy, mod, req)
		if err != nil {
			return Selection{}, err
		}
		if alt.Found {
			alt.CrossModality = true
			s.logger.Debug("cross-modality fallback",
				"requested", req.Modality, "modality", mod, "skill", req.Skill, "worker", alt.Worker)
			return alt, nil
		}
	}
	return sel, nil
}

func (s *Selector) selectIn(v View, policy RoutingPolicy, modality string, req Request) (Selection, error) {
	pc := &poolContext{
		view:     v,
		catalog:  s.catalog,
		modality: modality,
		skill:    req.Skill,
	}
	phase, err := PhaseOf(v, s.catalog, modality)
	if err != nil {
		return Selection{}, err
	}
	sel := Selection{
		Modality: modality,
		Skill:    req.Skill,
		Phase:    phase,
		Policy:   policy.Name(),
	}

	res, err := policy.selectPool(pc, req.Strict)
	if err != nil {
		return Selection{}, err
	}
	if len(res.pool) == 0 {
		return sel, nil
	}

	pool := res.pool
	if phase == PhaseFill {
		pool = restrictUnderMinimum(v, modality, s.catalog.Balancer().MinAssignmentsPerSkill, pool)
	}
	win := lowestRatio(pool)

	weight, err := s.catalog.EffectiveWeight(modality, req.Skill, win.value, v.Roster.Modifier(win.id))
	if err != nil {
		return Selection{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	sel.Found = true
	sel.Worker = win.id
	sel.PoolSkill = res.poolSkill
	sel.Level = res.level
	sel.Value = win.value
	sel.Weight = weight
	sel.Ratio = win.ratio
	sel.PoolSize = len(pool)
	sel.Spilled = res.spilled
	return sel, nil
}

// lowestRatio returns the least-loaded candidate. Pools are sorted by id,
// so the strict comparison keeps the lexically first worker on ties.
func lowestRatio(pool []candidate) candidate {
	best := pool[0]
	for _, c := range pool[1:] {
		if c.ratio < best.ratio {
			best = c
		}
	}
	return best
}
