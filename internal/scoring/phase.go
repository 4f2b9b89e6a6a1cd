package scoring

// Phase is the fairness regime of a modality at the moment of a request.
type Phase int

const (
	// PhaseFill concentrates assignments on active workers still below
	// min_assignments_per_skill.
	PhaseFill Phase = 1
	// PhaseOverflow ranks every candidate by ratio alone.
	PhaseOverflow Phase = 2
)

func (p Phase) String() string {
	if p == PhaseFill {
		return "fill"
	}
	return "overflow"
}

// PhaseOf derives the phase from the current ledger view. It is recomputed
// per request so roster edits mid-day are picked up immediately.
func PhaseOf(v View, c *Catalog, modality string) (Phase, error) {
	minimum := c.Balancer().MinAssignmentsPerSkill
	if minimum <= 0 {
		return PhaseOverflow, nil
	}
	for _, id := range v.Roster.OnShift(modality) {
		if v.skipped(id) {
			continue
		}
		if v.Loads.WeightedCount(modality, id) >= minimum {
			continue
		}
		active, err := holdsActiveSkill(v.Roster, id, modality, c.Skills())
		if err != nil {
			return 0, err
		}
		if active {
			return PhaseFill, nil
		}
	}
	return PhaseOverflow, nil
}

func holdsActiveSkill(a Availability, worker, modality string, skills []string) (bool, error) {
	for _, s := range skills {
		v, err := a.SkillValue(worker, modality, s)
		if err != nil {
			return false, err
		}
		if v.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

// restrictUnderMinimum keeps the under-minimum part of pool. A pool with no
// under-minimum member is returned unchanged.
func restrictUnderMinimum(v View, modality string, minimum float64, pool []candidate) []candidate {
	var under []candidate
	for _, c := range pool {
		if v.Loads.WeightedCount(modality, c.id) < minimum {
			under = append(under, c)
		}
	}
	if len(under) == 0 {
		return pool
	}
	return under
}
