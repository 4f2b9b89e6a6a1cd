package broker

import (
	"fmt"

	"github.com/MikeSquared-Agency/Cortex/internal/ledger"
	"github.com/MikeSquared-Agency/Cortex/internal/scoring"
)

// WorkerStats is one on-shift worker's line in the display view.
type WorkerStats struct {
	Worker  string  `json:"worker"`
	Drained bool    `json:"drained,omitempty"`
	Ratio   float64 `json:"ratio"`
	ledger.Counter
}

// ModalityStats backs the quick-reload display.
type ModalityStats struct {
	Modality string        `json:"modality"`
	Phase    scoring.Phase `json:"phase"`
	OnShift  []WorkerStats `json:"on_shift"`
}

type Stats struct {
	Policy            string          `json:"policy"`
	RosterWorkers     int             `json:"roster_workers"`
	RosterFingerprint string          `json:"roster_fingerprint"`
	Modalities        []ModalityStats `json:"modalities"`
}

// Stats reads the ledger without taking the guard. An empty modality
// reports every configured modality.
func (b *Broker) Stats(modality string) (Stats, error) {
	catalog := b.Catalog()
	mods := catalog.Modalities()
	if modality != "" {
		if !catalog.HasModality(modality) {
			return Stats{}, fmt.Errorf("%w: %w: %s", scoring.ErrInvalidRequest, scoring.ErrUnknownModality, modality)
		}
		mods = []string{modality}
	}

	ix := b.roster.Current()
	inst := ix.At(b.now().In(b.loc))
	view := scoring.View{Roster: inst, Loads: b.ledger, Skip: b.IsDrained}

	out := Stats{
		Policy:            scoring.PolicyFor(catalog).Name(),
		RosterWorkers:     ix.Len(),
		RosterFingerprint: ix.Fingerprint(),
	}
	for _, mod := range mods {
		phase, err := scoring.PhaseOf(view, catalog, mod)
		if err != nil {
			return Stats{}, err
		}
		ms := ModalityStats{Modality: mod, Phase: phase, OnShift: []WorkerStats{}}
		for _, id := range inst.OnShift(mod) {
			c, _ := b.ledger.Counter(mod, id)
			ms.OnShift = append(ms.OnShift, WorkerStats{
				Worker:  id,
				Drained: b.IsDrained(id),
				Ratio:   b.ledger.Ratio(mod, id),
				Counter: c,
			})
		}
		b.metrics.SetOnShift(mod, len(ms.OnShift))
		out.Modalities = append(out.Modalities, ms)
	}
	return out, nil
}

func (b *Broker) refreshRosterGauges() {
	if b.metrics == nil {
		return
	}
	inst := b.roster.Current().At(b.now().In(b.loc))
	for _, mod := range b.Catalog().Modalities() {
		b.metrics.SetOnShift(mod, len(inst.OnShift(mod)))
	}
}
