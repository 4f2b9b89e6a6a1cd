package ledger

import (
	"fmt"
	"math"
	"time"
)

// State is a point-in-time copy of the ledger, serialisable for the
// persistence layer.
type State struct {
	TakenAt    time.Time                     `json:"taken_at"`
	FloorHours float64                       `json:"floor_hours"`
	Modalities map[string]map[string]Counter `json:"modalities"`
}

// Len is the number of (modality, worker) counters in the state.
func (s State) Len() int {
	n := 0
	for _, byWorker := range s.Modalities {
		n += len(byWorker)
	}
	return n
}

// Snapshot copies every counter.
func (l *Ledger) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := State{
		TakenAt:    time.Now().UTC(),
		FloorHours: l.floorHours,
		Modalities: make(map[string]map[string]Counter, len(l.counters)),
	}
	for mod, byWorker := range l.counters {
		m := make(map[string]Counter, len(byWorker))
		for id, c := range byWorker {
			m[id] = c.clone()
		}
		st.Modalities[mod] = m
	}
	return st
}

// Restore replaces the ledger contents with st. The ledger keeps its own
// floor hours. Nothing changes if st holds an invalid counter.
func (l *Ledger) Restore(st State) error {
	counters := make(map[string]map[string]*Counter, len(st.Modalities))
	for mod, byWorker := range st.Modalities {
		m := make(map[string]*Counter, len(byWorker))
		for id, c := range byWorker {
			if !validCount(c.WeightedCount) || !validCount(c.HoursWorked) || c.Assignments < 0 || c.AssistedCount < 0 {
				return fmt.Errorf("%w: %s/%s", ErrInvalidState, mod, id)
			}
			cc := c.clone()
			m[id] = &cc
		}
		counters[mod] = m
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.counters = counters
	l.hours = make(map[string]map[string]float64)
	return nil
}

func validCount(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
