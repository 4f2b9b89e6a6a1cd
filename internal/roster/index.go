package roster

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/xxh3"
)

// Index is an immutable view of the day's roster. Edits produce a new Index.
type Index struct {
	workers     map[string]Worker
	ids         []string
	tasks       map[string]TaskDef
	fingerprint uint64
}

// Build normalizes a document into an Index. Workers whose canonical names
// collide are merged into one record.
func Build(doc Document, tasks map[string]TaskDef) (*Index, error) {
	workers := make(map[string]Worker, len(doc.Workers))
	for _, raw := range doc.Workers {
		w, err := normalize(raw, tasks)
		if err != nil {
			return nil, err
		}
		if prev, ok := workers[w.ID]; ok {
			w = merge(prev, w)
		}
		workers[w.ID] = w
	}
	return newIndex(workers, tasks), nil
}

// Empty returns an Index with no workers.
func Empty(tasks map[string]TaskDef) *Index {
	return newIndex(map[string]Worker{}, tasks)
}

func newIndex(workers map[string]Worker, tasks map[string]TaskDef) *Index {
	ids := make([]string, 0, len(workers))
	for id := range workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	ix := &Index{workers: workers, ids: ids, tasks: tasks}
	ix.fingerprint = ix.hash()
	return ix
}

// hash covers the task catalog as well as the workers, so a reload that
// only edits task skills still yields a different index.
func (ix *Index) hash() uint64 {
	data, err := json.Marshal(struct {
		Tasks   map[string]TaskDef `json:"tasks"`
		Workers []Worker           `json:"workers"`
	}{ix.tasks, ix.Document().Workers})
	if err != nil {
		return 0
	}
	return xxh3.Hash(data)
}

// Fingerprint identifies the roster content and its task catalog; equal
// inputs hash equal.
func (ix *Index) Fingerprint() string {
	return fmt.Sprintf("%016x", ix.fingerprint)
}

// Document returns the workers in id order.
func (ix *Index) Document() Document {
	doc := Document{Workers: make([]Worker, 0, len(ix.ids))}
	for _, id := range ix.ids {
		doc.Workers = append(doc.Workers, ix.workers[id])
	}
	return doc
}

func (ix *Index) Len() int { return len(ix.ids) }

func (ix *Index) Worker(id string) (Worker, bool) {
	w, ok := ix.workers[id]
	return w, ok
}

// Tasks returns the task catalog the index was built with.
func (ix *Index) Tasks() map[string]TaskDef { return ix.tasks }

// With returns a copy of the index with w inserted or replaced.
func (ix *Index) With(w Worker) (*Index, error) {
	n, err := normalize(w, ix.tasks)
	if err != nil {
		return nil, err
	}
	workers := make(map[string]Worker, len(ix.workers)+1)
	for id, existing := range ix.workers {
		workers[id] = existing
	}
	workers[n.ID] = n
	return newIndex(workers, ix.tasks), nil
}

// Without returns a copy of the index minus the worker.
func (ix *Index) Without(id string) (*Index, error) {
	if _, ok := ix.workers[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}
	workers := make(map[string]Worker, len(ix.workers))
	for wid, existing := range ix.workers {
		if wid != id {
			workers[wid] = existing
		}
	}
	return newIndex(workers, ix.tasks), nil
}

// At binds the index to an instant. now must already be in the roster's
// time zone.
func (ix *Index) At(now time.Time) *Instant {
	return &Instant{ix: ix, at: ClockOf(now)}
}

// Instant answers availability questions for one moment of the day.
type Instant struct {
	ix *Index
	at Clock
}

// covering returns the shift entries for modality that cover the instant,
// or nil when the worker is off shift or inside a gap.
func (in *Instant) covering(w Worker, modality string) []Entry {
	var shifts []Entry
	for _, e := range w.Entries {
		covered, _, _ := span(e.Start, e.End, in.at)
		if !covered {
			continue
		}
		if e.Kind == KindGap && (e.Modality == "" || e.Modality == modality) {
			return nil
		}
		if e.Kind == KindShift && e.Modality == modality {
			shifts = append(shifts, e)
		}
	}
	return shifts
}

// OnShift returns ids of workers scheduled for modality, sorted.
func (in *Instant) OnShift(modality string) []string {
	var out []string
	for _, id := range in.ix.ids {
		if len(in.covering(in.ix.workers[id], modality)) > 0 {
			out = append(out, id)
		}
	}
	return out
}

// SkillValue resolves a worker's value for skill in modality: per-modality
// override, then default override, then the covering tasks' base value,
// then Passive. Among several covering tasks Excluded wins, otherwise the
// highest value.
func (in *Instant) SkillValue(worker, modality, skill string) (SkillValue, error) {
	w, ok := in.ix.workers[worker]
	if !ok {
		return Passive, fmt.Errorf("%w: %s", ErrUnknownWorker, worker)
	}
	if v, ok := w.Skills[modality][skill]; ok {
		return v, nil
	}
	if v, ok := w.DefaultSkills[skill]; ok {
		return v, nil
	}

	found := false
	best := Passive
	for _, e := range in.covering(w, modality) {
		def, ok := in.ix.tasks[e.Task]
		if !ok {
			continue
		}
		v, ok := def.Skills[skill]
		if !ok {
			continue
		}
		if v == Excluded {
			return Excluded, nil
		}
		if !found || rank(v) > rank(best) {
			best = v
			found = true
		}
	}
	return best, nil
}

// rank orders values for "highest wins": Weighted sits between Passive and
// Active because an assisted worker is less senior than a fully active one.
func rank(v SkillValue) int {
	switch v {
	case Active:
		return 3
	case Weighted:
		return 2
	case Passive:
		return 1
	}
	return 0
}

// Modifier returns the worker's workload modifier, 1.0 for unknown workers.
func (in *Instant) Modifier(worker string) float64 {
	w, ok := in.ix.workers[worker]
	if !ok {
		return 1.0
	}
	return w.ModifierOrDefault()
}

// HoursWorked is the elapsed time of the worker's longest-running covering
// shift for modality, clamped to the shift length.
func (in *Instant) HoursWorked(worker, modality string) float64 {
	w, ok := in.ix.workers[worker]
	if !ok {
		return 0
	}
	var best int
	for _, e := range in.covering(w, modality) {
		_, elapsed, length := span(e.Start, e.End, in.at)
		if elapsed > length {
			elapsed = length
		}
		if elapsed > best {
			best = elapsed
		}
	}
	return float64(best) / 60.0
}

// Registry holds the current Index and swaps it atomically on edits.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[Index]
}

func NewRegistry(ix *Index) *Registry {
	r := &Registry{}
	r.current.Store(ix)
	return r
}

// Current returns the live snapshot; callers must not hold it across
// requests if they want to see edits.
func (r *Registry) Current() *Index {
	return r.current.Load()
}

// Replace swaps in a new index and reports whether the content changed.
func (r *Registry) Replace(ix *Index) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.current.Load()
	if prev != nil && prev.fingerprint == ix.fingerprint {
		return false
	}
	r.current.Store(ix)
	return true
}

// Upsert inserts or replaces a single worker.
func (r *Registry) Upsert(w Worker) (Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, err := r.current.Load().With(w)
	if err != nil {
		return Worker{}, err
	}
	r.current.Store(next)
	id, _ := CanonicalName(firstNonEmpty(w.Name, w.ID))
	stored, _ := next.Worker(id)
	return stored, nil
}

// Remove deletes a worker from the roster.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, err := r.current.Load().Without(id)
	if err != nil {
		return err
	}
	r.current.Store(next)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
