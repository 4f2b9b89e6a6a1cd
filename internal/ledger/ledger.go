package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrUnknownRole   = errors.New("unknown role")
	ErrInvalidWeight = errors.New("invalid weight")
	ErrInvalidState  = errors.New("invalid ledger state")
)

// Counter is the fairness state of one worker in one modality.
type Counter struct {
	WeightedCount float64            `json:"weighted_count"`
	HoursWorked   float64            `json:"hours_worked"`
	Assignments   int                `json:"assignments"`
	AssistedCount int                `json:"assisted_count"`
	BySkill       map[string]float64 `json:"by_skill,omitempty"`
}

func (c Counter) clone() Counter {
	if c.BySkill != nil {
		m := make(map[string]float64, len(c.BySkill))
		for k, v := range c.BySkill {
			m[k] = v
		}
		c.BySkill = m
	}
	return c
}

// Ledger holds weighted assignment counts per modality and worker. Reads are
// safe on their own; a select-then-record sequence must run under the
// modality's Guard lock.
type Ledger struct {
	mu         sync.RWMutex
	floorHours float64
	tracked    map[string]bool
	counters   map[string]map[string]*Counter

	// hours seen for workers that have no counter yet; folded into the
	// counter on its first Record.
	hours map[string]map[string]float64
}

// New returns an empty ledger. floorHours must be > 0; skills are the
// buckets Record accepts.
func New(floorHours float64, skills ...string) (*Ledger, error) {
	if !(floorHours > 0) || math.IsInf(floorHours, 0) {
		return nil, fmt.Errorf("%w: floor hours %v", ErrInvalidState, floorHours)
	}
	l := &Ledger{
		floorHours: floorHours,
		tracked:    make(map[string]bool, len(skills)),
		counters:   make(map[string]map[string]*Counter),
		hours:      make(map[string]map[string]float64),
	}
	l.Track(skills...)
	return l, nil
}

func (l *Ledger) FloorHours() float64 { return l.floorHours }

// Track replaces the set of skill buckets Record accepts.
func (l *Ledger) Track(skills ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracked = make(map[string]bool, len(skills))
	for _, s := range skills {
		l.tracked[s] = true
	}
}

func (l *Ledger) counter(modality, worker string) *Counter {
	byWorker := l.counters[modality]
	if byWorker == nil {
		byWorker = make(map[string]*Counter)
		l.counters[modality] = byWorker
	}
	c := byWorker[worker]
	if c == nil {
		c = &Counter{HoursWorked: l.hours[modality][worker]}
		byWorker[worker] = c
		delete(l.hours[modality], worker)
	}
	return c
}

// Record credits weight to the worker. assisted marks assignments made while
// the worker held the weighted marker for the skill.
func (l *Ledger) Record(modality, worker, skill string, weight float64, assisted bool) (Counter, error) {
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0 {
		return Counter{}, fmt.Errorf("%w: %v", ErrInvalidWeight, weight)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.tracked[skill] {
		return Counter{}, fmt.Errorf("%w: %s", ErrUnknownRole, skill)
	}
	c := l.counter(modality, worker)
	c.WeightedCount += weight
	c.Assignments++
	if assisted {
		c.AssistedCount++
	}
	if c.BySkill == nil {
		c.BySkill = make(map[string]float64)
	}
	c.BySkill[skill] += weight
	return c.clone(), nil
}

// ObserveHours raises the worker's hours worked; it never lowers them. It
// does not create a counter: workers never assigned stay out of the ledger.
func (l *Ledger) ObserveHours(modality, worker string, hours float64) {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if c := l.counters[modality][worker]; c != nil {
		if hours > c.HoursWorked {
			c.HoursWorked = hours
		}
		return
	}
	byWorker := l.hours[modality]
	if byWorker == nil {
		byWorker = make(map[string]float64)
		l.hours[modality] = byWorker
	}
	if hours > byWorker[worker] {
		byWorker[worker] = hours
	}
}

func (l *Ledger) ratio(c *Counter) float64 {
	if c == nil {
		return 0
	}
	return c.WeightedCount / math.Max(c.HoursWorked, l.floorHours)
}

// Ratio is weighted count over max(hours worked, floor hours). Unknown pairs
// have ratio 0.
func (l *Ledger) Ratio(modality, worker string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ratio(l.counters[modality][worker])
}

func (l *Ledger) WeightedCount(modality, worker string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if c := l.counters[modality][worker]; c != nil {
		return c.WeightedCount
	}
	return 0
}

func (l *Ledger) Counter(modality, worker string) (Counter, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c := l.counters[modality][worker]
	if c == nil {
		return Counter{}, false
	}
	return c.clone(), true
}

// Entry is a counter with its derived ratio, for display.
type Entry struct {
	Worker string  `json:"worker"`
	Ratio  float64 `json:"ratio"`
	Counter
}

// Counters lists a modality's counters sorted by worker.
func (l *Ledger) Counters(modality string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	byWorker := l.counters[modality]
	out := make([]Entry, 0, len(byWorker))
	for id, c := range byWorker {
		out = append(out, Entry{Worker: id, Ratio: l.ratio(c), Counter: c.clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Worker < out[j].Worker })
	return out
}

// Modalities returns the modalities that have counters, sorted.
func (l *Ledger) Modalities() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.counters))
	for m := range l.counters {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Reset zeroes every counter of a modality.
func (l *Ledger) Reset(modality string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counters, modality)
	delete(l.hours, modality)
}

func (l *Ledger) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counters = make(map[string]map[string]*Counter)
	l.hours = make(map[string]map[string]float64)
}
