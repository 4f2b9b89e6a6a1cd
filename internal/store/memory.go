package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Cortex/internal/ledger"
)

// MemoryStore keeps everything in process. It backs the "none" ledger
// backend and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	assignments []*Assignment
	state       *ledger.State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveAssignment(_ context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	s.assignments = append(s.assignments, &cp)
	return nil
}

func (s *MemoryStore) ListAssignments(_ context.Context, filter AssignmentFilter) ([]*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*Assignment
	for _, a := range s.assignments {
		if filter.matches(a) {
			cp := *a
			matched = append(matched, &cp)
		}
	}
	return page(matched, filter), nil
}

// page sorts newest first and applies offset and limit.
func page(list []*Assignment, filter AssignmentFilter) []*Assignment {
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if filter.Offset >= len(list) {
		return nil
	}
	list = list[filter.Offset:]
	if len(list) > filter.limit() {
		list = list[:filter.limit()]
	}
	return list
}

func (s *MemoryStore) SaveLedger(_ context.Context, st ledger.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = &st
	return nil
}

func (s *MemoryStore) LoadLedger(_ context.Context) (*ledger.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, nil
	}
	cp := *s.state
	return &cp, nil
}

func (s *MemoryStore) Close() error { return nil }
