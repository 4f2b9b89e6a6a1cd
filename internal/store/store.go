package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Cortex/internal/ledger"
)

// Assignment is one accepted selection, written after the ledger was
// charged.
type Assignment struct {
	ID                uuid.UUID `json:"assignment_id"`
	Modality          string    `json:"modality"`
	RequestedModality string    `json:"requested_modality"`
	Skill             string    `json:"skill"`
	PoolSkill         string    `json:"pool_skill"`
	Worker            string    `json:"worker"`
	Level             int       `json:"level"`
	Phase             int       `json:"phase"`
	Weight            float64   `json:"weight"`
	RatioAfter        float64   `json:"ratio_after"`
	Assisted          bool      `json:"assisted"`
	Strict            bool      `json:"strict"`
	CreatedAt         time.Time `json:"created_at"`
}

type AssignmentFilter struct {
	Modality string
	Worker   string
	Since    *time.Time
	Limit    int
	Offset   int
}

const defaultListLimit = 100

func (f AssignmentFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

func (f AssignmentFilter) matches(a *Assignment) bool {
	if f.Modality != "" && a.Modality != f.Modality {
		return false
	}
	if f.Worker != "" && a.Worker != f.Worker {
		return false
	}
	if f.Since != nil && a.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Store persists the assignment log and ledger snapshots. LoadLedger returns
// nil, nil when nothing was saved yet.
type Store interface {
	SaveAssignment(ctx context.Context, a *Assignment) error
	ListAssignments(ctx context.Context, filter AssignmentFilter) ([]*Assignment, error)

	SaveLedger(ctx context.Context, st ledger.State) error
	LoadLedger(ctx context.Context) (*ledger.State, error)

	Close() error
}
