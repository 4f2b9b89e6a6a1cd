package hermes

import "time"

type AssignedEvent struct {
	AssignmentID string    `json:"assignment_id"`
	Modality     string    `json:"modality"`
	Requested    string    `json:"requested_modality"`
	Skill        string    `json:"skill"`
	PoolSkill    string    `json:"pool_skill"`
	Worker       string    `json:"worker"`
	Level        int       `json:"level"`
	Phase        int       `json:"phase"`
	Weight       float64   `json:"weight"`
	RatioAfter   float64   `json:"ratio_after"`
	Assisted     bool      `json:"assisted,omitempty"`
	Strict       bool      `json:"strict,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type UnmatchedEvent struct {
	Modality  string    `json:"modality"`
	Skill     string    `json:"skill"`
	Strict    bool      `json:"strict"`
	Phase     int       `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// LedgerResetEvent is both published after a reset and accepted on
// SubjectLedgerReset. An empty Modality means every modality.
type LedgerResetEvent struct {
	Modality  string    `json:"modality"`
	Timestamp time.Time `json:"timestamp"`
}

// RosterReloadEvent asks the broker to pull the roster feed again.
type RosterReloadEvent struct {
	Reason string `json:"reason,omitempty"`
}
