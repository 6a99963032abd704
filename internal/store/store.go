// ABOUTME: Run ledger data types and the RunStore interface for audit run history
// ABOUTME: Defines AuditRun, RunStep, RunFilter and the sentinel errors for lookups

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateRun is returned when trying to create a run whose ID already exists
var ErrDuplicateRun = errors.New("run already exists")

// RunState is the coarse lifecycle state of a recorded audit run.
type RunState string

const (
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
)

// ValidRunStates lists all valid run states.
var ValidRunStates = []RunState{RunRunning, RunSucceeded, RunFailed}

// Valid reports whether s is a known run state.
func (s RunState) Valid() bool {
	for _, v := range ValidRunStates {
		if s == v {
			return true
		}
	}
	return false
}

// AuditRun is one recorded execution of the audit workflow.
type AuditRun struct {
	ID              string     `json:"run_id"`
	Title           string     `json:"title"`
	Company         string     `json:"company"`
	State           RunState   `json:"state"`
	LastStep        string     `json:"last_step"`
	SessionID       *int64     `json:"session_id,omitempty"`
	IngestSessionID *int64     `json:"ingest_session_id,omitempty"`
	Message         string     `json:"message,omitempty"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	Steps           []RunStep  `json:"steps,omitempty"`
}

// RunStep records the workflow entering one step.
type RunStep struct {
	RunID     string    `json:"-"`
	Step      string    `json:"step"`
	SessionID *int64    `json:"session_id,omitempty"`
	EnteredAt time.Time `json:"entered_at"`
}

// RunFilter specifies filtering options for listing runs.
type RunFilter struct {
	State *RunState // filter by state
	Limit int       // max results (default 20, max 200)
}

// RunStore persists the audit run ledger. The ledger is history only;
// nothing in the workflow reads it back to make decisions.
type RunStore interface {
	CreateAuditRun(ctx context.Context, run *AuditRun) error
	AppendRunStep(ctx context.Context, step *RunStep) error
	FinishAuditRun(ctx context.Context, run *AuditRun) error
	GetAuditRun(ctx context.Context, id string) (*AuditRun, error)
	ListAuditRuns(ctx context.Context, f RunFilter) ([]*AuditRun, error)
	Close() error
}

var _ RunStore = (*SQLiteStore)(nil)
