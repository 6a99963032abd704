// ABOUTME: Recorder implementation that writes audit runs into the SQLite run ledger.
// ABOUTME: Translates workflow states and results into store rows.

package audit

import (
	"context"
	"errors"

	"github.com/2389/audit-gateway/internal/store"
)

// LedgerRecorder records runs in a store.RunStore.
type LedgerRecorder struct {
	store store.RunStore
}

// NewLedgerRecorder creates a Recorder backed by s.
func NewLedgerRecorder(s store.RunStore) *LedgerRecorder {
	return &LedgerRecorder{store: s}
}

// RunStarted inserts the run in the running state.
func (l *LedgerRecorder) RunStarted(ctx context.Context, runID string, req Request) error {
	return l.store.CreateAuditRun(ctx, &store.AuditRun{
		ID:       runID,
		Title:    req.ProcessTitle,
		Company:  req.CompanyName,
		State:    store.RunRunning,
		LastStep: StateObtainToken.String(),
	})
}

// StepEntered appends a step row. A zero session id is stored as NULL.
func (l *LedgerRecorder) StepEntered(ctx context.Context, runID string, state State, sessionID int64) error {
	return l.store.AppendRunStep(ctx, &store.RunStep{
		RunID:     runID,
		Step:      state.String(),
		SessionID: optionalID(sessionID),
	})
}

// RunFinished stores the final state and caller-facing message.
func (l *LedgerRecorder) RunFinished(ctx context.Context, res *Result) error {
	run := &store.AuditRun{
		ID:              res.RunID,
		State:           store.RunSucceeded,
		LastStep:        res.State.String(),
		SessionID:       optionalID(res.SessionID),
		IngestSessionID: optionalID(res.IngestSessionID),
		Message:         res.Message(),
	}
	if !res.Succeeded() {
		run.State = store.RunFailed
		run.LastStep = res.FailedAt.String()
		if res.Err != nil {
			run.Error = res.Err.Error()
		}
	}
	err := l.store.FinishAuditRun(ctx, run)
	if errors.Is(err, store.ErrNotFound) {
		return errors.Join(errors.New("run was never started in the ledger"), err)
	}
	return err
}

func optionalID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
