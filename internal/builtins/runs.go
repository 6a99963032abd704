// ABOUTME: Runs pack exposes the audit run ledger to callers.
// ABOUTME: Requires the "runs" capability.

package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/audit-gateway/internal/packs"
	"github.com/2389/audit-gateway/internal/store"
)

// RunsPack creates the runs pack with list and get tools.
func RunsPack(s store.RunStore) *packs.BuiltinPack {
	h := &runsHandlers{store: s}
	return &packs.BuiltinPack{
		ID: "builtin:runs",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:                 "list_audit_runs",
					Description:          "List recent audit process runs, newest first",
					InputSchema:          json.RawMessage(`{"type":"object","properties":{"limit":{"type":"integer"},"state":{"type":"string","enum":["running","succeeded","failed"]}}}`),
					RequiredCapabilities: []string{"runs"},
				},
				Handler: h.ListRuns,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "get_audit_run",
					Description:          "Get one audit process run with its step history",
					InputSchema:          json.RawMessage(`{"type":"object","properties":{"run_id":{"type":"string"}},"required":["run_id"]}`),
					RequiredCapabilities: []string{"runs"},
				},
				Handler: h.GetRun,
			},
		},
	}
}

type runsHandlers struct {
	store store.RunStore
}

type listRunsInput struct {
	Limit int    `json:"limit"`
	State string `json:"state"`
}

type listRunsOutput struct {
	Runs  []*store.AuditRun `json:"runs"`
	Count int               `json:"count"`
}

func (h *runsHandlers) ListRuns(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
	var in listRunsInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}

	filter := store.RunFilter{Limit: in.Limit}
	if in.State != "" {
		state := store.RunState(in.State)
		if !state.Valid() {
			return nil, fmt.Errorf("%w: unknown state %q", ErrInvalidInput, in.State)
		}
		filter.State = &state
	}

	runs, err := h.store.ListAuditRuns(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if runs == nil {
		runs = []*store.AuditRun{}
	}
	return json.Marshal(listRunsOutput{Runs: runs, Count: len(runs)})
}

type getRunInput struct {
	RunID string `json:"run_id"`
}

func (h *runsHandlers) GetRun(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
	var in getRunInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if in.RunID == "" {
		return nil, fmt.Errorf("%w: run_id is required", ErrInvalidInput)
	}

	run, err := h.store.GetAuditRun(ctx, in.RunID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("run %s not found", in.RunID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return json.Marshal(run)
}
