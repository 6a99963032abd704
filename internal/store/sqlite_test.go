// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers store creation and the audit run ledger: create, steps, finish, get, list

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a store backed by a temporary database file.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func int64Ptr(v int64) *int64 { return &v }

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created in nested directory")
}

func TestCreateAuditRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run := &AuditRun{Title: "Q3 audit", Company: "ACME"}
	require.NoError(t, store.CreateAuditRun(ctx, run))

	// Should have generated ID, timestamp and state
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.StartedAt.IsZero())
	assert.Equal(t, RunRunning, run.State)

	got, err := store.GetAuditRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "Q3 audit", got.Title)
	assert.Equal(t, "ACME", got.Company)
	assert.Equal(t, RunRunning, got.State)
	assert.Nil(t, got.FinishedAt)
	assert.Nil(t, got.SessionID)
	assert.Empty(t, got.Steps)
}

func TestCreateAuditRun_Duplicate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAuditRun(ctx, &AuditRun{ID: "run-1", Title: "a"}))
	err := store.CreateAuditRun(ctx, &AuditRun{ID: "run-1", Title: "b"})
	assert.ErrorIs(t, err, ErrDuplicateRun)
}

func TestAppendRunStep(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run := &AuditRun{Title: "Q3 audit"}
	require.NoError(t, store.CreateAuditRun(ctx, run))

	steps := []*RunStep{
		{RunID: run.ID, Step: "obtain_token"},
		{RunID: run.ID, Step: "create_session"},
		{RunID: run.ID, Step: "upload_process_files", SessionID: int64Ptr(42)},
	}
	for _, s := range steps {
		require.NoError(t, store.AppendRunStep(ctx, s))
	}

	got, err := store.GetAuditRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got.Steps, 3)
	assert.Equal(t, "obtain_token", got.Steps[0].Step)
	assert.Equal(t, "upload_process_files", got.Steps[2].Step)
	require.NotNil(t, got.Steps[2].SessionID)
	assert.Equal(t, int64(42), *got.Steps[2].SessionID)
	assert.Equal(t, "upload_process_files", got.LastStep)
	require.NotNil(t, got.SessionID)
	assert.Equal(t, int64(42), *got.SessionID)
}

func TestAppendRunStep_UnknownRun(t *testing.T) {
	store := setupTestStore(t)

	err := store.AppendRunStep(context.Background(), &RunStep{RunID: "missing", Step: "obtain_token"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinishAuditRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run := &AuditRun{Title: "Q3 audit"}
	require.NoError(t, store.CreateAuditRun(ctx, run))

	run.State = RunSucceeded
	run.LastStep = "succeeded"
	run.SessionID = int64Ptr(42)
	run.IngestSessionID = int64Ptr(777)
	run.Message = "done"
	require.NoError(t, store.FinishAuditRun(ctx, run))

	got, err := store.GetAuditRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunSucceeded, got.State)
	assert.Equal(t, int64(777), *got.IngestSessionID)
	assert.Equal(t, "done", got.Message)
	require.NotNil(t, got.FinishedAt)
}

func TestFinishAuditRun_Errors(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.FinishAuditRun(ctx, &AuditRun{ID: "missing", State: RunFailed})
	assert.ErrorIs(t, err, ErrNotFound)

	run := &AuditRun{Title: "x"}
	require.NoError(t, store.CreateAuditRun(ctx, run))
	run.State = RunRunning
	assert.Error(t, store.FinishAuditRun(ctx, run))
}

func TestGetAuditRun_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetAuditRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAuditRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		run := &AuditRun{
			ID:        fmt.Sprintf("run-%d", i),
			Title:     fmt.Sprintf("audit %d", i),
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.CreateAuditRun(ctx, run))
		if i%2 == 0 {
			run.State = RunFailed
			require.NoError(t, store.FinishAuditRun(ctx, run))
		}
	}

	t.Run("newest first", func(t *testing.T) {
		runs, err := store.ListAuditRuns(ctx, RunFilter{})
		require.NoError(t, err)
		require.Len(t, runs, 5)
		assert.Equal(t, "run-4", runs[0].ID)
		assert.Equal(t, "run-0", runs[4].ID)
	})

	t.Run("limit", func(t *testing.T) {
		runs, err := store.ListAuditRuns(ctx, RunFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, runs, 2)
	})

	t.Run("state filter", func(t *testing.T) {
		state := RunFailed
		runs, err := store.ListAuditRuns(ctx, RunFilter{State: &state})
		require.NoError(t, err)
		require.Len(t, runs, 3)
		for _, r := range runs {
			assert.Equal(t, RunFailed, r.State)
		}
	})

	t.Run("empty result is not nil", func(t *testing.T) {
		state := RunSucceeded
		runs, err := store.ListAuditRuns(ctx, RunFilter{State: &state})
		require.NoError(t, err)
		assert.NotNil(t, runs)
		assert.Empty(t, runs)
	})
}

func TestNormalizeRunLimit(t *testing.T) {
	assert.Equal(t, 20, normalizeRunLimit(0))
	assert.Equal(t, 20, normalizeRunLimit(-3))
	assert.Equal(t, 7, normalizeRunLimit(7))
	assert.Equal(t, 200, normalizeRunLimit(5000))
}

func TestRunStateValid(t *testing.T) {
	assert.True(t, RunFailed.Valid())
	assert.False(t, RunState("paused").Valid())
}
