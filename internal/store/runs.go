// ABOUTME: Audit run ledger store methods: create, append steps, finish, get and list runs
// ABOUTME: Timestamps are stored as RFC3339 text; optional filters use nullable query args

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// tsLayout is fixed width so that text ordering matches time ordering.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// CreateAuditRun inserts a new run in the running state.
// Generates ID and StartedAt if not set.
func (s *SQLiteStore) CreateAuditRun(ctx context.Context, run *AuditRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.State == "" {
		run.State = RunRunning
	}

	query := `
		INSERT INTO audit_runs (run_id, title, company, state, last_step, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Title,
		run.Company,
		run.State,
		run.LastStep,
		run.StartedAt.UTC().Format(tsLayout),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateRun
		}
		return fmt.Errorf("inserting audit run: %w", err)
	}

	s.logger.Debug("created audit run", "run_id", run.ID, "title", run.Title)
	return nil
}

// AppendRunStep records a step transition and updates the run's last step.
// Returns ErrNotFound if the run doesn't exist.
func (s *SQLiteStore) AppendRunStep(ctx context.Context, step *RunStep) error {
	if step.EnteredAt.IsZero() {
		step.EnteredAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_run_steps (run_id, step, session_id, entered_at)
		VALUES (?, ?, ?, ?)
	`, step.RunID, step.Step, step.SessionID, step.EnteredAt.UTC().Format(tsLayout))
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("inserting run step: %w", err)
	}

	// Keep the latest known session id on the run itself.
	_, err = tx.ExecContext(ctx, `
		UPDATE audit_runs
		SET last_step = ?, session_id = COALESCE(session_id, ?)
		WHERE run_id = ?
	`, step.Step, step.SessionID, step.RunID)
	if err != nil {
		return fmt.Errorf("updating run last step: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run step: %w", err)
	}
	return nil
}

// FinishAuditRun stores the final state, ids, and message of a run.
// Sets FinishedAt if not set. Returns ErrNotFound if the run doesn't exist.
func (s *SQLiteStore) FinishAuditRun(ctx context.Context, run *AuditRun) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	if !run.State.Valid() || run.State == RunRunning {
		return fmt.Errorf("finishing run %s: invalid final state %q", run.ID, run.State)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE audit_runs
		SET state = ?, last_step = ?, session_id = ?, ingest_session_id = ?,
		    message = ?, error = ?, finished_at = ?
		WHERE run_id = ?
	`,
		run.State,
		run.LastStep,
		run.SessionID,
		run.IngestSessionID,
		run.Message,
		run.Error,
		run.FinishedAt.UTC().Format(tsLayout),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing audit run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("finished audit run", "run_id", run.ID, "state", run.State)
	return nil
}

const auditRunColumns = `run_id, title, company, state, last_step, session_id, ingest_session_id,
	message, error, started_at, finished_at`

// scanAuditRun scans a row into an AuditRun.
func scanAuditRun(scanner interface{ Scan(dest ...any) error }) (*AuditRun, error) {
	var r AuditRun
	var state, startedStr string
	var sessionID, ingestID sql.NullInt64
	var finishedStr sql.NullString

	if err := scanner.Scan(
		&r.ID,
		&r.Title,
		&r.Company,
		&state,
		&r.LastStep,
		&sessionID,
		&ingestID,
		&r.Message,
		&r.Error,
		&startedStr,
		&finishedStr,
	); err != nil {
		return nil, err
	}

	r.State = RunState(state)
	if sessionID.Valid {
		r.SessionID = &sessionID.Int64
	}
	if ingestID.Valid {
		r.IngestSessionID = &ingestID.Int64
	}

	var err error
	r.StartedAt, err = time.Parse(tsLayout, startedStr)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if finishedStr.Valid {
		t, err := time.Parse(tsLayout, finishedStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing finished_at: %w", err)
		}
		r.FinishedAt = &t
	}
	return &r, nil
}

// GetAuditRun returns a run with its steps in the order they were entered.
// Returns ErrNotFound if the run doesn't exist.
func (s *SQLiteStore) GetAuditRun(ctx context.Context, id string) (*AuditRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+auditRunColumns+` FROM audit_runs WHERE run_id = ?`, id)
	run, err := scanAuditRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying audit run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT step, session_id, entered_at
		FROM audit_run_steps
		WHERE run_id = ?
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying run steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var step RunStep
		var sessionID sql.NullInt64
		var enteredStr string
		if err := rows.Scan(&step.Step, &sessionID, &enteredStr); err != nil {
			return nil, fmt.Errorf("scanning run step: %w", err)
		}
		step.RunID = id
		if sessionID.Valid {
			step.SessionID = &sessionID.Int64
		}
		step.EnteredAt, err = time.Parse(tsLayout, enteredStr)
		if err != nil {
			return nil, fmt.Errorf("parsing entered_at: %w", err)
		}
		run.Steps = append(run.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run steps: %w", err)
	}
	return run, nil
}

// normalizeRunLimit applies default (20) and cap (200) to run limit.
func normalizeRunLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 200:
		return 200
	default:
		return limit
	}
}

// ListAuditRuns returns runs matching the filter, newest first. Steps are not loaded.
func (s *SQLiteStore) ListAuditRuns(ctx context.Context, f RunFilter) ([]*AuditRun, error) {
	var stateArg *string
	if f.State != nil {
		st := string(*f.State)
		stateArg = &st
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+auditRunColumns+`
		FROM audit_runs
		WHERE (? IS NULL OR state = ?)
		ORDER BY started_at DESC
		LIMIT ?
	`, stateArg, stateArg, normalizeRunLimit(f.Limit))
	if err != nil {
		return nil, fmt.Errorf("querying audit runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*AuditRun
	for rows.Next() {
		run, err := scanAuditRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning audit run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit runs: %w", err)
	}

	if runs == nil {
		runs = []*AuditRun{}
	}
	return runs, nil
}
