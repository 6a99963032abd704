// ABOUTME: SQLite implementation of the RunStore interface using modernc.org/sqlite
// ABOUTME: Opens the database in WAL mode and creates the run ledger schema on startup

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the RunStore interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Connection pragmas below apply to a single connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Runs are written from concurrent tool calls; wait on locks instead of failing.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_runs (
			run_id            TEXT PRIMARY KEY,
			title             TEXT NOT NULL,
			company           TEXT NOT NULL,
			state             TEXT NOT NULL,
			last_step         TEXT NOT NULL DEFAULT '',
			session_id        INTEGER,
			ingest_session_id INTEGER,
			message           TEXT NOT NULL DEFAULT '',
			error             TEXT NOT NULL DEFAULT '',
			started_at        TEXT NOT NULL,
			finished_at       TEXT,

			CHECK (state IN ('running', 'succeeded', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_audit_runs_started ON audit_runs(started_at);
		CREATE INDEX IF NOT EXISTS idx_audit_runs_state ON audit_runs(state);

		CREATE TABLE IF NOT EXISTS audit_run_steps (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT NOT NULL REFERENCES audit_runs(run_id) ON DELETE CASCADE,
			step       TEXT NOT NULL,
			session_id INTEGER,
			entered_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_audit_run_steps_run ON audit_run_steps(run_id, id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if an error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

// isForeignKeyViolation checks if an error is a SQLite foreign key violation
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
