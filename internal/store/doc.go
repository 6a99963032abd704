// Package store provides persistent storage for the gateway using SQLite.
//
// # Run Ledger
//
// The only persisted data is the audit run ledger: one audit_runs row per
// create_audit_process invocation and one audit_run_steps row per workflow
// step entered. The ledger is append-only history for operators and the
// list_audit_runs tool; the workflow itself never reads it.
//
//	audit_runs       run_id, title, company, state, last_step, session ids,
//	                 message, error, started_at, finished_at
//	audit_run_steps  run_id, step, session_id, entered_at
//
// # Usage
//
//	s, err := store.NewSQLiteStore("./data/runs.db")
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	run := &store.AuditRun{Title: "Q3 audit"}
//	s.CreateAuditRun(ctx, run)
//	s.AppendRunStep(ctx, &store.RunStep{RunID: run.ID, Step: "create_session"})
//
// The driver is modernc.org/sqlite (pure Go, no cgo). The database runs in
// WAL mode with foreign keys enabled.
package store
