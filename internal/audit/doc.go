// Package audit drives the end-to-end audit workflow against the backend.
//
// A run is a linear state machine. Each state performs one step and moves to
// its successor on success or to StateFailed on any error:
//
//	obtain_token -> create_session -> upload_process_files -> upload_normatives
//	  -> upload_audit_reports -> upload_activity -> trigger_processing
//	  -> poll_processing -> trigger_ingest -> poll_ingestion -> succeeded
//
// poll_processing waits a settle delay and refreshes the token before polling.
// trigger_ingest refreshes the token again, since the first poll cycle can run
// for hours.
//
// Result keeps the typed error for callers that need errors.Is, and Message
// returns the plain per-step text that tool callers see. A Recorder, such as
// LedgerRecorder, observes each run without influencing it.
package audit
