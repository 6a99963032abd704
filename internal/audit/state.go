// ABOUTME: Workflow states of an audit run and the transition table between them.
// ABOUTME: Every step advances on success; any failure moves to the absorbing Failed state.

package audit

// State is a step of the audit workflow.
type State int

const (
	StateObtainToken State = iota
	StateCreateSession
	StateUploadProcessFiles
	StateUploadNormatives
	StateUploadAuditReports
	StateUploadActivity
	StateTriggerProcessing
	StatePollProcessing
	StateTriggerIngest
	StatePollIngestion
	StateSucceeded
	StateFailed
)

var stateNames = map[State]string{
	StateObtainToken:        "obtain_token",
	StateCreateSession:      "create_session",
	StateUploadProcessFiles: "upload_process_files",
	StateUploadNormatives:   "upload_normatives",
	StateUploadAuditReports: "upload_audit_reports",
	StateUploadActivity:     "upload_activity",
	StateTriggerProcessing:  "trigger_processing",
	StatePollProcessing:     "poll_processing",
	StateTriggerIngest:      "trigger_ingest",
	StatePollIngestion:      "poll_ingestion",
	StateSucceeded:          "succeeded",
	StateFailed:             "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition leaves s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// successor is the state entered when a step succeeds.
var successor = map[State]State{
	StateObtainToken:        StateCreateSession,
	StateCreateSession:      StateUploadProcessFiles,
	StateUploadProcessFiles: StateUploadNormatives,
	StateUploadNormatives:   StateUploadAuditReports,
	StateUploadAuditReports: StateUploadActivity,
	StateUploadActivity:     StateTriggerProcessing,
	StateTriggerProcessing:  StatePollProcessing,
	StatePollProcessing:     StateTriggerIngest,
	StateTriggerIngest:      StatePollIngestion,
	StatePollIngestion:      StateSucceeded,
}

// Next returns the state after s given the step outcome.
// Terminal states never change.
func (s State) Next(ok bool) State {
	if s.Terminal() {
		return s
	}
	if !ok {
		return StateFailed
	}
	return successor[s]
}

// failureMessages are the caller-facing messages for a failure at each step.
var failureMessages = map[State]string{
	StateObtainToken:        "Failed to obtain access token.",
	StateCreateSession:      "Failed to create session.",
	StateUploadProcessFiles: "Failed to upload files.",
	StateUploadNormatives:   "Failed to upload normative files.",
	StateUploadAuditReports: "Failed to upload audit report files.",
	StateUploadActivity:     "Failed to upload activity.txt",
	StateTriggerProcessing:  "Failed to process files.",
	StatePollProcessing:     "Failed to process files.",
	StateTriggerIngest:      "Failed to ingest data.",
	StatePollIngestion:      "Failed to ingest data.",
}

// SuccessMessage is returned when both poll cycles complete.
const SuccessMessage = "Audit process created and files processed successfully."
