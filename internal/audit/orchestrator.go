// ABOUTME: Audit workflow orchestrator driving session creation, uploads, triggers and polls.
// ABOUTME: Runs as an explicit state machine that aborts on the first failed step.

package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/audit-gateway/internal/backend"
	"github.com/2389/audit-gateway/internal/poll"
	"github.com/2389/audit-gateway/internal/transfer"
)

// DefaultSettleDelay is the wait between the processing trigger and the first poll.
const DefaultSettleDelay = 3 * time.Second

// ErrUnexpectedStatus indicates a poll cycle ended with the backend reporting failure.
var ErrUnexpectedStatus = errors.New("task finished with unexpected status")

// Backend is the subset of the backend API the workflow calls.
// *backend.Client satisfies it.
type Backend interface {
	ObtainToken(ctx context.Context) (string, error)
	CreateSession(ctx context.Context, token string, in backend.SessionRequest) (*backend.CreateSessionResponse, error)
	TriggerSearch(ctx context.Context, token string, in backend.SearchRequest) error
	TriggerIngest(ctx context.Context, token string, in backend.IngestRequest) (int64, error)
}

// Uploader transfers file batches and single objects. *transfer.Pipeline satisfies it.
type Uploader interface {
	UploadBatch(ctx context.Context, files []transfer.FileDescriptor, sessionID int64, token string, kind transfer.BatchKind) ([]backend.UploadedFile, error)
	UploadObject(ctx context.Context, sessionID int64, token, prefix, name string, content []byte, contentType, description string) (backend.UploadedFile, error)
	Prefix(sessionID int64, kind transfer.BatchKind) string
}

// Poller waits for a backend task to finish. *poll.Poller satisfies it.
type Poller interface {
	Poll(ctx context.Context, sessionID int64, token string, analysisTypeID int) poll.Outcome
}

// Recorder observes a run. Recorder errors are logged and never fail the run.
type Recorder interface {
	RunStarted(ctx context.Context, runID string, req Request) error
	StepEntered(ctx context.Context, runID string, state State, sessionID int64) error
	RunFinished(ctx context.Context, res *Result) error
}

// Config holds configuration for an Orchestrator.
type Config struct {
	Backend     Backend
	Uploader    Uploader
	Poller      Poller
	Recorder    Recorder // optional
	Username    string   // named in session descriptions
	Region      string
	SettleDelay time.Duration
	Logger      *slog.Logger

	// Sleep is injectable for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Orchestrator runs audit workflows. It holds no per-run state and is safe
// for concurrent use.
type Orchestrator struct {
	backend     Backend
	uploader    Uploader
	poller      Poller
	recorder    Recorder
	username    string
	region      string
	settleDelay time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settle := cfg.SettleDelay
	if settle < 0 {
		settle = 0
	} else if settle == 0 {
		settle = DefaultSettleDelay
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Orchestrator{
		backend:     cfg.Backend,
		uploader:    cfg.Uploader,
		poller:      cfg.Poller,
		recorder:    cfg.Recorder,
		username:    cfg.Username,
		region:      cfg.Region,
		settleDelay: settle,
		sleep:       sleep,
		logger:      logger.With("component", "audit"),
	}
}

// Result is the outcome of one audit run.
type Result struct {
	RunID           string
	Request         Request
	State           State // StateSucceeded or StateFailed
	FailedAt        State // step that failed; meaningful only when State is StateFailed
	SessionID       int64
	IngestSessionID int64
	Files           []backend.UploadedFile
	Err             error
}

// Succeeded reports whether both poll cycles completed.
func (r *Result) Succeeded() bool {
	return r.State == StateSucceeded
}

// Message is the caller-facing summary: the success message or the failed step's message.
func (r *Result) Message() string {
	if r.Succeeded() {
		return SuccessMessage
	}
	if msg, ok := failureMessages[r.FailedAt]; ok {
		return msg
	}
	return "Audit process failed."
}

// run carries the values produced by earlier steps.
type run struct {
	req             Request
	token           string
	sessionID       int64
	ingestSessionID int64
	records         []backend.UploadedFile
}

// Run executes the workflow for req. Steps run strictly in order; the first
// failure ends the run. Cancelling ctx aborts the current step.
func (o *Orchestrator) Run(ctx context.Context, req Request) *Result {
	res := &Result{RunID: uuid.New().String(), Request: req}
	logger := o.logger.With("run_id", res.RunID)

	// Ledger writes must land even when the run itself was cancelled.
	recordCtx := context.WithoutCancel(ctx)
	if o.recorder != nil {
		if err := o.recorder.RunStarted(recordCtx, res.RunID, req); err != nil {
			logger.Warn("recording run start failed", "error", err)
		}
	}

	logger.Info("audit run started", "title", req.ProcessTitle)

	r := &run{req: req}
	state := StateObtainToken
	for !state.Terminal() {
		if o.recorder != nil {
			if err := o.recorder.StepEntered(recordCtx, res.RunID, state, r.sessionID); err != nil {
				logger.Warn("recording step failed", "state", state.String(), "error", err)
			}
		}

		start := time.Now()
		err := o.step(ctx, state, r)
		next := state.Next(err == nil)

		if err != nil {
			res.FailedAt = state
			res.Err = fmt.Errorf("%s: %w", state, err)
			logger.Warn("audit step failed",
				"state", state.String(),
				"session_id", r.sessionID,
				"duration", time.Since(start),
				"error", err,
			)
		} else {
			logger.Debug("audit step completed",
				"state", state.String(),
				"next", next.String(),
				"session_id", r.sessionID,
				"duration", time.Since(start),
			)
		}
		state = next
	}

	res.State = state
	res.SessionID = r.sessionID
	res.IngestSessionID = r.ingestSessionID
	res.Files = r.records

	if res.Succeeded() {
		logger.Info("audit run succeeded", "session_id", r.sessionID, "ingest_session_id", r.ingestSessionID)
	} else {
		logger.Warn("audit run failed", "failed_at", res.FailedAt.String(), "error", res.Err)
	}

	if o.recorder != nil {
		if err := o.recorder.RunFinished(recordCtx, res); err != nil {
			logger.Warn("recording run finish failed", "error", err)
		}
	}
	return res
}

// step performs the work of one state.
func (o *Orchestrator) step(ctx context.Context, state State, r *run) error {
	switch state {
	case StateObtainToken:
		return o.refreshToken(ctx, r)
	case StateCreateSession:
		return o.createSession(ctx, r)
	case StateUploadProcessFiles:
		return o.uploadBatch(ctx, r, r.req.ProcessFiles, transfer.ProcessFiles)
	case StateUploadNormatives:
		return o.uploadBatch(ctx, r, r.req.Normatives, transfer.Normatives)
	case StateUploadAuditReports:
		return o.uploadBatch(ctx, r, r.req.AuditReports, transfer.AuditReports)
	case StateUploadActivity:
		return o.uploadActivity(ctx, r)
	case StateTriggerProcessing:
		return o.triggerProcessing(ctx, r)
	case StatePollProcessing:
		if err := o.sleep(ctx, o.settleDelay); err != nil {
			return err
		}
		if err := o.refreshToken(ctx, r); err != nil {
			return err
		}
		return o.awaitTask(ctx, r.sessionID, r.token)
	case StateTriggerIngest:
		// The processing poll can outlive a token.
		if err := o.refreshToken(ctx, r); err != nil {
			return err
		}
		return o.triggerIngest(ctx, r)
	case StatePollIngestion:
		return o.awaitTask(ctx, r.ingestSessionID, r.token)
	default:
		return fmt.Errorf("no step for state %s", state)
	}
}

func (o *Orchestrator) refreshToken(ctx context.Context, r *run) error {
	token, err := o.backend.ObtainToken(ctx)
	if err != nil {
		return err
	}
	r.token = token
	return nil
}

func (o *Orchestrator) createSession(ctx context.Context, r *run) error {
	title := r.req.ProcessTitle
	resp, err := o.backend.CreateSession(ctx, r.token, backend.SessionRequest{
		Name:               title,
		AnalysisType:       backend.AnalysisTypeAudit,
		Task:               fmt.Sprintf("Audit Process Creation: %s. Parent Session ID of process: %s", title, title),
		Objective:          "Audit Process",
		ProcessDescription: fmt.Sprintf("Audit process created on behalf of user %s. Parent Session ID of process: %s", o.username, title),
		IsInfoSource:       1,
	})
	if err != nil {
		return err
	}
	r.sessionID = int64(resp.Session.ID)
	return nil
}

func (o *Orchestrator) uploadBatch(ctx context.Context, r *run, files []transfer.FileDescriptor, kind transfer.BatchKind) error {
	records, err := o.uploader.UploadBatch(ctx, files, r.sessionID, r.token, kind)
	if err != nil {
		return err
	}
	r.records = append(r.records, records...)
	return nil
}

func (o *Orchestrator) uploadActivity(ctx context.Context, r *run) error {
	prefix := o.uploader.Prefix(r.sessionID, transfer.ProcessFiles)
	record, err := o.uploader.UploadObject(ctx, r.sessionID, r.token, prefix,
		ActivityFilename, []byte(r.req.ActivityText()), "text/plain", ActivityDescription)
	if err != nil {
		return err
	}
	r.records = append(r.records, record)
	return nil
}

func (o *Orchestrator) triggerProcessing(ctx context.Context, r *run) error {
	return o.backend.TriggerSearch(ctx, r.token, backend.SearchRequest{
		SessionID: r.sessionID,
		Files:     r.records,
		Context:   backend.AuditContext,
		AuditDemo: backend.AuditDetails{
			Company:            r.req.CompanyName,
			Job:                r.req.UserRole,
			ProjectDescription: r.req.ProcessDescription,
			ImageFormat:        "svg",
			NormsFolder:        transfer.NormsFolder,
			AuditsFolder:       transfer.AuditsFolder,
		},
	})
}

func (o *Orchestrator) triggerIngest(ctx context.Context, r *run) error {
	id, err := o.backend.TriggerIngest(ctx, r.token, backend.IngestRequest{
		Region:       o.region,
		SessionID:    r.sessionID,
		ObjectPrefix: o.uploader.Prefix(r.sessionID, transfer.ProcessFiles),
		Context:      backend.AuditContext,
	})
	if err != nil {
		return err
	}
	r.ingestSessionID = id
	return nil
}

// awaitTask runs one poll cycle and maps any outcome but completed to an error.
func (o *Orchestrator) awaitTask(ctx context.Context, sessionID int64, token string) error {
	out := o.poller.Poll(ctx, sessionID, token, backend.AnalysisTypeAudit)
	switch out.State {
	case poll.Completed:
		return nil
	case poll.Failed:
		return fmt.Errorf("%w: session %d reported %s after %d requests",
			ErrUnexpectedStatus, sessionID, out.Response.Status, out.Requests)
	default:
		return out.Err
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
