// ABOUTME: Audit pack provides the audit workflow and backend session tools.
// ABOUTME: Requires the "audit" capability; every tool fetches a fresh backend token.

package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/audit-gateway/internal/audit"
	"github.com/2389/audit-gateway/internal/backend"
	"github.com/2389/audit-gateway/internal/packs"
)

// AuditTimeoutSeconds bounds create_audit_process: two full poll cycles plus uploads.
const AuditTimeoutSeconds = 7 * 60 * 60

// TokenFailureMessage is returned when no backend token could be obtained.
const TokenFailureMessage = "Failed to obtain access token."

// ErrInvalidInput indicates tool input that failed to decode or validate.
var ErrInvalidInput = errors.New("invalid input")

// SessionBackend is the subset of the backend API the session tools call.
// *backend.Client satisfies it.
type SessionBackend interface {
	ObtainToken(ctx context.Context) (string, error)
	CreateSession(ctx context.Context, token string, in backend.SessionRequest) (*backend.CreateSessionResponse, error)
	ListSessions(ctx context.Context, token string, f backend.SessionFilter) (*backend.SessionList, error)
}

// AuditRunner runs the audit workflow. *audit.Orchestrator satisfies it.
type AuditRunner interface {
	Run(ctx context.Context, req audit.Request) *audit.Result
}

// AuditDeps holds what the audit pack needs.
type AuditDeps struct {
	Backend  SessionBackend
	Runner   AuditRunner
	Username string // named in chat session descriptions
	Logger   *slog.Logger
}

// AuditPack creates the audit pack.
func AuditPack(deps AuditDeps) *packs.BuiltinPack {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &auditHandlers{
		backend:  deps.Backend,
		runner:   deps.Runner,
		username: deps.Username,
		logger:   logger.With("component", "builtins.audit"),
	}
	return &packs.BuiltinPack{
		ID: "builtin:audit",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:                 "create_audit_process",
					Description:          "Creates an audit process: opens a session, uploads the process, normative and audit report files, then processes and ingests them. Blocks until ingestion finishes.",
					InputSchema:          json.RawMessage(createAuditProcessSchema),
					RequiredCapabilities: []string{"audit"},
					TimeoutSeconds:       AuditTimeoutSeconds,
				},
				Handler: h.CreateAuditProcess,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "get_parents_sessions_from_user",
					Description:          "Get parent sessions from user id.",
					InputSchema:          json.RawMessage(`{"type":"object","properties":{"user_id":{"type":"integer"}},"required":["user_id"]}`),
					RequiredCapabilities: []string{"audit"},
				},
				Handler: h.GetParentSessions,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "get_child_sessions_from_user",
					Description:          "Get child sessions from user id and parent session id.",
					InputSchema:          json.RawMessage(`{"type":"object","properties":{"user_id":{"type":"integer"},"parent_session_id":{"type":"integer"}},"required":["user_id","parent_session_id"]}`),
					RequiredCapabilities: []string{"audit"},
				},
				Handler: h.GetChildSessions,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "create_audit_chat_session",
					Description:          "Create an audit chat session under a parent session.",
					InputSchema:          json.RawMessage(`{"type":"object","properties":{"session_name":{"type":"string"},"parent_session_id":{"type":"integer"}},"required":["session_name","parent_session_id"]}`),
					RequiredCapabilities: []string{"audit"},
				},
				Handler: h.CreateAuditChatSession,
			},
		},
	}
}

const fileListSchema = `{"type":"array","items":{"type":"object","properties":{"filename":{"type":"string"},"file_url":{"type":"string"},"content_base64":{"type":"string"},"description":{"type":"string"}},"required":["filename"]}}`

var createAuditProcessSchema = `{"type":"object","properties":{` +
	`"nombre_compania":{"type":"string"},` +
	`"cargo_usuario":{"type":"string"},` +
	`"titulo_proceso":{"type":"string"},` +
	`"descripcion_proceso":{"type":"string"},` +
	`"urls_planteamiento_proceso_auditoria":` + fileListSchema + `,` +
	`"urls_normativas_proceso":` + fileListSchema + `,` +
	`"urls_informes_auditoria":` + fileListSchema +
	`},"required":["nombre_compania","cargo_usuario","titulo_proceso","descripcion_proceso"]}`

type auditHandlers struct {
	backend  SessionBackend
	runner   AuditRunner
	username string
	logger   *slog.Logger
}

type createAuditProcessOutput struct {
	Message         string `json:"message"`
	RunID           string `json:"run_id"`
	SessionID       int64  `json:"session_id"`
	IngestSessionID int64  `json:"ingest_session_id"`
}

// CreateAuditProcess runs the full audit workflow. A failed run is returned
// as an error carrying the failed step's message.
func (h *auditHandlers) CreateAuditProcess(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
	var req audit.Request
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	h.logger.Info("audit process requested",
		"caller_id", callerID,
		"title", req.ProcessTitle,
		"files", len(req.ProcessFiles)+len(req.Normatives)+len(req.AuditReports),
	)

	res := h.runner.Run(ctx, req)
	if !res.Succeeded() {
		return nil, errors.New(res.Message())
	}

	return json.Marshal(createAuditProcessOutput{
		Message:         res.Message(),
		RunID:           res.RunID,
		SessionID:       res.SessionID,
		IngestSessionID: res.IngestSessionID,
	})
}

type parentSessionsInput struct {
	UserID backend.ID `json:"user_id"`
}

// GetParentSessions lists the information sessions of a user.
func (h *auditHandlers) GetParentSessions(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
	var in parentSessionsInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if in.UserID == 0 {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return h.listSessions(ctx, backend.SessionFilter{UserID: int64(in.UserID), InfoSource: true}, "parent")
}

type childSessionsInput struct {
	UserID          backend.ID `json:"user_id"`
	ParentSessionID backend.ID `json:"parent_session_id"`
}

// GetChildSessions lists the chat sessions under one parent session.
func (h *auditHandlers) GetChildSessions(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
	var in childSessionsInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if in.UserID == 0 || in.ParentSessionID == 0 {
		return nil, fmt.Errorf("%w: user_id and parent_session_id are required", ErrInvalidInput)
	}
	parent := int64(in.ParentSessionID)
	return h.listSessions(ctx, backend.SessionFilter{UserID: int64(in.UserID), ParentSessionID: &parent}, "child")
}

func (h *auditHandlers) listSessions(ctx context.Context, f backend.SessionFilter, kind string) (json.RawMessage, error) {
	token, err := h.backend.ObtainToken(ctx)
	if err != nil {
		h.logger.Warn("token fetch failed", "error", err)
		return nil, errors.New(TokenFailureMessage)
	}

	list, err := h.backend.ListSessions(ctx, token, f)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve %s sessions: %w", kind, err)
	}
	return json.Marshal(list)
}

type chatSessionInput struct {
	SessionName     string     `json:"session_name"`
	ParentSessionID backend.ID `json:"parent_session_id"`
}

// CreateAuditChatSession creates a chat session under a parent session and
// returns the backend's session record.
func (h *auditHandlers) CreateAuditChatSession(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
	var in chatSessionInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	name := strings.TrimSpace(in.SessionName)
	if name == "" || in.ParentSessionID == 0 {
		return nil, fmt.Errorf("%w: session_name and parent_session_id are required", ErrInvalidInput)
	}

	token, err := h.backend.ObtainToken(ctx)
	if err != nil {
		h.logger.Warn("token fetch failed", "error", err)
		return nil, errors.New(TokenFailureMessage)
	}

	parent := int64(in.ParentSessionID)
	resp, err := h.backend.CreateSession(ctx, token, backend.SessionRequest{
		Name:               name,
		AnalysisType:       backend.AnalysisTypeAudit,
		Task:               fmt.Sprintf("Audit Chat Session: %s. Parent Session ID: %d", name, parent),
		Objective:          "Audit Chat Session",
		ProcessDescription: fmt.Sprintf("Audit chat session created on behalf of user %s. Parent Session ID: %d", h.username, parent),
		ProcessName:        name,
		IsInfoSource:       0,
		ParentSessionID:    &parent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audit chat session: %w", err)
	}
	return json.Marshal(resp)
}
