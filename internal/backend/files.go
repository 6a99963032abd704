// ABOUTME: File endpoints: presigned upload targets, binary uploads, and the
// ABOUTME: processing/ingest triggers plus the task status query used for polling.

package backend

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// AuditContext is the processing context sent with audit triggers.
const AuditContext = "audit_demo"

// UploadTarget is a backend-minted destination for a direct storage upload.
type UploadTarget struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// Key returns the storage key the object will land under.
func (t *UploadTarget) Key() string {
	return t.Fields["key"]
}

// UploadedFile describes one stored object handed to the processing trigger.
type UploadedFile struct {
	Name         string `json:"name"`
	StorageKey   string `json:"s3_key"`
	Description  string `json:"description"`
	FolderPrefix string `json:"file_prefix"`
	Type         string `json:"type"`
}

type presignRequest struct {
	ObjectName     string  `json:"object_name"`
	AnalysisTypeID int     `json:"analysis_type_id"`
	CompanyID      int64   `json:"company_id"`
	UserID         int64   `json:"user_id"`
	SessionID      int64   `json:"session_id"`
	BucketName     string  `json:"s3_bucket_name"`
	ObjectPrefix   *string `json:"object_prefix"`
}

// RequestUploadTarget asks the backend for a presigned destination for objectName.
// An empty prefix is sent as null, leaving placement to the backend.
func (c *Client) RequestUploadTarget(ctx context.Context, token string, sessionID int64, objectName, prefix string) (*UploadTarget, error) {
	body := presignRequest{
		ObjectName:     objectName,
		AnalysisTypeID: AnalysisTypeAudit,
		CompanyID:      c.creds.CompanyID,
		UserID:         c.creds.UserID,
		SessionID:      sessionID,
		BucketName:     c.bucket,
	}
	if prefix != "" {
		body.ObjectPrefix = &prefix
	}

	req, err := newJSONRequest(ctx, http.MethodPost, c.apiURL+"/files/upload", token, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPresign, err)
	}

	var out UploadTarget
	if err := c.do(req, "request upload target", ErrPresign, &out); err != nil {
		return nil, err
	}
	if out.URL == "" {
		return nil, decodeError(ErrPresign, "request upload target", "missing url")
	}
	if out.Key() == "" {
		return nil, decodeError(ErrPresign, "request upload target", "missing fields.key")
	}
	return &out, nil
}

// PerformUpload submits content to the target as a multipart form: the target's
// fields first, then the file part. Only 200 and 204 count as success.
func (c *Client) PerformUpload(ctx context.Context, target *UploadTarget, filename string, content []byte, contentType string) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	// Storage policies require the policy fields ahead of the file part.
	keys := make([]string, 0, len(target.Fields))
	for k := range target.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writer.WriteField(k, target.Fields[k]); err != nil {
			return fmt.Errorf("%w: writing field %s: %w", ErrUpload, k, err)
		}
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("%w: creating file part: %w", ErrUpload, err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("%w: writing file part: %w", ErrUpload, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("%w: closing form: %w", ErrUpload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, &buf)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpload, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUpload, filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return newStatusError("upload "+filename, ErrUpload, resp)
	}

	c.logger.Debug("object uploaded",
		"filename", filename,
		"key", target.Key(),
		"bytes", len(content),
		"status", resp.StatusCode,
	)
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// AuditDetails is the audit-specific block of a processing trigger.
type AuditDetails struct {
	Company            string `json:"axon_company"`
	Job                string `json:"axon_job"`
	ProjectDescription string `json:"axon_project_description"`
	ImageFormat        string `json:"axon_image_format"`
	NormsFolder        string `json:"norms_folder"`
	AuditsFolder       string `json:"audits_folder"`
}

// SearchRequest is the body of the processing ("search") trigger.
type SearchRequest struct {
	CompanyID  int64          `json:"company_id"`
	UserID     int64          `json:"user_id"`
	SessionID  int64          `json:"session_id"`
	Files      []UploadedFile `json:"s3_keys"`
	BucketName string         `json:"s3_bucket_name"`
	Context    string         `json:"context"`
	AuditDemo  AuditDetails   `json:"audit_demo"`
}

// TriggerSearch submits uploaded files for processing. Any non-2xx is a failure.
func (c *Client) TriggerSearch(ctx context.Context, token string, in SearchRequest) error {
	in.CompanyID = c.creds.CompanyID
	in.UserID = c.creds.UserID
	in.BucketName = c.bucket
	if in.Context == "" {
		in.Context = AuditContext
	}

	req, err := newJSONRequest(ctx, http.MethodPost, c.apiURL+"/files/search", token, in)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTrigger, err)
	}
	if err := c.do(req, "trigger processing", ErrTrigger, nil); err != nil {
		return err
	}

	c.logger.Info("processing triggered", "session_id", in.SessionID, "files", len(in.Files))
	return nil
}

// IngestRequest is the body of the data ingest trigger.
type IngestRequest struct {
	Region       string `json:"region"`
	SessionID    int64  `json:"session_id"`
	CompanyID    int64  `json:"company_id"`
	UserID       int64  `json:"user_id"`
	ObjectPrefix string `json:"object_prefix"`
	Context      string `json:"context"`
}

// TriggerIngest starts data ingestion and returns the session id of the ingest job.
func (c *Client) TriggerIngest(ctx context.Context, token string, in IngestRequest) (int64, error) {
	in.CompanyID = c.creds.CompanyID
	in.UserID = c.creds.UserID
	if in.Region == "" {
		in.Region = c.region
	}
	if in.Context == "" {
		in.Context = AuditContext
	}

	req, err := newJSONRequest(ctx, http.MethodPost, c.apiURL+"/ingest_data", token, in)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTrigger, err)
	}

	var out struct {
		SessionID ID `json:"session_id"`
	}
	if err := c.do(req, "trigger ingest", ErrTrigger, &out); err != nil {
		return 0, err
	}
	if out.SessionID == 0 {
		return 0, decodeError(ErrTrigger, "trigger ingest", "missing session_id")
	}

	c.logger.Info("ingest triggered", "session_id", in.SessionID, "ingest_session_id", int64(out.SessionID))
	return int64(out.SessionID), nil
}

// Task status values reported by the status endpoint.
const (
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// TaskStatus is the decoded body of a task status query.
type TaskStatus struct {
	Status string `json:"status"`
	Raw    []byte `json:"-"`
}

// Terminal reports whether the backend considers the task finished.
func (s *TaskStatus) Terminal() bool {
	return s.Status == TaskCompleted || s.Status == TaskFailed
}

// TaskStatus queries the processing status of a session.
// A response without a status field is a decode failure.
func (c *Client) TaskStatus(ctx context.Context, token string, sessionID int64, analysisTypeID int) (*TaskStatus, error) {
	q := url.Values{}
	q.Set("session_id", strconv.FormatInt(sessionID, 10))
	q.Set("analysis_type_id", strconv.Itoa(analysisTypeID))

	req, err := newJSONRequest(ctx, http.MethodGet, c.apiURL+"/task/status?"+q.Encode(), token, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStatus, err)
	}

	var raw rawObject
	if err := c.do(req, "task status", ErrStatus, &raw); err != nil {
		return nil, err
	}
	status, ok := raw.fields["status"].(string)
	if !ok || status == "" {
		return nil, decodeError(ErrStatus, "task status", "missing status")
	}
	return &TaskStatus{Status: status, Raw: raw.data}, nil
}
