// ABOUTME: Fail-fast batch upload of file descriptors through presigned targets.
// ABOUTME: Maps batch kinds to object prefixes and produces uploaded-file records.

package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gabriel-vasile/mimetype"

	"github.com/2389/audit-gateway/internal/backend"
)

// RecordType is the type tag carried by every uploaded-file record.
const RecordType = "file"

// BatchKind selects the folder an upload batch lands in.
type BatchKind int

const (
	// ProcessFiles land at the session root.
	ProcessFiles BatchKind = iota
	// Normatives land under the session's norm folder.
	Normatives
	// AuditReports land under the session's audits folder.
	AuditReports
	// Unscoped batches send no prefix and let the backend choose.
	Unscoped
)

// Folder names under the session root.
const (
	NormsFolder  = "norm"
	AuditsFolder = "audits"
)

func (k BatchKind) String() string {
	switch k {
	case ProcessFiles:
		return "process_files"
	case Normatives:
		return "normatives"
	case AuditReports:
		return "audit_reports"
	default:
		return "unscoped"
	}
}

// SessionPrefix is the storage namespace of a session: company/user/session.
func SessionPrefix(companyID, userID, sessionID int64) string {
	return fmt.Sprintf("%d/%d/%d", companyID, userID, sessionID)
}

// ObjectPrefix returns the prefix for a batch kind, or "" for Unscoped.
func ObjectPrefix(companyID, userID, sessionID int64, kind BatchKind) string {
	root := SessionPrefix(companyID, userID, sessionID)
	switch kind {
	case ProcessFiles:
		return root
	case Normatives:
		return root + "/" + NormsFolder
	case AuditReports:
		return root + "/" + AuditsFolder
	default:
		return ""
	}
}

// Uploader mints presigned targets and performs uploads to them.
// *backend.Client satisfies it.
type Uploader interface {
	RequestUploadTarget(ctx context.Context, token string, sessionID int64, objectName, prefix string) (*backend.UploadTarget, error)
	PerformUpload(ctx context.Context, target *backend.UploadTarget, filename string, content []byte, contentType string) error
}

// Config holds configuration for a Pipeline.
type Config struct {
	Uploader     Uploader
	HTTPClient   *http.Client // used for source downloads
	MaxFileBytes int64
	CompanyID    int64
	UserID       int64
	Logger       *slog.Logger
}

// Pipeline downloads or decodes sources and pushes them through presigned uploads.
type Pipeline struct {
	uploader  Uploader
	fetcher   *Fetcher
	companyID int64
	userID    int64
	logger    *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		uploader:  cfg.Uploader,
		fetcher:   NewFetcher(cfg.HTTPClient, cfg.MaxFileBytes),
		companyID: cfg.CompanyID,
		userID:    cfg.UserID,
		logger:    logger.With("component", "transfer"),
	}
}

// Prefix returns the object prefix for a batch kind within a session.
func (p *Pipeline) Prefix(sessionID int64, kind BatchKind) string {
	return ObjectPrefix(p.companyID, p.userID, sessionID, kind)
}

// UploadBatch transfers files in order and returns one record per file.
// The first failing file aborts the batch: no later file is fetched or
// uploaded, and no records are returned. Objects already stored for earlier
// files in the batch are left in place.
func (p *Pipeline) UploadBatch(ctx context.Context, files []FileDescriptor, sessionID int64, token string, kind BatchKind) ([]backend.UploadedFile, error) {
	prefix := p.Prefix(sessionID, kind)
	records := make([]backend.UploadedFile, 0, len(files))

	for i, file := range files {
		content, err := p.fetcher.Fetch(ctx, file)
		if err != nil {
			p.logger.Warn("batch aborted", "batch", kind.String(), "index", i, "filename", file.Filename, "error", err)
			return nil, fmt.Errorf("%s batch, file %d: %w", kind, i, err)
		}

		record, err := p.UploadObject(ctx, sessionID, token, prefix, file.Filename, content, "", file.Description)
		if err != nil {
			p.logger.Warn("batch aborted", "batch", kind.String(), "index", i, "filename", file.Filename, "error", err)
			return nil, fmt.Errorf("%s batch, file %d: %w", kind, i, err)
		}
		records = append(records, record)
	}

	p.logger.Info("batch uploaded", "batch", kind.String(), "session_id", sessionID, "files", len(records))
	return records, nil
}

// UploadObject mints a target for one object and uploads content to it.
// An empty contentType is sniffed from the content.
func (p *Pipeline) UploadObject(ctx context.Context, sessionID int64, token, prefix, name string, content []byte, contentType, description string) (backend.UploadedFile, error) {
	if contentType == "" {
		contentType = mimetype.Detect(content).String()
	}

	target, err := p.uploader.RequestUploadTarget(ctx, token, sessionID, name, prefix)
	if err != nil {
		return backend.UploadedFile{}, err
	}
	if err := p.uploader.PerformUpload(ctx, target, name, content, contentType); err != nil {
		return backend.UploadedFile{}, err
	}

	return backend.UploadedFile{
		Name:         name,
		StorageKey:   target.Key(),
		Description:  description,
		FolderPrefix: prefix,
		Type:         RecordType,
	}, nil
}
