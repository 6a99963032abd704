// ABOUTME: HTTP client for the legal document generation service.
// ABOUTME: Lists available templates and uploads PDF templates as multipart forms.

package legaldocs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const maxResponseBody = 1 << 20

var (
	// ErrTemplates indicates the template listing could not be retrieved.
	ErrTemplates = errors.New("template listing failed")

	// ErrUnavailable indicates no service URL is configured.
	ErrUnavailable = errors.New("legal docs service is not configured")
)

// Client talks to the legal docs service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Config holds configuration for a Client.
type Config struct {
	URL        string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a legal docs client. An empty URL yields a client whose
// calls fail with ErrUnavailable.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: httpClient,
		logger:     logger.With("component", "legaldocs"),
	}
}

// Templates returns the names of the available templates.
func (c *Client) Templates(ctx context.Context) ([]string, error) {
	if c.baseURL == "" {
		return nil, ErrUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/get-templates", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemplates, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemplates, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrTemplates, resp.StatusCode)
	}

	var body struct {
		Templates []string `json:"available templates"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrTemplates, err)
	}
	if body.Templates == nil {
		body.Templates = []string{}
	}
	return body.Templates, nil
}

// UploadResult reports the outcome of a template upload.
type UploadResult struct {
	Result     string `json:"result"`
	Filename   string `json:"filename"`
	StatusCode int    `json:"status_code"`
	Success    bool   `json:"success"`
}

// PDFName returns filename with a .pdf suffix, adding one if missing.
func PDFName(filename string) string {
	if strings.HasSuffix(filename, ".pdf") {
		return filename
	}
	return filename + ".pdf"
}

// UploadTemplate decodes base64Content and uploads it as a PDF template.
// Service rejections are reported in the result, not as errors; local and
// network failures produce a result with status 500.
func (c *Client) UploadTemplate(ctx context.Context, base64Content, filename string) *UploadResult {
	res, err := c.uploadTemplate(ctx, base64Content, filename)
	if err != nil {
		c.logger.Warn("template upload failed", "filename", filename, "error", err)
		return &UploadResult{
			Result:     "Error uploading template",
			Filename:   filename,
			StatusCode: http.StatusInternalServerError,
		}
	}
	return res
}

func (c *Client) uploadTemplate(ctx context.Context, base64Content, filename string) (*UploadResult, error) {
	if c.baseURL == "" {
		return nil, ErrUnavailable
	}

	content, err := base64.StdEncoding.DecodeString(strings.TrimSpace(base64Content))
	if err != nil {
		return nil, fmt.Errorf("decoding base64 content: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("name", filename); err != nil {
		return nil, fmt.Errorf("writing name field: %w", err)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, PDFName(filename)))
	header.Set("Content-Type", "application/pdf")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("writing file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload-template", &buf)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending upload: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &UploadResult{
			Result:     "Failed to upload template: " + strings.TrimSpace(string(body)),
			Filename:   filename,
			StatusCode: resp.StatusCode,
		}, nil
	}

	var ok struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &ok); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if ok.Message == "" {
		ok.Message = "Template uploaded successfully"
	}

	c.logger.Info("template uploaded", "filename", PDFName(filename), "bytes", len(content))
	return &UploadResult{
		Result:     ok.Message,
		Filename:   filename,
		StatusCode: resp.StatusCode,
		Success:    true,
	}, nil
}
