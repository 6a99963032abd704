// ABOUTME: HTTP client for the session and audit APIs used by the audit workflow.
// ABOUTME: Shared request plumbing: bearer auth, status checks, size-limited JSON decoding.

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxResponseBody bounds how much of a response body is read.
const maxResponseBody = 10 << 20

// maxErrorBody bounds how much of an error body is kept in StatusError.
const maxErrorBody = 512

// DefaultTimeout is the per-request timeout when no HTTP client is supplied.
const DefaultTimeout = 60 * time.Second

// Credentials is the static identity used to authenticate and scope requests.
type Credentials struct {
	Username  string
	Password  string
	CompanyID int64
	UserID    int64
}

// Config holds configuration for the backend Client.
type Config struct {
	AuthURL     string // serves /token and /sessions/*
	APIURL      string // serves /files/*, /ingest_data, /task/status
	BucketName  string
	Region      string
	Credentials Credentials
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client talks to the session and audit APIs.
type Client struct {
	authURL    string
	apiURL     string
	bucket     string
	region     string
	creds      Credentials
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new backend client with the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.AuthURL == "" {
		return nil, errors.New("auth URL is required")
	}
	if cfg.APIURL == "" {
		return nil, errors.New("API URL is required")
	}
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		authURL:    strings.TrimRight(cfg.AuthURL, "/"),
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		bucket:     cfg.BucketName,
		region:     cfg.Region,
		creds:      cfg.Credentials,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Credentials returns the identity the client was configured with.
func (c *Client) Credentials() Credentials {
	return c.creds
}

// BucketName returns the storage bucket files are uploaded to.
func (c *Client) BucketName() string {
	return c.bucket
}

// Region returns the storage region sent with ingest requests.
func (c *Client) Region() string {
	return c.region
}

// newJSONRequest builds a request with a JSON body and optional bearer token.
func newJSONRequest(ctx context.Context, method, url, token string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do executes req, checks for a 2xx status, and decodes the body into out (if non-nil).
// All failures are wrapped with kind.
func (c *Client) do(req *http.Request, op string, kind error, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", kind, op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend call",
		"op", op,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(op, kind, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return decodeError(kind, op, err.Error())
	}
	return nil
}

// rawObject decodes a JSON object while keeping its original bytes.
type rawObject struct {
	data   []byte
	fields map[string]any
}

func (r *rawObject) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &r.fields); err != nil {
		return err
	}
	r.data = append([]byte(nil), data...)
	return nil
}

func newStatusError(op string, kind error, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		kind:       kind,
	}
}
