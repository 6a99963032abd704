// ABOUTME: File descriptors and source fetching for the transfer pipeline.
// ABOUTME: A source is either a URL downloaded over HTTP or inline base64 content.

package transfer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrDownload indicates a source URL could not be fetched or returned no content.
	ErrDownload = errors.New("source download failed")

	// ErrInvalidSource indicates a descriptor carries no usable source.
	ErrInvalidSource = errors.New("invalid file source")
)

// DefaultMaxFileBytes bounds a single fetched source.
const DefaultMaxFileBytes = 100 << 20

// FileDescriptor names one file to transfer and where its bytes come from.
// Exactly one of URL and ContentBase64 must be set.
type FileDescriptor struct {
	Filename      string `json:"filename"`
	URL           string `json:"file_url,omitempty"`
	ContentBase64 string `json:"content_base64,omitempty"`
	Description   string `json:"description"`
}

// Validate checks that the descriptor names a file and exactly one source.
func (d FileDescriptor) Validate() error {
	if strings.TrimSpace(d.Filename) == "" {
		return fmt.Errorf("%w: filename is required", ErrInvalidSource)
	}
	hasURL := d.URL != ""
	hasInline := d.ContentBase64 != ""
	switch {
	case hasURL && hasInline:
		return fmt.Errorf("%w: %s: file_url and content_base64 are mutually exclusive", ErrInvalidSource, d.Filename)
	case !hasURL && !hasInline:
		return fmt.Errorf("%w: %s: file_url or content_base64 is required", ErrInvalidSource, d.Filename)
	}
	return nil
}

// Fetcher resolves descriptors into bytes.
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
}

// NewFetcher creates a Fetcher. A nil client gets a 60 second timeout; a
// non-positive limit uses DefaultMaxFileBytes.
func NewFetcher(httpClient *http.Client, maxBytes int64) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	return &Fetcher{httpClient: httpClient, maxBytes: maxBytes}
}

// Fetch returns the descriptor's content. Empty content is a failure.
func (f *Fetcher) Fetch(ctx context.Context, d FileDescriptor) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.ContentBase64 != "" {
		return decodeInline(d)
	}
	return f.download(ctx, d)
}

func decodeInline(d FileDescriptor) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(d.ContentBase64))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decoding base64: %w", ErrInvalidSource, d.Filename, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s: empty content", ErrInvalidSource, d.Filename)
	}
	return data, nil
}

func (f *Fetcher) download(ctx context.Context, d FileDescriptor) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDownload, d.Filename, err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDownload, d.Filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: status %d", ErrDownload, d.Filename, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading body: %w", ErrDownload, d.Filename, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s: exceeds %d bytes", ErrDownload, d.Filename, f.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s: empty body", ErrDownload, d.Filename)
	}
	return data, nil
}
