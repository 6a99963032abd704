// ABOUTME: Error taxonomy for calls against the session and audit APIs.
// ABOUTME: Every failure wraps exactly one operation sentinel so callers can use errors.Is.

package backend

import (
	"errors"
	"fmt"
)

// Operation sentinels. Each client method wraps its failures with one of these.
var (
	// ErrAuth indicates the access token could not be obtained.
	ErrAuth = errors.New("access token request failed")

	// ErrSessionCreate indicates the backend rejected or failed a session creation.
	ErrSessionCreate = errors.New("session creation failed")

	// ErrSessionList indicates a session listing call failed.
	ErrSessionList = errors.New("session listing failed")

	// ErrPresign indicates the backend could not mint an upload target.
	ErrPresign = errors.New("upload target request failed")

	// ErrUpload indicates the binary upload to the storage destination failed.
	ErrUpload = errors.New("object upload failed")

	// ErrTrigger indicates a processing or ingest trigger was rejected.
	ErrTrigger = errors.New("trigger call failed")

	// ErrStatus indicates a task status query failed.
	ErrStatus = errors.New("task status query failed")
)

// ErrDecode indicates a response body did not match the expected schema.
// It is joined with the operation sentinel, so both match errors.Is.
var ErrDecode = errors.New("unexpected response body")

// StatusError is returned when an endpoint answers with an unaccepted HTTP status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
	kind       error
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap returns the operation sentinel.
func (e *StatusError) Unwrap() error {
	return e.kind
}

// decodeError wraps a schema mismatch with both the operation sentinel and ErrDecode.
func decodeError(kind error, op, detail string) error {
	return fmt.Errorf("%w: %s: %w: %s", kind, op, ErrDecode, detail)
}
