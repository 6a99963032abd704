// ABOUTME: Session endpoints: token acquisition, session creation and listing.
// ABOUTME: Responses are decoded into typed structs and fail closed on missing keys.

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// AnalysisTypeAudit is the analysis type used for audit sessions and status queries.
const AnalysisTypeAudit = 1

// ID is a backend identifier that may arrive as a JSON number or numeric string.
type ID int64

// UnmarshalJSON accepts 42, "42", and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s: %w", string(data), err)
	}
	*id = ID(n)
	return nil
}

// ObtainToken exchanges the configured credentials for a bearer token.
// Every call performs a fresh request; tokens are never cached.
func (c *Client) ObtainToken(ctx context.Context) (string, error) {
	form := url.Values{
		"username":   {c.creds.Username},
		"password":   {c.creds.Password},
		"grant_type": {"password"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL+"/token", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(req, "obtain token", ErrAuth, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", decodeError(ErrAuth, "obtain token", "missing access_token")
	}
	return out.AccessToken, nil
}

// SessionRequest is the body of a session creation call.
type SessionRequest struct {
	CompanyID          int64  `json:"company_id"`
	UserID             int64  `json:"user_id"`
	Name               string `json:"name"`
	AnalysisType       int    `json:"analysis_type"`
	Task               string `json:"task"`
	Objective          string `json:"objective"`
	ProcessDescription string `json:"process_description"`
	ProcessName        string `json:"process_name,omitempty"`
	IsInfoSource       int    `json:"is_info_source"`
	ParentSessionID    *int64 `json:"parent_session_id,omitempty"`
}

// Session is a backend session. Fields the backend sends beyond the typed ones
// are preserved in Raw and re-emitted verbatim on marshal.
type Session struct {
	ID              ID     `json:"session_id"`
	Name            string `json:"name,omitempty"`
	ParentSessionID *ID    `json:"parent_session_id,omitempty"`
	IsInfoSource    *int   `json:"is_info_source,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the typed fields and keeps the raw object.
func (s *Session) UnmarshalJSON(data []byte) error {
	type plain Session
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Session(p)
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the backend's original object when available.
func (s Session) MarshalJSON() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	type plain Session
	return json.Marshal(plain(s))
}

// CreateSessionResponse is the decoded body of a session creation call.
type CreateSessionResponse struct {
	Session Session `json:"session"`
}

// CreateSession creates a session and returns the backend's session record.
// A response without session.session_id is treated as a failure.
func (c *Client) CreateSession(ctx context.Context, token string, in SessionRequest) (*CreateSessionResponse, error) {
	if in.CompanyID == 0 {
		in.CompanyID = c.creds.CompanyID
	}
	if in.UserID == 0 {
		in.UserID = c.creds.UserID
	}

	req, err := newJSONRequest(ctx, http.MethodPost, c.authURL+"/sessions/add", token, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionCreate, err)
	}

	var out CreateSessionResponse
	if err := c.do(req, "create session", ErrSessionCreate, &out); err != nil {
		return nil, err
	}
	if out.Session.ID == 0 {
		return nil, decodeError(ErrSessionCreate, "create session", "missing session.session_id")
	}

	c.logger.Info("session created",
		"session_id", int64(out.Session.ID),
		"name", in.Name,
		"is_info_source", in.IsInfoSource,
	)
	return &out, nil
}

// SessionFilter selects sessions from the listing endpoint.
type SessionFilter struct {
	UserID          int64
	InfoSource      bool   // true lists parent (information) sessions, false chat sessions
	ParentSessionID *int64 // restricts chat sessions to one parent
}

// SessionList is the decoded body of a session listing call.
type SessionList struct {
	Message  string    `json:"message"`
	Sessions []Session `json:"sessions"`
}

// ListSessions queries the listing endpoint with the given filter.
func (c *Client) ListSessions(ctx context.Context, token string, f SessionFilter) (*SessionList, error) {
	q := url.Values{}
	q.Set("user_id", strconv.FormatInt(f.UserID, 10))
	q.Set("company_id", strconv.FormatInt(c.creds.CompanyID, 10))
	if f.ParentSessionID != nil {
		q.Set("parent_session_id", strconv.FormatInt(*f.ParentSessionID, 10))
	}
	if f.InfoSource {
		q.Set("is_info_source", "1")
	} else {
		q.Set("is_info_source", "0")
	}

	req, err := newJSONRequest(ctx, http.MethodGet, c.authURL+"/sessions/list?"+q.Encode(), token, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionList, err)
	}

	var out SessionList
	if err := c.do(req, "list sessions", ErrSessionList, &out); err != nil {
		return nil, err
	}
	if out.Sessions == nil {
		out.Sessions = []Session{}
	}
	return &out, nil
}
