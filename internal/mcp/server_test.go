// ABOUTME: Tests for the MCP HTTP server including sessions, tool listing, and execution.
// ABOUTME: Validates auth handling, capability filtering, stateless mode, and error responses.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/2389/audit-gateway/internal/auth"
	"github.com/2389/audit-gateway/internal/packs"
)

const testPath = "/audit_agent/mcp"

var testSecret = []byte("mcp-server-test-secret-32-bytes!")

// setupTestRegistry creates a registry with test tools.
func setupTestRegistry(t *testing.T) *packs.Registry {
	t.Helper()
	registry := packs.NewRegistry(slog.Default())

	echo := func(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(map[string]any{"caller": callerID, "input": input})
	}
	pack := &packs.BuiltinPack{
		ID: "builtin:test",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:        "public_tool",
					Description: "A public tool for everyone",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"input":{"type":"string"}}}`),
				},
				Handler: echo,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "audit_tool",
					Description:          "Requires audit",
					InputSchema:          json.RawMessage(`{"type":"object"}`),
					RequiredCapabilities: []string{"audit"},
				},
				Handler: echo,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:        "failing_tool",
					Description: "Always fails",
					InputSchema: json.RawMessage(`{"type":"object"}`),
				},
				Handler: func(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
					return nil, errors.New("Failed to create session.")
				},
			},
		},
	}
	if err := registry.RegisterBuiltinPack(pack); err != nil {
		t.Fatalf("failed to register test pack: %v", err)
	}
	return registry
}

type serverOpts struct {
	requireAuth bool
	stateless   bool
	defaultCaps []string
	static      map[string][]string
}

// setupTestServer creates an MCP server mounted on a fresh mux.
func setupTestServer(t *testing.T, opts serverOpts) (*Server, *http.ServeMux) {
	t.Helper()
	registry := setupTestRegistry(t)
	router := packs.NewRouter(packs.RouterConfig{Registry: registry, Timeout: 5 * time.Second})

	tokens := NewTokenStore()
	for token, caps := range opts.static {
		tokens.Add(token, caps)
	}
	verifier, err := auth.NewJWTVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewJWTVerifier: %v", err)
	}

	server, err := NewServer(Config{
		Name:        "audit_agent",
		Path:        testPath,
		Registry:    registry,
		Router:      router,
		Resolver:    auth.NewResolver(verifier, tokens),
		RequireAuth: opts.requireAuth,
		DefaultCaps: opts.defaultCaps,
		Stateless:   opts.stateless,
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	return server, mux
}

// rpc posts a JSON-RPC request and returns the recorder.
func rpc(t *testing.T, mux *http.ServeMux, path, sessionID, bearer string, id any, method string, params any) *httptest.ResponseRecorder {
	t.Helper()
	msg := map[string]any{"jsonrpc": "2.0", "method": method}
	if id != nil {
		msg["id"] = id
	}
	if params != nil {
		msg["params"] = params
	}
	body, _ := json.Marshal(msg)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder, result any) *JSONRPCError {
	t.Helper()
	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *JSONRPCError   `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error == nil && result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			t.Fatalf("failed to decode result: %v", err)
		}
	}
	return resp.Error
}

// initialize runs the handshake and returns the session ID.
func initialize(t *testing.T, mux *http.ServeMux, bearer string) string {
	t.Helper()
	rr := rpc(t, mux, testPath, "", bearer, 1, "initialize", map[string]any{"protocolVersion": latestProtocolVersion})
	if rr.Code != http.StatusOK {
		t.Fatalf("initialize status = %d", rr.Code)
	}
	var result map[string]any
	if rpcErr := decodeResponse(t, rr, &result); rpcErr != nil {
		t.Fatalf("initialize error: %s", rpcErr.Message)
	}
	return rr.Header().Get("Mcp-Session-Id")
}

func listToolNames(t *testing.T, mux *http.ServeMux, sessionID string) []string {
	t.Helper()
	var result MCPListToolsResult
	if rpcErr := decodeResponse(t, rpc(t, mux, testPath, sessionID, "", 2, "tools/list", nil), &result); rpcErr != nil {
		t.Fatalf("tools/list error: %s", rpcErr.Message)
	}
	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
	}
	return names
}

func TestInitialize(t *testing.T) {
	_, mux := setupTestServer(t, serverOpts{})

	rr := rpc(t, mux, testPath, "", "", 1, "initialize", nil)
	sessionID := rr.Header().Get("Mcp-Session-Id")
	if sessionID == "" {
		t.Fatal("expected Mcp-Session-Id header")
	}

	var result map[string]any
	if rpcErr := decodeResponse(t, rr, &result); rpcErr != nil {
		t.Fatalf("unexpected error: %s", rpcErr.Message)
	}
	if result["protocolVersion"] != latestProtocolVersion {
		t.Errorf("unexpected protocol version: %v", result["protocolVersion"])
	}
	info := result["serverInfo"].(map[string]any)
	if info["name"] != "audit_agent" {
		t.Errorf("unexpected server name: %v", info["name"])
	}
}

func TestSessionRequired(t *testing.T) {
	_, mux := setupTestServer(t, serverOpts{})

	rr := rpc(t, mux, testPath, "", "", 2, "tools/list", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without session, got %d", rr.Code)
	}

	rr = rpc(t, mux, testPath, "unknown-session", "", 2, "tools/list", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown session, got %d", rr.Code)
	}
}

func TestToolsListCapabilityFiltering(t *testing.T) {
	t.Run("anonymous gets default capabilities", func(t *testing.T) {
		_, mux := setupTestServer(t, serverOpts{defaultCaps: []string{"audit"}})
		names := listToolNames(t, mux, initialize(t, mux, ""))
		if len(names) != 3 {
			t.Errorf("expected 3 tools, got %v", names)
		}
	})

	t.Run("anonymous without capabilities sees open tools only", func(t *testing.T) {
		_, mux := setupTestServer(t, serverOpts{})
		names := listToolNames(t, mux, initialize(t, mux, ""))
		for _, name := range names {
			if name == "audit_tool" {
				t.Errorf("audit_tool should be hidden, got %v", names)
			}
		}
	})

	t.Run("jwt capabilities", func(t *testing.T) {
		_, mux := setupTestServer(t, serverOpts{requireAuth: true})
		verifier, _ := auth.NewJWTVerifier(testSecret)
		token, _ := verifier.Generate("assistant", []string{"audit"}, time.Hour)

		names := listToolNames(t, mux, initialize(t, mux, token))
		if len(names) != 3 || names[0] != "audit_tool" {
			t.Errorf("unexpected tools: %v", names)
		}
	})
}

func TestAuthRejection(t *testing.T) {
	t.Run("missing credentials when required", func(t *testing.T) {
		_, mux := setupTestServer(t, serverOpts{requireAuth: true})
		rpcErr := decodeResponse(t, rpc(t, mux, testPath, "", "", 1, "initialize", nil), nil)
		if rpcErr == nil || rpcErr.Message != "authentication required" {
			t.Errorf("unexpected error: %+v", rpcErr)
		}
	})

	t.Run("invalid token never falls back", func(t *testing.T) {
		_, mux := setupTestServer(t, serverOpts{defaultCaps: []string{"audit"}})
		rr := rpc(t, mux, testPath, "", "garbage", 1, "initialize", nil)
		if rr.Header().Get("Mcp-Session-Id") != "" {
			t.Error("no session should be created for an invalid token")
		}
		rpcErr := decodeResponse(t, rr, nil)
		if rpcErr == nil || rpcErr.Message != "invalid or expired token" {
			t.Errorf("unexpected error: %+v", rpcErr)
		}
	})

	t.Run("static token in path", func(t *testing.T) {
		_, mux := setupTestServer(t, serverOpts{requireAuth: true, static: map[string][]string{"s3cret": {"audit"}}})
		rr := rpc(t, mux, testPath+"/s3cret", "", "", 1, "initialize", nil)
		if rr.Header().Get("Mcp-Session-Id") == "" {
			t.Fatal("expected a session for a valid path token")
		}
	})
}

func TestToolsCall(t *testing.T) {
	_, mux := setupTestServer(t, serverOpts{static: map[string][]string{"tok": {}}})
	sessionID := initialize(t, mux, "tok")

	t.Run("success carries caller and output", func(t *testing.T) {
		var result MCPCallToolResult
		rpcErr := decodeResponse(t, rpc(t, mux, testPath, sessionID, "", 3, "tools/call",
			map[string]any{"name": "public_tool", "arguments": map[string]any{"input": "hi"}}), &result)
		if rpcErr != nil {
			t.Fatalf("unexpected error: %s", rpcErr.Message)
		}
		if result.IsError || len(result.Content) != 1 {
			t.Fatalf("unexpected result: %+v", result)
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(result.Content[0].Text), &out); err != nil {
			t.Fatalf("tool output is not JSON: %v", err)
		}
		if out["caller"] != auth.StaticPrincipal {
			t.Errorf("unexpected caller: %v", out["caller"])
		}
	})

	t.Run("handler error is a tool-level error", func(t *testing.T) {
		var result MCPCallToolResult
		rpcErr := decodeResponse(t, rpc(t, mux, testPath, sessionID, "", 4, "tools/call",
			map[string]any{"name": "failing_tool"}), &result)
		if rpcErr != nil {
			t.Fatalf("unexpected JSON-RPC error: %s", rpcErr.Message)
		}
		if !result.IsError || result.Content[0].Text != "Failed to create session." {
			t.Errorf("unexpected result: %+v", result)
		}
	})

	t.Run("missing capability", func(t *testing.T) {
		rpcErr := decodeResponse(t, rpc(t, mux, testPath, sessionID, "", 5, "tools/call",
			map[string]any{"name": "audit_tool"}), nil)
		if rpcErr == nil || rpcErr.Code != JSONRPCInvalidRequest {
			t.Errorf("expected insufficient capabilities error, got %+v", rpcErr)
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		rpcErr := decodeResponse(t, rpc(t, mux, testPath, sessionID, "", 6, "tools/call",
			map[string]any{"name": "nope"}), nil)
		if rpcErr == nil || rpcErr.Code != JSONRPCInvalidParams {
			t.Errorf("expected tool not found error, got %+v", rpcErr)
		}
	})

	t.Run("missing tool name", func(t *testing.T) {
		rpcErr := decodeResponse(t, rpc(t, mux, testPath, sessionID, "", 7, "tools/call", map[string]any{}), nil)
		if rpcErr == nil || rpcErr.Code != JSONRPCInvalidParams {
			t.Errorf("expected invalid params, got %+v", rpcErr)
		}
	})
}

func TestStatelessMode(t *testing.T) {
	server, mux := setupTestServer(t, serverOpts{stateless: true, defaultCaps: []string{"audit"}})

	rr := rpc(t, mux, testPath, "", "", 1, "initialize", nil)
	if rr.Header().Get("Mcp-Session-Id") != "" {
		t.Error("stateless mode should not issue a session")
	}

	names := listToolNames(t, mux, "")
	if len(names) != 3 {
		t.Errorf("expected 3 tools, got %v", names)
	}
	if server.SessionCount() != 0 {
		t.Errorf("expected no sessions, got %d", server.SessionCount())
	}
}

func TestNotificationsAndUnknownMethods(t *testing.T) {
	_, mux := setupTestServer(t, serverOpts{})
	sessionID := initialize(t, mux, "")

	rr := rpc(t, mux, testPath, sessionID, "", nil, "notifications/initialized", nil)
	if rr.Code != http.StatusAccepted {
		t.Errorf("expected 202 for notification, got %d", rr.Code)
	}

	rpcErr := decodeResponse(t, rpc(t, mux, testPath, sessionID, "", 9, "resources/list", nil), nil)
	if rpcErr == nil || rpcErr.Code != JSONRPCMethodNotFound {
		t.Errorf("expected method not found, got %+v", rpcErr)
	}

	if rpcErr := decodeResponse(t, rpc(t, mux, testPath, sessionID, "", 10, "ping", nil), nil); rpcErr != nil {
		t.Errorf("ping failed: %s", rpcErr.Message)
	}
}

func TestMalformedRequests(t *testing.T) {
	_, mux := setupTestServer(t, serverOpts{})

	req := httptest.NewRequest(http.MethodPost, testPath, bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rpcErr := decodeResponse(t, rr, nil); rpcErr == nil || rpcErr.Code != JSONRPCParseError {
		t.Errorf("expected parse error, got %+v", rpcErr)
	}

	req = httptest.NewRequest(http.MethodPost, testPath, bytes.NewReader([]byte(`{"jsonrpc":"1.0","id":1,"method":"ping"}`)))
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rpcErr := decodeResponse(t, rr, nil); rpcErr == nil || rpcErr.Code != JSONRPCInvalidRequest {
		t.Errorf("expected invalid request, got %+v", rpcErr)
	}

	req = httptest.NewRequest(http.MethodPut, testPath, nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	server, mux := setupTestServer(t, serverOpts{static: map[string][]string{"owner": {}, "other": {}}})
	sessionID := initialize(t, mux, "owner")

	del := func(bearer string) int {
		req := httptest.NewRequest(http.MethodDelete, testPath, nil)
		req.Header.Set("Mcp-Session-Id", sessionID)
		req.Header.Set("Authorization", "Bearer "+bearer)
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := del("other"); code != http.StatusForbidden {
		t.Errorf("expected 403 for non-owner, got %d", code)
	}
	if code := del("owner"); code != http.StatusNoContent {
		t.Errorf("expected 204 for owner, got %d", code)
	}
	if server.SessionCount() != 0 {
		t.Errorf("expected session removed, got %d", server.SessionCount())
	}
	if code := del("owner"); code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", code)
	}
}

func TestNewServerValidation(t *testing.T) {
	registry := packs.NewRegistry(nil)
	router := packs.NewRouter(packs.RouterConfig{Registry: registry})

	if _, err := NewServer(Config{Router: router}); err == nil {
		t.Error("expected error without registry")
	}
	if _, err := NewServer(Config{Registry: registry}); err == nil {
		t.Error("expected error without router")
	}
	if _, err := NewServer(Config{Registry: registry, Router: router, RequireAuth: true}); err == nil {
		t.Error("expected error when auth is required without a resolver")
	}

	server, err := NewServer(Config{Registry: registry, Router: router, Path: "legaldocs/mcp/"})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if server.Path() != "/legaldocs/mcp" {
		t.Errorf("unexpected path: %s", server.Path())
	}
}
