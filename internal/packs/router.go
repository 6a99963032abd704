// ABOUTME: Routes tool calls to the built-in handler that owns the tool.
// ABOUTME: Enforces capability checks and per-tool timeouts around handler execution.

package packs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrForbidden indicates the caller lacks a capability the tool requires.
var ErrForbidden = errors.New("missing required capability")

// DefaultTimeout is the default timeout for tool execution.
const DefaultTimeout = 30 * time.Second

// ToolResult is the outcome of a routed tool call. A handler error is carried
// in Error rather than returned, so callers can relay it as a tool-level failure.
type ToolResult struct {
	RequestID string
	Output    json.RawMessage
	Error     string
}

// Router routes tool calls to the appropriate handler.
type Router struct {
	registry *Registry
	logger   *slog.Logger
	timeout  time.Duration
}

// RouterConfig contains configuration options for the Router.
type RouterConfig struct {
	Registry *Registry
	Logger   *slog.Logger
	Timeout  time.Duration
}

// NewRouter creates a new Router with the given configuration.
func NewRouter(cfg RouterConfig) *Router {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		registry: cfg.Registry,
		logger:   logger,
		timeout:  timeout,
	}
}

// RouteToolCall runs the named tool for a caller holding caps.
// Returns ErrToolNotFound for unknown tools and ErrForbidden when a required
// capability is missing. Handler failures, including timeouts, come back in
// ToolResult.Error.
func (r *Router) RouteToolCall(ctx context.Context, toolName string, input json.RawMessage, requestID, callerID string, caps []string) (*ToolResult, error) {
	builtin := r.registry.GetBuiltinTool(toolName)
	if builtin == nil {
		r.logger.Debug("tool not found in registry",
			"tool_name", toolName,
			"request_id", requestID,
		)
		return nil, ErrToolNotFound
	}

	if !hasAllCapabilities(builtin.Definition.GetRequiredCapabilities(), capabilitySet(caps)) {
		r.logger.Warn("tool call denied",
			"tool_name", toolName,
			"request_id", requestID,
			"caller_id", callerID,
		)
		return nil, fmt.Errorf("%w: %s requires %v", ErrForbidden, toolName, builtin.Definition.GetRequiredCapabilities())
	}

	timeout := r.timeout
	if builtin.Definition.TimeoutSeconds > 0 {
		timeout = time.Duration(builtin.Definition.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.logger.Info("→ dispatching to builtin",
		"tool_name", toolName,
		"request_id", requestID,
		"caller_id", callerID,
	)

	start := time.Now()
	result, err := builtin.Handler(ctx, callerID, input)
	if err != nil {
		r.logger.Warn("builtin tool error",
			"tool_name", toolName,
			"request_id", requestID,
			"duration", time.Since(start),
			"error", err,
		)
		return &ToolResult{RequestID: requestID, Error: err.Error()}, nil
	}

	r.logger.Info("← builtin responded",
		"tool_name", toolName,
		"request_id", requestID,
		"duration", time.Since(start),
	)
	return &ToolResult{RequestID: requestID, Output: result}, nil
}

// HasTool checks if a tool with the given name exists in the registry.
func (r *Router) HasTool(toolName string) bool {
	return r.registry.IsBuiltin(toolName)
}

// GetToolDefinition returns the tool definition for a given tool name.
// Returns nil if the tool is not found.
func (r *Router) GetToolDefinition(toolName string) *ToolDefinition {
	if builtin := r.registry.GetBuiltinTool(toolName); builtin != nil {
		return builtin.Definition
	}
	return nil
}

// ListTools returns the tools visible to a caller holding caps.
func (r *Router) ListTools(caps []string) []*ToolDefinition {
	return r.registry.GetToolsForCapabilities(caps)
}
