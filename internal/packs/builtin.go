// ABOUTME: Tool definitions and built-in tool support for tools that execute in-process.
// ABOUTME: A pack groups related tools under an ID for registration and display.

package packs

import (
	"context"
	"encoding/json"
)

// ToolDefinition describes a tool as advertised to MCP clients.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`

	// RequiredCapabilities must all be held by the caller for the tool to be listed or called.
	RequiredCapabilities []string `json:"-"`
	// TimeoutSeconds overrides the router's default timeout when positive.
	TimeoutSeconds int32 `json:"-"`
}

// GetName returns the tool name, or "" for a nil definition.
func (d *ToolDefinition) GetName() string {
	if d == nil {
		return ""
	}
	return d.Name
}

// GetRequiredCapabilities returns the required capabilities, or nil for a nil definition.
func (d *ToolDefinition) GetRequiredCapabilities() []string {
	if d == nil {
		return nil
	}
	return d.RequiredCapabilities
}

// ToolHandler is a function that executes a built-in tool.
// It receives the caller's ID and the tool input as JSON.
// Returns the result as JSON or an error.
type ToolHandler func(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error)

// BuiltinTool represents a tool that executes in the gateway process.
type BuiltinTool struct {
	Definition *ToolDefinition
	Handler    ToolHandler
}

// BuiltinPack is a collection of built-in tools with a pack ID.
type BuiltinPack struct {
	ID    string
	Tools []*BuiltinTool
}

// builtinEntry stores a builtin tool with its pack ID for registry lookup.
type builtinEntry struct {
	Tool   *BuiltinTool
	PackID string
}
