// ABOUTME: Thread-safe registry for built-in tool packs served by one MCP mount.
// ABOUTME: Manages pack registration, tool lookup, collision detection, and capability filtering.

package packs

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrToolCollision indicates a tool name already exists from another pack.
var ErrToolCollision = errors.New("tool name collision")

// ErrInvalidTool indicates a tool without a name or handler.
var ErrInvalidTool = errors.New("invalid tool")

// Registry maintains the registered packs and their tools.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]*builtinEntry // tool name -> builtin entry
	logger   *slog.Logger
}

// NewRegistry creates a new Registry instance.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		builtins: make(map[string]*builtinEntry),
		logger:   logger,
	}
}

// RegisterBuiltinPack registers a pack of built-in tools that execute in-process.
// Returns error if any tool name collides with existing tools. On error no tool
// from the pack is registered.
func (r *Registry) RegisterBuiltinPack(pack *BuiltinPack) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(pack.Tools))
	for _, tool := range pack.Tools {
		name := tool.Definition.GetName()
		if name == "" || tool.Handler == nil {
			return fmt.Errorf("%w: pack '%s' has a tool without name or handler", ErrInvalidTool, pack.ID)
		}
		if entry, exists := r.builtins[name]; exists {
			return fmt.Errorf("%w: tool '%s' already registered by pack '%s'", ErrToolCollision, name, entry.PackID)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: tool '%s' appears twice in pack '%s'", ErrToolCollision, name, pack.ID)
		}
		seen[name] = struct{}{}
	}

	for _, tool := range pack.Tools {
		r.builtins[tool.Definition.GetName()] = &builtinEntry{
			Tool:   tool,
			PackID: pack.ID,
		}
	}

	r.logger.Info("=== BUILTIN PACK REGISTERED ===",
		"pack_id", pack.ID,
		"tool_count", len(pack.Tools),
		"total_tools", len(r.builtins),
	)

	return nil
}

// GetBuiltinTool returns a builtin tool by name, or nil if not found.
func (r *Registry) GetBuiltinTool(name string) *BuiltinTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.builtins[name]; ok {
		return entry.Tool
	}
	return nil
}

// IsBuiltin returns true if the tool name is a builtin tool.
func (r *Registry) IsBuiltin(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builtins[name]
	return ok
}

// BuiltinPackInfo contains information about a registered builtin pack for display.
type BuiltinPackInfo struct {
	ID    string
	Tools []*BuiltinTool
}

// ListBuiltinPacks returns all registered packs sorted by ID, tools sorted by name.
func (r *Registry) ListBuiltinPacks() []BuiltinPackInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Group tools by pack ID
	packTools := make(map[string][]*BuiltinTool)
	for _, entry := range r.builtins {
		packTools[entry.PackID] = append(packTools[entry.PackID], entry.Tool)
	}

	result := make([]BuiltinPackInfo, 0, len(packTools))
	for packID, tools := range packTools {
		sort.Slice(tools, func(i, j int) bool {
			return tools[i].Definition.GetName() < tools[j].Definition.GetName()
		})
		result = append(result, BuiltinPackInfo{
			ID:    packID,
			Tools: tools,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// GetToolsForCapabilities returns tools where the caller has ALL required capabilities.
// If a tool has no required capabilities, it is always included. Results are sorted by name.
func (r *Registry) GetToolsForCapabilities(caps []string) []*ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	capSet := capabilitySet(caps)

	var result []*ToolDefinition
	for _, entry := range r.builtins {
		if hasAllCapabilities(entry.Tool.Definition.GetRequiredCapabilities(), capSet) {
			result = append(result, entry.Tool.Definition)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// capabilitySet builds a set of capabilities for fast lookup.
func capabilitySet(caps []string) map[string]struct{} {
	set := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// hasAllCapabilities checks if the capability set contains all required capabilities.
func hasAllCapabilities(required []string, capSet map[string]struct{}) bool {
	for _, req := range required {
		if _, has := capSet[req]; !has {
			return false
		}
	}
	return true
}

// Close clears the registry.
// This should be called during graceful shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	builtinCount := len(r.builtins)
	r.builtins = make(map[string]*builtinEntry)

	r.logger.Info("registry closed", "builtins_cleared", builtinCount)
}
