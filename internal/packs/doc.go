// Package packs provides the tool pack system behind each MCP mount.
//
// # Overview
//
// Tool packs are collections of related tools that execute in-process. Each
// MCP mount owns one Registry and one Router, so tools on different mounts
// never collide.
//
// # Architecture
//
//   - Registry: Tracks registered packs, rejects name collisions, filters by capability
//   - Router: Checks capabilities, applies timeouts, runs the handler
//   - Built-in packs: see internal/builtins
//
// # Built-in Packs
//
//	builtin:audit      - audit workflow and session tools (requires "audit")
//	builtin:runs       - run ledger queries (requires "runs")
//	builtin:legaldocs  - legal document templates (requires "legaldocs")
//
// # Capabilities
//
// A tool lists RequiredCapabilities; a caller sees and may call the tool only
// when it holds all of them. Tools without requirements are always visible.
//
// # Tool Routing
//
//	result, err := router.RouteToolCall(ctx, "create_audit_process", input, requestID, callerID, caps)
//	if errors.Is(err, packs.ErrToolNotFound) { ... }
//	if result.Error != "" { ... } // tool-level failure, relayed to the caller
//
// The router applies DefaultTimeout unless the tool definition sets
// TimeoutSeconds.
package packs
