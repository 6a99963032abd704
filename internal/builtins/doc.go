// Package builtins provides the tool packs served by the gateway's MCP mounts.
//
// # Tool Packs
//
// Audit Pack (builtin:audit) - requires "audit" capability:
//
//   - create_audit_process: Run the full audit workflow (session, uploads, processing, ingestion)
//   - get_parents_sessions_from_user: List a user's information sessions
//   - get_child_sessions_from_user: List chat sessions under a parent session
//   - create_audit_chat_session: Create a chat session under a parent session
//
// Runs Pack (builtin:runs) - requires "runs" capability:
//
//   - list_audit_runs: List recorded audit runs (filter by state)
//   - get_audit_run: Read one run with its step history
//
// Legal Docs Pack (builtin:legaldocs) - requires "legaldocs" capability:
//
//   - get_legal_docs_templates: List available templates
//   - upload_legal_doc_template: Upload a PDF template from base64 content
//
// # Registration
//
// Packs are plain values; the gateway registers them on the mount's registry:
//
//	registry.RegisterBuiltinPack(builtins.AuditPack(deps))
//	registry.RegisterBuiltinPack(builtins.RunsPack(store))
//
// # Errors
//
// A handler error becomes a tool-level error whose text is shown to the
// caller verbatim. The audit tools keep the workflow's plain messages
// ("Failed to create session.") for that reason. Malformed input wraps
// ErrInvalidInput.
//
// # Tokens
//
// Every audit tool fetches a fresh backend token. Tokens are never cached
// across calls.
package builtins
