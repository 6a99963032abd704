// Package mcp implements the Model Context Protocol server for the gateway's tool mounts.
//
// # Overview
//
// Each Server exposes one tool registry under one mount path. The gateway
// runs two: /audit_agent/mcp (audit and runs packs) and /legaldocs/mcp
// (legal docs pack).
//
// # Protocol
//
// The server implements the Streamable HTTP transport with JSON-RPC 2.0 bodies:
//
//   - POST <path> - JSON-RPC requests (initialize, ping, tools/list, tools/call)
//   - DELETE <path> - terminate a session
//
// Server-initiated SSE streams are not offered; GET returns 405. Long tools
// such as create_audit_process hold the POST open until they finish.
//
// # Sessions
//
// In the default mode initialize returns an Mcp-Session-Id header that every
// later request must echo. With Stateless set no session is issued and each
// request is authenticated on its own.
//
// # Authentication
//
// Tokens are read from the path (<path>/<token>), the Authorization header,
// or the "token" query parameter, and resolved by auth.Resolver against the
// TokenStore of pre-shared tokens and the JWT verifier. A presented but
// invalid token is always rejected. Without a token the caller is anonymous
// and gets DefaultCaps, unless RequireAuth is set.
//
// # Tool Execution
//
//	{
//	  "jsonrpc": "2.0",
//	  "method": "tools/call",
//	  "params": {
//	    "name": "get_parents_sessions_from_user",
//	    "arguments": {"user_id": 42}
//	  },
//	  "id": 2
//	}
//
// A tool failure is a successful JSON-RPC response with isError set and the
// failure message as text content.
//
// # Client Configuration
//
//	{
//	  "mcpServers": {
//	    "audit": {
//	      "url": "http://localhost:8000/audit_agent/mcp",
//	      "headers": {"Authorization": "Bearer <token>"}
//	    }
//	  }
//	}
package mcp
