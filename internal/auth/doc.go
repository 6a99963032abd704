// Package auth provides authentication for the gateway's HTTP surfaces.
//
// # Authentication Methods
//
//   - Static tokens: pre-shared strings from auth.tokens in the config, each
//     mapped to a capability list. Useful for a single trusted MCP client.
//
//   - JWT Tokens: HS256 tokens signed with auth.jwt_secret. The "sub" claim
//     names the caller and the "caps" claim lists its capabilities. Mint one
//     with `audit-gateway token --subject NAME --caps audit,runs`.
//
// Tokens travel in the Authorization header ("Bearer <token>") or, for
// clients that cannot set headers, in the "token" query parameter.
//
// # Capabilities
//
// Capabilities gate tool packs:
//
//   - "audit": audit workflow and session tools
//   - "runs": run ledger queries
//   - "legaldocs": legal document templates
//
// # Resolution
//
//	res := auth.NewResolver(verifier, staticTokens)
//	authCtx, err := res.Authenticate(r)
//
// Static tokens are checked before JWT verification. A request without any
// token yields ErrNoCredentials, which callers may treat as anonymous access
// when auth.require_auth is off.
package auth
