// Package gateway orchestrates the audit-gateway server components.
//
// # Overview
//
// The gateway package is the composition root. It builds the backend client,
// the file transfer pipeline, the job status poller, the audit orchestrator,
// the run ledger store and the legal docs client, registers the tool packs,
// and serves everything from one HTTP server.
//
// # Gateway Struct
//
//	type Gateway struct {
//	    config     *config.Config
//	    store      *store.SQLiteStore
//	    backend    *backend.Client
//	    legalDocs  *legaldocs.Client
//	    resolver   *auth.Resolver
//	    httpServer *http.Server
//	    mounts     []*mount
//	    // ...
//	}
//
// # HTTP Surface
//
//   - POST /audit_agent/mcp - audit and runs packs
//   - POST /legaldocs/mcp - legal docs pack (only when legaldocs.url is set)
//   - GET /health - {message, api_version, timestamp}
//   - GET /docs - tool catalog rendered from Markdown; ?format=md for the source
//
// Each mount has its own packs.Registry, packs.Router and mcp.Server. Anonymous
// callers, allowed when auth.require_auth is off, receive the mount's default
// capabilities. Tokens from auth.tokens or signed with auth.jwt_secret carry
// their own capability lists.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//
// Graceful shutdown:
//
//	cancel()
//
// Run shuts down on cancellation with a 5s grace period. The HTTP server has
// no write timeout because create_audit_process holds its request open until
// the audit pipeline finishes.
package gateway
