// Package backend is the typed HTTP client for the session and audit APIs
// that the audit workflow drives.
//
// # Endpoints
//
// Two base URLs are involved. The session service (AuthURL) issues tokens and
// manages sessions; the audit API (APIURL) mints upload targets, accepts
// processing and ingest triggers, and reports task status:
//
//	POST {auth}/token             password grant -> {access_token}
//	POST {auth}/sessions/add      -> {session: {session_id, ...}}
//	GET  {auth}/sessions/list     -> {message, sessions}
//	POST {api}/files/upload       -> {url, fields}
//	POST {api}/files/search       processing trigger
//	POST {api}/ingest_data        -> {session_id}
//	GET  {api}/task/status        -> {status}
//
// The presigned upload itself goes straight to the storage URL returned by
// /files/upload, without a bearer token.
//
// # Errors
//
// Every method wraps its failures with one operation sentinel (ErrAuth,
// ErrPresign, ...). Non-2xx answers are *StatusError values; responses that
// lack a required key also match ErrDecode:
//
//	if errors.Is(err, backend.ErrPresign) && errors.Is(err, backend.ErrDecode) {
//		// backend answered 200 without an upload key
//	}
//
// Tokens are never cached. Callers obtain a fresh one per step.
package backend
