// Package transfer moves caller-supplied files into backend storage.
//
// Each FileDescriptor is fetched (HTTP GET for file_url, base64 decode for
// content_base64), then uploaded through a presigned target minted for the
// session. Batches are strictly sequential and fail fast.
//
// Batch kinds map to object prefixes under company/user/session:
//
//	ProcessFiles   7/9/42
//	Normatives     7/9/42/norm
//	AuditReports   7/9/42/audits
//	Unscoped       (no prefix)
package transfer
