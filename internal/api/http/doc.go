// Package http exposes the file mediation service over HTTP using gin.
//
// Routes:
//   - GET  /files/*path   stream a file, 206 for a single byte range
//   - HEAD /files/*path   size, type and modification time
//   - PUT  /files/*path   atomic upload; ?mode=create or If-None-Match: *
//     refuses to overwrite
//   - GET  /dirs/*path    JSON listing; ?recursive=true, ?pattern=glob
//   - GET  /audit         recent audit records
//   - GET  /, /health     banner and health
//   - POST /shutdown      only when enabled
//
// Failures reply {"error": "...", "kind": "<Kind>"} with the status mapped
// from the error kind.
package http
