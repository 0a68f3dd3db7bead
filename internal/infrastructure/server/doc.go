// Package server assembles the fs-proxy process: sandbox, path locks,
// executor, audit recorder, tracing, metrics and the gin router.
//
// Shutdown order:
//  1. Close the lock table so new file operations fail with ShuttingDown
//  2. Drain in-flight HTTP requests within the shutdown budget
//  3. Flush queued audit records and close the store
//  4. Stop the span collector and release the sandbox handle
package server
