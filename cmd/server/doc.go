// Package main is the entry point for the fs-proxy server.
//
// fs-proxy exposes one sandboxed directory tree over HTTP for reading,
// writing and listing files.
//
// Configuration:
//   - Environment variables (12-factor), optionally from a .env file
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Serve /srv/data on :8080
//	fs-proxy --root /srv/data
//
//	# Development mode (colored logs, debug level) with a SQLite audit log
//	fs-proxy serve --root ./data --dev --metadata-dsn sqlite://./audit.db
//
//	# Control a running server through its PID file
//	fs-proxy status
//	fs-proxy stop
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
//
// Exit codes: 0 after a normal shutdown, 1 when startup or serving fails.
package main
