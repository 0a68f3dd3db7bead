// Package config provides 12-factor configuration management for fs-proxy.
//
// Configuration is loaded from environment variables with sensible defaults.
// A .env file in the working directory or next to the executable is loaded
// first without overriding variables that are already set. CLI flags override
// environment variables; Validate runs last.
//
// Configuration Sections:
//   - Server: listen address, shutdown budget, upload limit
//   - Sandbox: confined root directory and file I/O tuning
//   - Audit: metadata store DSN and recorder queue
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting configuration
//
// Example Usage:
//
//	config.LoadEnvFiles(paths.EnvFiles()...)
//	cfg, err := config.Load()
//	cfg.Sandbox.Root = rootFlag
//	err = cfg.Validate()
//
// Environment Variables:
//   - SANDBOX_ROOT, PORT, HOST, SHUTDOWN_TIMEOUT, ADMIN_SHUTDOWN_ENABLED
//   - CORS_ALLOWED_ORIGINS (comma separated)
//   - MAX_UPLOAD_BYTES, LOCK_TIMEOUT, IO_WORKERS, COPY_BUFFER_SIZE
//   - METADATA_DSN, AUDIT_QUEUE_SIZE, AUDIT_WRITE_TIMEOUT
//   - LOG_LEVEL (or LOGGING_LEVEL), LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED, RATE_LIMIT_SCOPE
package config
