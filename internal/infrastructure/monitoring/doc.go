/*
Package monitoring provides Prometheus metrics for the proxy.

# Overview

Metrics are registered on a per-instance registry and exposed through
Handler. Covered areas:

- HTTP requests (count, latency, request and response size) by route
- File operations (count by outcome, latency, bytes transferred)
- Per-path lock wait time and active lock entries
- Audit records written, dropped and failed
- Uptime plus the Go runtime and process collectors

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	metrics.RegisterActiveLocks(table.Len)
	metrics.RecordFileOperation("write", "ok", elapsed, n)
*/
package monitoring
