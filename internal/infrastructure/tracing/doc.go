/*
Package tracing provides lightweight request tracing.

Every HTTP request gets a span. Finished spans are handed to a buffered
collector that writes one access log line per request with zap, so tracing
never blocks a request. The trace ID is kept in
the request context and stored on each audit record, which ties a log line, a
response header and an audit entry together.

# Usage

	tracer := tracing.New(logger.Named("access"))
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))

	// later, anywhere the request context is available
	traceID := tracing.GetTraceID(ctx)

# Propagation

- X-Trace-ID: continued when supplied by the client, generated otherwise
- X-Span-ID: the caller's span, recorded as the parent

Both headers are echoed on the response. Client-supplied ids longer than 128
bytes or containing non-printable characters are ignored.
*/
package tracing
