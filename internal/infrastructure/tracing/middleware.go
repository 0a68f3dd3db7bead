package tracing

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qiuzhanghua/fs-proxy/internal/shared/id"
)

// HTTPMiddleware creates Gin middleware that starts a span per request.
// An incoming X-Trace-ID is continued; the ids are echoed in the response.
// The span ends after the handler returns, so a download is timed until its
// last byte has been written.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if traceID := c.GetHeader(HeaderTraceID); validID(traceID) {
			ctx = WithTraceID(ctx, id.TraceID(traceID))
		}
		if parentID := c.GetHeader(HeaderSpanID); validID(parentID) {
			ctx = context.WithValue(ctx, spanIDKey, id.SpanID(parentID))
		}

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)

		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderTraceID, span.TraceID.String())
		c.Header(HeaderSpanID, span.SpanID.String())

		c.Next()

		span.Add(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		)
		var err error
		if len(c.Errors) > 0 {
			err = c.Errors.Last()
		}
		span.End(c.Writer.Status(), err)
		tracer.Submit(span)
	}
}
