package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection. Requests are
// labeled by route pattern, not raw path, so /files/*path stays one series.
// A download counts as in flight until its body has been streamed.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		inflight := metrics.InFlight.WithLabelValues(method)
		inflight.Inc()
		defer inflight.Dec()

		reqSize := max(c.Request.ContentLength, 0)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		respSize := max(int64(c.Writer.Size()), 0)

		metrics.RecordHTTPRequest(method, route, strconv.Itoa(c.Writer.Status()), time.Since(start), reqSize, respSize)
	}
}
