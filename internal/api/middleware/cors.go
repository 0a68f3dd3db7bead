package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSConfig returns the policy for browser clients of /files and
// /dirs. Browsers may send Range and If-None-Match so that partial reads and
// create-only uploads work cross-origin. Content-Range, Accept-Ranges and
// Last-Modified are exposed so a page can page through a large file and
// detect changes; the trace headers let it quote a request id when
// reporting an error.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "HEAD", "PUT", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Range",
			"If-None-Match",
			"Accept",
			"Origin",
			"Cache-Control",
			"X-Requested-With",
			"X-Trace-ID",
			"X-Span-ID",
		},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Range",
			"Accept-Ranges",
			"Last-Modified",
			"X-Trace-ID",
			"X-Span-ID",
		},
		MaxAge: 12 * time.Hour,
	}
}

// WithOrigins returns a copy restricted to origins. An empty list keeps the
// current origins. Credentials are only allowed for an explicit origin list.
func (c CORSConfig) WithOrigins(origins []string) CORSConfig {
	if len(origins) == 0 {
		return c
	}
	c.AllowOrigins = append([]string(nil), origins...)
	c.AllowCredentials = !allowsAny(c.AllowOrigins)
	return c
}

// CORS creates a CORS middleware with the provided configuration.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		ExposeHeaders:    cfg.ExposeHeaders,
		AllowCredentials: cfg.AllowCredentials && !allowsAny(cfg.AllowOrigins),
		MaxAge:           cfg.MaxAge,
	})
}

func allowsAny(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
