package http

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qiuzhanghua/fs-proxy/internal/domain/files"
	"github.com/qiuzhanghua/fs-proxy/internal/infrastructure/monitoring"
)

// Version is reported by the banner endpoint
const Version = "0.3.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	files     *files.Manager
	logger    *zap.Logger
	startedAt time.Time
	shutdown  func()
	metrics   *monitoring.Metrics
}

// NewHandlers creates a new handler set. shutdown is invoked after the
// shutdown endpoint has replied; it may be nil when that endpoint is off.
func NewHandlers(mgr *files.Manager, shutdown func(), logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		files:     mgr,
		logger:    logger,
		startedAt: time.Now(),
		shutdown:  shutdown,
	}
}

// WithMetrics adds request statistics to the health report
func (h *Handlers) WithMetrics(m *monitoring.Metrics) *Handlers {
	h.metrics = m
	return h
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "fs-proxy",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	resp := gin.H{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"pid":            os.Getpid(),
		"platform":       runtime.GOOS,
		"framework":      "gin",
		"sandbox_root":   h.files.Sandbox().Root(),
		"locks_active":   h.files.Locks().Len(),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"audit":          h.files.Recorder().Status(),
	}
	if h.metrics != nil {
		resp["requests"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}

// Shutdown replies and then triggers a graceful shutdown
func (h *Handlers) Shutdown(c *gin.Context) {
	if h.shutdown == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "shutdown endpoint is disabled", Kind: "NotFound"})
		return
	}

	h.logger.Info("Shutdown requested", zap.String("client_ip", c.ClientIP()))
	c.JSON(http.StatusAccepted, gin.H{"status": "shutting down"})
	c.Writer.Flush()

	go h.shutdown()
}
