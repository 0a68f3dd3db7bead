package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fsproxy"

// Metrics holds all Prometheus metrics. Each instance owns its registry so
// several servers (or tests) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec
	InFlight        *prometheus.GaugeVec

	// File operation metrics
	FileOps        *prometheus.CounterVec
	FileOpDuration *prometheus.HistogramVec
	FileBytes      *prometheus.CounterVec

	// Lock metrics
	LockWait *prometheus.HistogramVec

	// Audit metrics
	AuditWritten prometheus.Counter
	AuditDropped prometheus.Counter
	AuditFailed  prometheus.Counter

	startTime time.Time

	// Snapshot for the JSON health endpoint
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current request totals for JSON responses
type MetricsSnapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	TotalDuration float64 `json:"-"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// NewMetrics creates a metrics collector with its own registry, including
// the standard Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		InFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "HTTP requests currently being served, including open downloads",
			},
			[]string{"method"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		FileOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "file_operations_total",
				Help:      "Total number of mediated file operations",
			},
			[]string{"op", "status"},
		),
		FileOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "file_operation_duration_seconds",
				Help:      "File operation duration in seconds, lock wait included",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op"},
		),
		FileBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "file_bytes_total",
				Help:      "Bytes read from or written to the sandbox",
			},
			[]string{"op"},
		),

		LockWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lock_wait_seconds",
				Help:      "Time spent waiting for a per-path lock",
				Buckets:   []float64{.0001, .001, .005, .01, .05, .1, .5, 1, 5, 30},
			},
			[]string{"mode"},
		),

		AuditWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_records_written_total",
			Help:      "Audit records persisted to the store",
		}),
		AuditDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_records_dropped_total",
			Help:      "Audit records dropped because the queue was full or closed",
		}),
		AuditFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_records_failed_total",
			Help:      "Audit records the store failed to persist",
		}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Server uptime in seconds",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	})

	return m
}

// Registry returns the registry the metrics are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterActiveLocks exports fn as the active lock entries gauge
func (m *Metrics) RegisterActiveLocks(fn func() int) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "locks_active",
		Help:      "Paths currently locked or waited on",
	}, func() float64 {
		return float64(fn())
	})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordFileOperation records a finished file operation
func (m *Metrics) RecordFileOperation(op, status string, duration time.Duration, bytes int64) {
	m.FileOps.WithLabelValues(op, status).Inc()
	m.FileOpDuration.WithLabelValues(op).Observe(duration.Seconds())
	if bytes > 0 {
		m.FileBytes.WithLabelValues(op).Add(float64(bytes))
	}
}

// ObserveLockWait records how long a lock request waited
func (m *Metrics) ObserveLockWait(mode string, wait time.Duration) {
	m.LockWait.WithLabelValues(mode).Observe(wait.Seconds())
}

func (m *Metrics) RecordAuditWritten() { m.AuditWritten.Inc() }
func (m *Metrics) RecordAuditDropped() { m.AuditDropped.Inc() }
func (m *Metrics) RecordAuditFailed()  { m.AuditFailed.Inc() }
