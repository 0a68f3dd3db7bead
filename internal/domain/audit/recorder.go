package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qiuzhanghua/fs-proxy/internal/infrastructure/resilience"
)

const (
	DefaultQueueSize    = 1024
	DefaultWriteTimeout = 5 * time.Second
)

// Metrics receives recorder outcomes
type Metrics interface {
	RecordAuditWritten()
	RecordAuditDropped()
	RecordAuditFailed()
}

type nopMetrics struct{}

func (nopMetrics) RecordAuditWritten() {}
func (nopMetrics) RecordAuditDropped() {}
func (nopMetrics) RecordAuditFailed()  {}

// Options configures a Recorder
type Options struct {
	QueueSize    int
	WriteTimeout time.Duration
	Metrics      Metrics
	// Breaker guards store writes; nil uses a default breaker bounded by
	// WriteTimeout. A supplied breaker brings its own CallTimeout.
	Breaker *resilience.Breaker
}

// Status summarizes the recorder for health reporting
type Status struct {
	Enabled bool                 `json:"enabled"`
	Queued  int                  `json:"queued"`
	Breaker *resilience.Snapshot `json:"breaker,omitempty"`
}

// Recorder writes records to a Store in the background. Record never blocks
// the caller and store failures never reach it.
type Recorder struct {
	store   Store
	queue   chan Record
	breaker *resilience.Breaker
	metrics Metrics
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewRecorder starts a recorder writing to store. A nil store yields a
// disabled recorder that discards everything.
func NewRecorder(store Store, opts Options, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.New("audit-store", resilience.Settings{
			CallTimeout: opts.WriteTimeout,
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Warn("Audit store breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}

	r := &Recorder{
		store:   store,
		breaker: opts.Breaker,
		metrics: opts.Metrics,
		logger:  logger,
		done:    make(chan struct{}),
	}

	if store == nil {
		close(r.done)
		return r
	}

	r.queue = make(chan Record, opts.QueueSize)
	go r.run()
	return r
}

// Enabled reports whether records are being stored
func (r *Recorder) Enabled() bool {
	return r.store != nil
}

// Record enqueues rec and reports whether it was accepted. A full queue or a
// closed recorder drops the record.
func (r *Recorder) Record(rec Record) bool {
	if r.store == nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.metrics.RecordAuditDropped()
		return false
	}

	select {
	case r.queue <- rec:
		return true
	default:
		r.metrics.RecordAuditDropped()
		r.logger.Warn("Audit queue full, dropping record",
			zap.String("op", string(rec.Op)),
			zap.String("path", rec.Path))
		return false
	}
}

// Recent returns the newest records from the store
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Record, error) {
	if r.store == nil {
		return nil, ErrDisabled
	}
	return r.store.Recent(ctx, limit)
}

// Status returns the recorder state
func (r *Recorder) Status() Status {
	if r.store == nil {
		return Status{}
	}
	snap := r.breaker.Snapshot()
	return Status{Enabled: true, Queued: len(r.queue), Breaker: &snap}
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		r.write(rec)
	}
}

func (r *Recorder) write(rec Record) {
	err := r.breaker.Call(context.Background(), func(ctx context.Context) error {
		return r.store.Append(ctx, rec)
	})
	if err == nil {
		r.metrics.RecordAuditWritten()
		return
	}

	r.metrics.RecordAuditFailed()
	fields := []zap.Field{
		zap.String("id", rec.ID),
		zap.String("op", string(rec.Op)),
		zap.String("path", rec.Path),
		zap.Error(err),
	}
	if errors.Is(err, resilience.ErrOpen) {
		r.logger.Debug("Audit store unavailable, record skipped", fields...)
		return
	}
	r.logger.Error("Failed to write audit record", fields...)
}

// Close stops accepting records, drains the queue into the store and closes
// the store. If ctx ends first the remaining records are abandoned.
func (r *Recorder) Close(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		r.logger.Warn("Audit queue not drained before shutdown", zap.Int("remaining", len(r.queue)))
		return ctx.Err()
	}

	return r.store.Close()
}
