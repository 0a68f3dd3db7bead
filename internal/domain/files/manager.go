package files

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qiuzhanghua/fs-proxy/internal/domain/audit"
	"github.com/qiuzhanghua/fs-proxy/internal/domain/pathlock"
	"github.com/qiuzhanghua/fs-proxy/internal/infrastructure/tracing"
	"github.com/qiuzhanghua/fs-proxy/internal/providers/filesystem"
	"github.com/qiuzhanghua/fs-proxy/internal/shared/fserr"
	"github.com/qiuzhanghua/fs-proxy/internal/shared/types"
)

// Metrics receives operation and lock timings
type Metrics interface {
	ObserveLockWait(mode string, wait time.Duration)
	RecordFileOperation(op, status string, duration time.Duration, bytes int64)
}

type nopMetrics struct{}

func (nopMetrics) ObserveLockWait(string, time.Duration)                    {}
func (nopMetrics) RecordFileOperation(string, string, time.Duration, int64) {}

// Manager mediates every file operation: resolve the path, take the path
// lock, run the operation, release, then record the result.
type Manager struct {
	exec     *filesystem.Executor
	locks    *pathlock.Table
	recorder *audit.Recorder
	metrics  Metrics
	logger   *zap.Logger
}

// NewManager wires the mediation pipeline. A nil recorder disables auditing
// and nil metrics are ignored.
func NewManager(exec *filesystem.Executor, locks *pathlock.Table, recorder *audit.Recorder, metrics Metrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = audit.NewRecorder(nil, audit.Options{}, logger)
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Manager{
		exec:     exec,
		locks:    locks,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger,
	}
}

// Sandbox returns the sandbox all paths resolve against
func (m *Manager) Sandbox() *filesystem.Sandbox {
	return m.exec.Sandbox()
}

// Locks returns the path lock table
func (m *Manager) Locks() *pathlock.Table {
	return m.locks
}

// Recorder returns the audit recorder
func (m *Manager) Recorder() *audit.Recorder {
	return m.recorder
}

// Read opens rel for streaming. The read lock is held until the returned
// Download is closed, so a write to the same path waits for the stream.
func (m *Manager) Read(ctx context.Context, rel string, rng *types.ByteRange) (*Download, error) {
	start := time.Now()
	res := &types.OperationResult{Kind: types.OpRead, Path: rel}

	p, err := m.Sandbox().Resolve(rel)
	if err != nil {
		return nil, m.finish(ctx, res, start, err)
	}
	res.Path = p.Rel

	release, err := m.acquire(ctx, p.Rel, pathlock.Read)
	if err != nil {
		return nil, m.finish(ctx, res, start, err)
	}

	fr, err := m.exec.Read(ctx, p, rng)
	if err != nil {
		release()
		return nil, m.finish(ctx, res, start, err)
	}

	return &Download{
		FileReader: fr,
		m:          m,
		ctx:        context.WithoutCancel(ctx),
		res:        res,
		start:      start,
		release:    release,
	}, nil
}

// Write stores body at rel atomically
func (m *Manager) Write(ctx context.Context, rel string, body io.Reader, mode types.WriteMode) (types.OperationResult, error) {
	start := time.Now()
	res := &types.OperationResult{Kind: types.OpWrite, Path: rel}

	p, err := m.Sandbox().Resolve(rel)
	if err != nil {
		return *res, m.finish(ctx, res, start, err)
	}
	res.Path = p.Rel

	var wr filesystem.WriteResult
	err = m.withLock(ctx, p.Rel, pathlock.Write, func() error {
		var err error
		wr, err = m.exec.Write(ctx, p, body, mode)
		return err
	})
	res.BytesTransferred = wr.Bytes
	res.Created = wr.Created

	return *res, m.finish(ctx, res, start, err)
}

// List returns the entries below rel
func (m *Manager) List(ctx context.Context, rel string, opts filesystem.ListOptions) (types.OperationResult, error) {
	start := time.Now()
	res := &types.OperationResult{Kind: types.OpList, Path: rel}

	p, err := m.Sandbox().Resolve(rel)
	if err != nil {
		return *res, m.finish(ctx, res, start, err)
	}
	res.Path = p.Rel

	entries, err := pathlock.Do(ctx, m.locks, p.Rel, pathlock.Read, func() ([]types.Entry, error) {
		return m.exec.List(ctx, p, opts)
	})
	res.Entries = entries

	return *res, m.finish(ctx, res, start, err)
}

// Stat describes rel. Stats are not audited.
func (m *Manager) Stat(ctx context.Context, rel string) (filesystem.FileInfo, error) {
	p, err := m.Sandbox().Resolve(rel)
	if err != nil {
		return filesystem.FileInfo{}, err
	}

	var info filesystem.FileInfo
	err = m.withLock(ctx, p.Rel, pathlock.Read, func() error {
		var err error
		info, err = m.exec.Stat(ctx, p)
		return err
	})
	return info, err
}

// Execute dispatches a non-streaming request. Reads must use Read.
func (m *Manager) Execute(ctx context.Context, req types.OperationRequest) (types.OperationResult, error) {
	switch req.Kind {
	case types.OpWrite:
		body := req.Payload
		if body == nil {
			body = eofReader{}
		}
		return m.Write(ctx, req.RelativePath, body, req.WriteMode)
	case types.OpList:
		return m.List(ctx, req.RelativePath, filesystem.ListOptions{
			Recursive: req.Recursive,
			Pattern:   req.Pattern,
		})
	default:
		err := fserr.Newf(fserr.KindInvalidArg, "execute", req.RelativePath, "unsupported operation %q", req.Kind)
		res := types.OperationResult{Kind: req.Kind, Path: req.RelativePath, Status: types.StatusError, ErrorKind: string(fserr.KindInvalidArg)}
		return res, err
	}
}

func (m *Manager) acquire(ctx context.Context, key string, mode pathlock.Mode) (pathlock.Release, error) {
	start := time.Now()
	release, err := m.locks.Acquire(ctx, key, mode)
	m.metrics.ObserveLockWait(mode.String(), time.Since(start))
	return release, err
}

func (m *Manager) withLock(ctx context.Context, key string, mode pathlock.Mode, fn func() error) error {
	release, err := m.acquire(ctx, key, mode)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// finish completes res, reports it to metrics, the log and the recorder, and
// returns err unchanged. Must be called after the path lock is released.
func (m *Manager) finish(ctx context.Context, res *types.OperationResult, start time.Time, err error) error {
	res.Duration = time.Since(start)
	res.Status = types.StatusOK
	if err != nil {
		res.Status = types.StatusError
		res.ErrorKind = string(fserr.KindOf(err))
	}

	m.metrics.RecordFileOperation(string(res.Kind), string(res.Status), res.Duration, res.BytesTransferred)

	traceID := tracing.GetTraceID(ctx).String()
	fields := []zap.Field{
		zap.String("op", string(res.Kind)),
		zap.String("path", res.Path),
		zap.Int64("bytes", res.BytesTransferred),
		zap.Duration("duration", res.Duration),
		zap.String("trace_id", traceID),
	}
	switch fserr.KindOf(err) {
	case "":
		m.logger.Debug("File operation completed", fields...)
	case fserr.KindIOError:
		m.logger.Error("File operation failed", append(fields, zap.Error(err))...)
	default:
		m.logger.Info("File operation rejected", append(fields, zap.String("kind", res.ErrorKind), zap.Error(err))...)
	}

	m.recorder.Record(audit.FromResult(res, traceID))
	return err
}

// Download streams a file while holding its read lock. Close releases the
// lock and records the read with the bytes actually delivered.
type Download struct {
	*filesystem.FileReader

	m       *Manager
	ctx     context.Context
	res     *types.OperationResult
	start   time.Time
	release pathlock.Release
	n       int64
	once    sync.Once
}

func (d *Download) Read(p []byte) (int, error) {
	n, err := d.FileReader.Read(p)
	d.n += int64(n)
	return n, err
}

// Close is safe to call more than once. A stream closed before all bytes
// were delivered is recorded as Canceled.
func (d *Download) Close() error {
	var err error
	d.once.Do(func() {
		err = d.FileReader.Close()
		d.release()

		d.res.BytesTransferred = d.n
		var opErr error
		if d.n < d.Length {
			opErr = fserr.Newf(fserr.KindCanceled, "read", d.res.Path, "stream ended after %d of %d bytes", d.n, d.Length)
		}
		d.m.finish(d.ctx, d.res, d.start, opErr)
	})
	return err
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
