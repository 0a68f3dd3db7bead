package filesystem

import (
	"errors"
	"io"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultBufferSize is the streaming chunk size
const DefaultBufferSize = 64 * 1024

// FileInfo describes a regular file or directory inside the sandbox
type FileInfo struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	IsDir    bool      `json:"is_dir"`
	Modified time.Time `json:"modified"`
	// ContentType is set for regular files
	ContentType string `json:"content_type,omitempty"`
}

// Options configures an Executor
type Options struct {
	// IOWorkers bounds concurrent blocking syscalls (default 32)
	IOWorkers int
	// BufferSize is the chunk size for streamed reads and writes (default 64 KiB)
	BufferSize int
	// MaxWriteBytes caps a single upload; 0 means unlimited
	MaxWriteBytes int64
}

// Executor performs read, write and list operations on resolved paths
type Executor struct {
	sandbox  *Sandbox
	pool     *Pool
	bufSize  int
	maxWrite int64
	logger   *zap.Logger
}

// NewExecutor creates an executor bound to a sandbox
func NewExecutor(sandbox *Sandbox, opts Options, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	bufSize := opts.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Executor{
		sandbox:  sandbox,
		pool:     NewPool(opts.IOWorkers),
		bufSize:  bufSize,
		maxWrite: opts.MaxWriteBytes,
		logger:   logger,
	}
}

// Sandbox returns the sandbox the executor is bound to
func (e *Executor) Sandbox() *Sandbox {
	return e.sandbox
}

// FileReader streams (a range of) a file. Close must be called.
type FileReader struct {
	io.Reader
	closer io.Closer

	// Size is the full file size
	Size int64
	// Offset and Length describe the streamed section
	Offset int64
	Length int64
	// Partial is true when a byte range was requested
	Partial     bool
	ModTime     time.Time
	ContentType string
}

// Close releases the underlying file
func (r *FileReader) Close() error {
	return r.closer.Close()
}

// WriteResult reports the outcome of a write
type WriteResult struct {
	Bytes   int64
	Created bool
}

// ListOptions configures a listing
type ListOptions struct {
	Recursive bool
	// Pattern is an optional doublestar glob matched against entry names
	Pattern string
}

func isNotDir(err error) bool {
	return errors.Is(err, syscall.ENOTDIR)
}
