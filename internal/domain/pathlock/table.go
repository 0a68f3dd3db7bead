package pathlock

import (
	"context"
	"sync"
	"time"

	"github.com/qiuzhanghua/fs-proxy/internal/shared/fserr"
)

// Mode is the kind of access requested on a key
type Mode int

const (
	Read Mode = iota
	Write
)

func (m Mode) String() string {
	if m == Write {
		return "write"
	}
	return "read"
}

// Options configures a Table
type Options struct {
	// Timeout bounds how long a request may wait; 0 waits forever
	Timeout time.Duration
}

// Release gives a lock back. Calling it more than once is a no-op.
type Release func()

type waiter struct {
	mode    Mode
	ready   chan struct{}
	granted bool
	err     error
}

type entry struct {
	readers int
	writer  bool
	queue   []*waiter
	// refs counts holders plus waiters
	refs int
}

func (e *entry) compatible(mode Mode) bool {
	if mode == Write {
		return !e.writer && e.readers == 0
	}
	return !e.writer
}

func (e *entry) take(mode Mode) {
	if mode == Write {
		e.writer = true
	} else {
		e.readers++
	}
}

// Table maps keys to readers-writer locks
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
	timeout time.Duration
}

// NewTable creates an empty lock table
func NewTable(opts Options) *Table {
	return &Table{
		entries: make(map[string]*entry),
		timeout: opts.Timeout,
	}
}

// Acquire blocks until key is held in mode, ctx is done, the wait times out
// (Conflict) or the table is closed (ShuttingDown).
func (t *Table) Acquire(ctx context.Context, key string, mode Mode) (Release, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fserr.Newf(fserr.KindShuttingDown, "lock", key, "lock table closed")
	}

	e, ok := t.entries[key]
	if !ok {
		e = &entry{}
		t.entries[key] = e
	}
	e.refs++

	if len(e.queue) == 0 && e.compatible(mode) {
		e.take(mode)
		t.mu.Unlock()
		return t.releaser(key, e, mode), nil
	}

	w := &waiter{mode: mode, ready: make(chan struct{})}
	e.queue = append(e.queue, w)
	t.mu.Unlock()

	var expired <-chan time.Time
	if t.timeout > 0 {
		timer := time.NewTimer(t.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-w.ready:
		if w.err != nil {
			return nil, w.err
		}
		return t.releaser(key, e, mode), nil
	case <-ctx.Done():
		return nil, t.abandon(key, e, w, fserr.New(fserr.KindCanceled, "lock", key, ctx.Err()))
	case <-expired:
		return nil, t.abandon(key, e, w, fserr.Newf(fserr.KindConflict, "lock", key, "timed out after %s waiting for %s lock", t.timeout, mode))
	}
}

// abandon removes a waiter that gave up. If it was granted in the meantime the
// grant is handed back.
func (t *Table) abandon(key string, e *entry, w *waiter, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if w.err != nil {
		// closed while we were leaving
		return w.err
	}
	if w.granted {
		t.unlock(key, e, w.mode)
		return cause
	}

	for i, q := range e.queue {
		if q == w {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			break
		}
	}
	e.refs--
	t.dispatch(e)
	t.gc(key, e)
	return cause
}

func (t *Table) releaser(key string, e *entry, mode Mode) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			t.unlock(key, e, mode)
			t.mu.Unlock()
		})
	}
}

// unlock drops one hold. Caller holds t.mu.
func (t *Table) unlock(key string, e *entry, mode Mode) {
	if mode == Write {
		e.writer = false
	} else {
		e.readers--
	}
	e.refs--
	t.dispatch(e)
	t.gc(key, e)
}

// dispatch grants waiters from the head of the queue while they fit.
// Consecutive readers are granted together. Caller holds t.mu.
func (t *Table) dispatch(e *entry) {
	for len(e.queue) > 0 {
		w := e.queue[0]
		if !e.compatible(w.mode) {
			return
		}
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.take(w.mode)
		w.granted = true
		close(w.ready)
	}
}

func (t *Table) gc(key string, e *entry) {
	if e.refs == 0 && t.entries[key] == e {
		delete(t.entries, key)
	}
}

// WithLock runs action while holding key. The lock is released on every exit
// path, including a panic in action.
func (t *Table) WithLock(ctx context.Context, key string, mode Mode, action func() error) error {
	release, err := t.Acquire(ctx, key, mode)
	if err != nil {
		return err
	}
	defer release()
	return action()
}

// Do is WithLock for actions that produce a value
func Do[T any](ctx context.Context, t *Table, key string, mode Mode, fn func() (T, error)) (T, error) {
	release, err := t.Acquire(ctx, key, mode)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()
	return fn()
}

// Close fails all current waiters and later acquisitions with ShuttingDown.
// Current holders are unaffected and release normally.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true

	for key, e := range t.entries {
		for _, w := range e.queue {
			w.err = fserr.Newf(fserr.KindShuttingDown, "lock", key, "lock table closed")
			e.refs--
			close(w.ready)
		}
		e.queue = nil
		t.gc(key, e)
	}
}

// Len returns the number of keys currently held or waited on
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// waiting returns the queue length for key
func (t *Table) waiting(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		return len(e.queue)
	}
	return 0
}
