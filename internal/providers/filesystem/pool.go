package filesystem

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/qiuzhanghua/fs-proxy/internal/shared/fserr"
)

// DefaultIOWorkers bounds concurrent blocking filesystem calls
const DefaultIOWorkers = 32

// Pool limits how many blocking filesystem calls run at once so a slow disk
// cannot pin an unbounded number of OS threads.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// NewPool creates a pool with the given number of slots
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultIOWorkers
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Size returns the number of slots
func (p *Pool) Size() int {
	return int(p.size)
}

// Do runs fn while holding a slot. Waiting for a slot respects ctx.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fserr.New(fserr.KindCanceled, "io", "", err)
	}
	defer p.sem.Release(1)
	return fn()
}
