package concurrent

import (
	"context"
	"sync/atomic"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

// WorkerPool bounds how many turns and travel searches run at once. Waiting
// for a slot honours the caller's context.
type WorkerPool struct {
	size    int
	sem     chan struct{}
	running atomic.Int64
	waiting atomic.Int64
}

// NewWorkerPool creates a pool with the given number of slots.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = DefaultWorkers
	}
	return &WorkerPool{size: size, sem: make(chan struct{}, size)}
}

// Do runs fn once a slot is free. It returns ctx.Err() if the context ends
// first; fn is not called in that case.
func (wp *WorkerPool) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wp.waiting.Add(1)
	select {
	case <-ctx.Done():
		wp.waiting.Add(-1)
		return ctx.Err()
	case wp.sem <- struct{}{}:
		wp.waiting.Add(-1)
	}
	wp.running.Add(1)
	defer func() {
		wp.running.Add(-1)
		<-wp.sem
	}()
	return fn(ctx)
}

// Submit is Do for functions that produce a value.
func Submit[R any](ctx context.Context, wp *WorkerPool, fn func(context.Context) (R, error)) (R, error) {
	var out R
	err := wp.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// Size returns the number of slots.
func (wp *WorkerPool) Size() int { return wp.size }

// Running returns the number of functions currently executing.
func (wp *WorkerPool) Running() int { return int(wp.running.Load()) }

// Waiting returns the number of callers blocked on a slot.
func (wp *WorkerPool) Waiting() int { return int(wp.waiting.Load()) }
