// Package infer bounds concurrent model inference.
//
// Model calls are CPU-bound and blocking, so the HTTP layer must not let an
// unbounded number of them run at once: a burst of uploads would otherwise
// starve every other request. [Pool] wraps a weighted semaphore — each
// inference acquires a slot before running and releases it on every exit
// path. Requests queued for a slot honour context cancellation, so a client
// that gives up does not keep occupying the queue.
package infer

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool limits the number of in-flight inference calls. The zero value is
// not usable; construct with [NewPool].
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool creates a pool with the given number of slots. Sizes below 1
// default to [runtime.NumCPU].
func NewPool(size int) *Pool {
	if size < 1 {
		size = runtime.NumCPU()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the number of slots.
func (p *Pool) Size() int { return p.size }

// Do runs fn once a slot is free, on the calling goroutine, and releases
// the slot when fn returns. If ctx is cancelled while waiting for a slot,
// fn never runs and the context error is returned.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("infer: waiting for worker slot: %w", err)
	}
	defer p.sem.Release(1)
	return fn()
}
