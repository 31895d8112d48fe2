package concurrent

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// GoroutineLimiter is a GoroutineRunner that runs at most limit functions at the same time
type GoroutineLimiter struct {
	slots *semaphore.Weighted
}

// NewGoroutineLimiter creates a runner that blocks in Go until one of the limit slots is free
func NewGoroutineLimiter(limit int64) *GoroutineLimiter {
	return &GoroutineLimiter{slots: semaphore.NewWeighted(limit)}
}

// Go waits for a free slot and runs fn in a new goroutine. It only fails when ctx is done before a slot frees up.
func (l *GoroutineLimiter) Go(ctx context.Context, fn func()) error {
	if err := l.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	go func() {
		defer l.slots.Release(1)
		fn()
	}()
	return nil
}
