// Package types defines the Future settlement handle
package types

import (
	"context"
	"sync"
)

// Future is the handle through which callers observe the eventual
// outcome of deferred work. A future settles exactly once; the first
// Resolve, Reject or Complete wins and later settlements are ignored.
// Any number of goroutines may wait on the same future.
type Future[R any] struct {
	mu      sync.Mutex
	done    chan struct{}
	result  Result[R]
	settled bool
}

// NewFuture creates an unsettled future
func NewFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

// ResolvedFuture creates a future already settled with a value
func ResolvedFuture[R any](value R) *Future[R] {
	f := NewFuture[R]()
	f.Resolve(value)
	return f
}

// RejectedFuture creates a future already settled with an error
func RejectedFuture[R any](err error) *Future[R] {
	f := NewFuture[R]()
	f.Reject(err)
	return f
}

// Complete settles the future with a full result. It reports whether
// this call performed the settlement.
func (f *Future[R]) Complete(res Result[R]) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.result = res
	f.settled = true
	close(f.done)
	f.mu.Unlock()
	return true
}

// Resolve settles the future with a value
func (f *Future[R]) Resolve(value R) bool {
	return f.Complete(Result[R]{Value: value})
}

// Reject settles the future with an error
func (f *Future[R]) Reject(err error) bool {
	return f.Complete(Result[R]{Error: err})
}

// Done returns a channel closed when the future settles
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future has settled
func (f *Future[R]) Settled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled
}

// TryResult returns the result without blocking. The second return
// is false while the future is unsettled.
func (f *Future[R]) TryResult() (Result[R], bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.settled {
		return Result[R]{}, false
	}
	return f.result, true
}

// Wait blocks until the future settles or ctx is done. A context
// cancellation abandons the wait only; the underlying work keeps
// running and other waiters are unaffected.
func (f *Future[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.result.Value, f.result.Error
	case <-ctx.Done():
		var zero R
		return zero, context.Cause(ctx)
	}
}

// WaitResult blocks like Wait but returns the full result including
// the measured duration.
func (f *Future[R]) WaitResult(ctx context.Context) (Result[R], error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return Result[R]{}, context.Cause(ctx)
	}
}
