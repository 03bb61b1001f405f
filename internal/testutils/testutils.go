// Package testutils provides simplified testing utilities and helper functions
package testutils

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/idev0085/taskflow/pkg/types"
)

// CallCounter counts function invocations across goroutines
type CallCounter struct {
	calls atomic.Int64
}

// Inc records one invocation and returns the new total
func (c *CallCounter) Inc() int64 {
	return c.calls.Add(1)
}

// Count returns the number of recorded invocations
func (c *CallCounter) Count() int64 {
	return c.calls.Load()
}

// Context returns a context canceled automatically when the test ends
func Context(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// WaitValue waits for the future to settle and returns its outcome,
// failing the test if it does not settle within timeout
func WaitValue[R any](t *testing.T, fut *types.Future[R], timeout time.Duration) (R, error) {
	t.Helper()
	select {
	case <-fut.Done():
		res, _ := fut.TryResult()
		return res.Value, res.Error
	case <-time.After(timeout):
		t.Fatalf("future did not settle within %v", timeout)
		var zero R
		return zero, nil
	}
}

// WaitAll waits for every future to settle, failing the test if any
// does not settle within timeout
func WaitAll[R any](t *testing.T, futs []*types.Future[R], timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for i, fut := range futs {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("future %d did not settle within %v", i, timeout)
		}
		select {
		case <-fut.Done():
		case <-time.After(remaining):
			t.Fatalf("future %d did not settle within %v", i, timeout)
		}
	}
}
