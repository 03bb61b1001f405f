// Package flow composes Func values with resilience wrappers
package flow

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/idev0085/taskflow/pkg/cancel"
	"github.com/idev0085/taskflow/pkg/types"
)

// Wrapper decorates a Func with one concern, returning the decorated
// form. retry.Wrap, breaker.Wrap and the rategate Func adapters all
// produce Wrappers when partially applied.
type Wrapper[R any] func(types.Func[R]) types.Func[R]

// Chain applies wrappers to fn from innermost outward: the first
// wrapper sits closest to fn, the last one sees every call first.
//
//	chain := flow.Chain(fetch,
//		func(fn types.Func[Quote]) types.Func[Quote] { return retry.Wrap(fn, policy) },
//		func(fn types.Func[Quote]) types.Func[Quote] { return breaker.Wrap(fn, b) },
//	)
//
// puts retry around fetch and the breaker around both, so one guarded
// call may cost several fetch attempts but only one breaker admission.
// Nil wrappers are skipped.
func Chain[R any](fn types.Func[R], wrappers ...Wrapper[R]) types.Func[R] {
	for _, wrap := range wrappers {
		if wrap == nil {
			continue
		}
		fn = wrap(fn)
	}
	return fn
}

// WithTimeout bounds each invocation of fn with its own deadline. The
// timeout is cooperative: fn must honor its context. When fn reports
// the deadline and the caller's own context is still live, the error
// is classified as a per-call TimeoutError, which is retryable; a
// deadline inherited from the caller passes through unchanged. A
// non-positive d returns fn as is.
func WithTimeout[R any](fn types.Func[R], d time.Duration) types.Func[R] {
	if d <= 0 {
		return fn
	}
	return func(ctx context.Context) (R, error) {
		timeoutCtx, cancelTimeout := context.WithTimeout(ctx, d)
		defer cancelTimeout()

		value, err := fn(timeoutCtx)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			var zero R
			return zero, &types.TimeoutError{After: d, Cause: err}
		}
		return value, err
	}
}

// WithToken gates fn on a cancellation token: an aborted token rejects
// before fn runs, a live one is bound into fn's context so a later
// abort cancels the call in flight. A nil token returns fn as is.
func WithToken[R any](fn types.Func[R], token *cancel.Token) types.Func[R] {
	if token == nil {
		return fn
	}
	return func(ctx context.Context) (R, error) {
		if err := token.Err(); err != nil {
			var zero R
			return zero, err
		}
		bound, release := token.Bind(ctx)
		defer release()
		return fn(bound)
	}
}

// Tap observes successful values without changing them
func Tap[R any](fn types.Func[R], observer func(R)) types.Func[R] {
	if observer == nil {
		return fn
	}
	return func(ctx context.Context) (R, error) {
		value, err := fn(ctx)
		if err == nil {
			observer(value)
		}
		return value, err
	}
}

// MapError rewrites errors through handler, typically to reclassify
// them for an outer retry policy. Successful results pass through
// untouched.
func MapError[R any](fn types.Func[R], handler func(error) error) types.Func[R] {
	if handler == nil {
		return fn
	}
	return func(ctx context.Context) (R, error) {
		value, err := fn(ctx)
		if err != nil {
			err = handler(err)
		}
		return value, err
	}
}

// All runs every fn concurrently and collects their values in
// argument order. The first error cancels the shared context and is
// returned alone.
func All[R any](fns ...types.Func[R]) types.Func[[]R] {
	return func(ctx context.Context) ([]R, error) {
		for _, fn := range fns {
			if fn == nil {
				return nil, types.ErrNilTask
			}
		}

		results := make([]R, len(fns))
		g, gctx := errgroup.WithContext(ctx)
		for i, fn := range fns {
			i, fn := i, fn
			g.Go(func() error {
				value, err := fn(gctx)
				if err != nil {
					return err
				}
				results[i] = value
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return results, nil
	}
}
