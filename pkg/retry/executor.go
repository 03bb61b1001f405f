// Package retry executor implementation
package retry

import (
	"context"
	"sync"
	"time"

	"github.com/idev0085/taskflow/pkg/cancel"
	"github.com/idev0085/taskflow/pkg/types"
)

// Executor drives a Policy: it invokes the function, classifies
// failures, waits out backoff delays and accounts statistics. One
// executor may serve many executions concurrently.
type Executor struct {
	policy Policy
	events EventHandler
	clock  types.Clock
	stats  Stats
}

// Stats contains retry statistics
type Stats struct {
	TotalAttempts   int64         // total attempt count
	TotalRetries    int64         // total retry count
	TotalSuccesses  int64         // total success count
	TotalFailures   int64         // total failure count
	AverageAttempts float64       // average attempts per execution
	LastRetryTime   time.Time     // last retry time
	TotalRetryDelay time.Duration // total scheduled backoff delay
	mu              sync.RWMutex
}

// EventHandler observes the lifecycle of retried executions
type EventHandler interface {
	// OnAttempt fires before every attempt after the first
	OnAttempt(ctx context.Context, attempt int)

	// OnSuccess fires when a retried execution eventually succeeds
	OnSuccess(ctx context.Context, attempt int, duration time.Duration)

	// OnFailure fires when execution stops on a non-retryable error
	OnFailure(ctx context.Context, attempt int, err error)

	// OnExhausted fires when every attempt was consumed
	OnExhausted(ctx context.Context, attempts int, err error)
}

// NewExecutor creates a retry executor
func NewExecutor(policy Policy, opts ...ExecutorOption) *Executor {
	executor := &Executor{
		policy: policy,
		clock:  types.NewRealClock(),
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Execute runs fn under the executor's policy. A success returns
// immediately. A non-retryable error passes through unchanged, while
// consuming every attempt on retryable errors returns a
// RetryExhaustedError wrapping the last one. Cancellation during a
// backoff wait abandons the pending attempt.
func Execute[R any](ctx context.Context, e *Executor, fn types.Func[R]) (R, error) {
	var zero R
	attempt := 0

	e.policy.Reset()

	for {
		attempt++

		e.updateStats(func(stats *Stats) {
			stats.TotalAttempts++
		})

		if err := cancel.CauseOf(ctx); err != nil {
			return zero, err
		}

		if e.events != nil && attempt > 1 {
			e.events.OnAttempt(ctx, attempt)
		}

		start := e.clock.Now()
		result, err := fn(ctx)
		duration := e.clock.Since(start)

		if err == nil {
			e.updateStats(func(stats *Stats) {
				stats.TotalSuccesses++
				if attempt > 1 {
					stats.TotalRetries++
				}
				stats.updateAverageAttempts()
			})

			if e.events != nil && attempt > 1 {
				e.events.OnSuccess(ctx, attempt, duration)
			}

			return result, nil
		}

		if !e.policy.ShouldRetry(err, attempt) {
			e.updateStats(func(stats *Stats) {
				stats.TotalFailures++
				if attempt > 1 {
					stats.TotalRetries++
				}
				stats.updateAverageAttempts()
			})

			if attempt >= e.policy.MaxAttempts() && types.IsRetryable(err) {
				exhausted := &types.RetryExhaustedError{Attempts: attempt, Cause: err}
				if e.events != nil {
					e.events.OnExhausted(ctx, attempt, exhausted)
				}
				return zero, exhausted
			}

			if e.events != nil {
				e.events.OnFailure(ctx, attempt, err)
			}
			return zero, err
		}

		delay := e.policy.NextDelay(attempt)

		e.updateStats(func(stats *Stats) {
			stats.LastRetryTime = e.clock.Now()
			stats.TotalRetryDelay += delay
		})

		if delay > 0 {
			select {
			case <-ctx.Done():
				return zero, cancel.CauseOf(ctx)
			case <-e.clock.After(delay):
			}
		}
	}
}

// ExecuteAsync runs fn under the executor's policy and settles the
// returned future with the outcome.
func ExecuteAsync[R any](ctx context.Context, e *Executor, fn types.Func[R]) *types.Future[R] {
	fut := types.NewFuture[R]()

	go func() {
		start := e.clock.Now()
		value, err := Execute(ctx, e, fn)
		fut.Complete(types.Result[R]{
			Value:    value,
			Error:    err,
			Duration: e.clock.Since(start),
		})
	}()

	return fut
}

// Wrap decorates fn so every invocation runs under the given policy.
// The wrapped function keeps the Func shape and composes with every
// other wrapper in this library. All invocations share one executor,
// so statistics accumulate across calls.
func Wrap[R any](fn types.Func[R], policy Policy, opts ...ExecutorOption) types.Func[R] {
	e := NewExecutor(policy, opts...)
	return func(ctx context.Context) (R, error) {
		return Execute(ctx, e, fn)
	}
}

// GetStats returns a snapshot of retry statistics
func (e *Executor) GetStats() Stats {
	e.stats.mu.RLock()
	defer e.stats.mu.RUnlock()
	return Stats{
		TotalAttempts:   e.stats.TotalAttempts,
		TotalRetries:    e.stats.TotalRetries,
		TotalSuccesses:  e.stats.TotalSuccesses,
		TotalFailures:   e.stats.TotalFailures,
		AverageAttempts: e.stats.AverageAttempts,
		LastRetryTime:   e.stats.LastRetryTime,
		TotalRetryDelay: e.stats.TotalRetryDelay,
	}
}

// ResetStats resets statistics
func (e *Executor) ResetStats() {
	e.stats.mu.Lock()
	defer e.stats.mu.Unlock()

	e.stats.TotalAttempts = 0
	e.stats.TotalRetries = 0
	e.stats.TotalSuccesses = 0
	e.stats.TotalFailures = 0
	e.stats.AverageAttempts = 0
	e.stats.LastRetryTime = time.Time{}
	e.stats.TotalRetryDelay = 0
}

func (e *Executor) updateStats(fn func(*Stats)) {
	e.stats.mu.Lock()
	defer e.stats.mu.Unlock()
	fn(&e.stats)
}

func (s *Stats) updateAverageAttempts() {
	totalExecutions := s.TotalSuccesses + s.TotalFailures
	if totalExecutions > 0 {
		s.AverageAttempts = float64(s.TotalAttempts) / float64(totalExecutions)
	}
}

// ExecutorOption is a configuration option for the retry executor
type ExecutorOption func(*Executor)

// WithEventHandler sets the event handler
func WithEventHandler(handler EventHandler) ExecutorOption {
	return func(e *Executor) {
		e.events = handler
	}
}

// WithClock sets the clock for time operations
func WithClock(clock types.Clock) ExecutorOption {
	return func(e *Executor) {
		e.clock = clock
	}
}

// LogEventHandler logs retry lifecycle events
type LogEventHandler struct {
	logger types.Logger
}

// NewLogEventHandler creates an event handler backed by a logger
func NewLogEventHandler(logger types.Logger) *LogEventHandler {
	return &LogEventHandler{logger: logger}
}

// OnAttempt handles retry attempt events
func (h *LogEventHandler) OnAttempt(ctx context.Context, attempt int) {
	if h.logger != nil {
		h.logger.Debugf("retry attempt %d starting", attempt)
	}
}

// OnSuccess handles retry success events
func (h *LogEventHandler) OnSuccess(ctx context.Context, attempt int, duration time.Duration) {
	if h.logger != nil {
		h.logger.Infof("retry succeeded on attempt %d after %v", attempt, duration)
	}
}

// OnFailure handles terminal failure events
func (h *LogEventHandler) OnFailure(ctx context.Context, attempt int, err error) {
	if h.logger != nil {
		h.logger.Warnf("giving up on attempt %d: %v", attempt, err)
	}
}

// OnExhausted handles attempt exhaustion events
func (h *LogEventHandler) OnExhausted(ctx context.Context, attempts int, err error) {
	if h.logger != nil {
		h.logger.Errorf("retry attempts (%d) exhausted: %v", attempts, err)
	}
}
