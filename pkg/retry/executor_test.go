package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/idev0085/taskflow/pkg/cancel"
	"github.com/idev0085/taskflow/pkg/types"
)

func TestRetryExecutor_Execute_Success(t *testing.T) {
	policy := NewFixedPolicy(3, 10*time.Millisecond, WithJitter(NoJitter))
	executor := NewExecutor(policy)

	result, err := Execute(context.Background(), executor, func(ctx context.Context) (string, error) {
		return "success", nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result != "success" {
		t.Errorf("Expected 'success', got %v", result)
	}

	stats := executor.GetStats()
	if stats.TotalAttempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", stats.TotalAttempts)
	}
	if stats.TotalSuccesses != 1 {
		t.Errorf("Expected 1 success, got %d", stats.TotalSuccesses)
	}
	if stats.TotalRetries != 0 {
		t.Errorf("Expected 0 retries, got %d", stats.TotalRetries)
	}
}

func TestRetryExecutor_Execute_RetrySuccess(t *testing.T) {
	policy := NewFixedPolicy(3, 10*time.Millisecond, WithJitter(NoJitter))
	executor := NewExecutor(policy)

	var attempts int32
	result, err := Execute(context.Background(), executor, func(ctx context.Context) (string, error) {
		attempt := atomic.AddInt32(&attempts, 1)
		if attempt < 3 {
			return "", types.MarkTransient(errors.New("flaky"))
		}
		return "success", nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result != "success" {
		t.Errorf("Expected 'success', got %v", result)
	}

	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}

	stats := executor.GetStats()
	if stats.TotalAttempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", stats.TotalAttempts)
	}
	if stats.TotalRetries != 1 {
		t.Errorf("Expected 1 retried execution, got %d", stats.TotalRetries)
	}
}

func TestRetryExecutor_Execute_Exhausted(t *testing.T) {
	policy := NewFixedPolicy(3, 5*time.Millisecond, WithJitter(NoJitter))
	executor := NewExecutor(policy)

	cause := types.MarkTransient(errors.New("still down"))
	var attempts int32
	_, err := Execute(context.Background(), executor, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", cause
	})

	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("Expected exactly 3 calls, got %d", attempts)
	}

	var exhausted *types.RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected RetryExhaustedError, got %T: %v", err, err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Expected Attempts=3, got %d", exhausted.Attempts)
	}
	if !errors.Is(err, types.ErrRetryExhausted) {
		t.Errorf("Expected match against ErrRetryExhausted")
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected last error to be reachable as the cause")
	}

	stats := executor.GetStats()
	if stats.TotalFailures != 1 {
		t.Errorf("Expected 1 failure, got %d", stats.TotalFailures)
	}
}

func TestRetryExecutor_Execute_PermanentShortCircuit(t *testing.T) {
	policy := NewFixedPolicy(5, 5*time.Millisecond, WithJitter(NoJitter))
	executor := NewExecutor(policy)

	inner := errors.New("bad request")
	var attempts int32
	_, err := Execute(context.Background(), executor, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", types.MarkPermanent(inner)
	})

	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}

	var exhausted *types.RetryExhaustedError
	if errors.As(err, &exhausted) {
		t.Errorf("Permanent errors must pass through unwrapped, got %v", err)
	}
	if !errors.Is(err, inner) {
		t.Errorf("Expected underlying cause to be reachable, got %v", err)
	}
}

func TestRetryExecutor_Execute_CustomCondition(t *testing.T) {
	retryable := errors.New("worth retrying")
	policy := NewFixedPolicy(3, time.Millisecond,
		WithJitter(NoJitter),
		WithCondition(func(err error) bool { return errors.Is(err, retryable) }),
	)
	executor := NewExecutor(policy)

	var attempts int32
	_, err := Execute(context.Background(), executor, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "", errors.New("unlisted failure")
	})

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("Expected condition to stop after 1 attempt, got %d", attempts)
	}
}

func TestRetryExecutor_Execute_ContextCanceled(t *testing.T) {
	policy := NewFixedPolicy(3, 10*time.Millisecond, WithJitter(NoJitter))
	executor := NewExecutor(policy)

	ctx, cancelCtx := context.WithCancel(context.Background())
	cancelCtx()

	var attempts int32
	_, err := Execute(ctx, executor, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&attempts, 1)
		return "ok", nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 0 {
		t.Errorf("Expected no calls after cancellation, got %d", attempts)
	}
}

func TestRetryExecutor_Execute_CanceledDuringBackoff(t *testing.T) {
	policy := NewFixedPolicy(3, 200*time.Millisecond, WithJitter(NoJitter))
	executor := NewExecutor(policy)

	ctx, cancelCtx := context.WithCancel(context.Background())

	var attempts int32
	start := time.Now()
	_, err := Execute(ctx, executor, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&attempts, 1)
		cancelCtx()
		return "", types.MarkTransient(errors.New("flaky"))
	})
	elapsed := time.Since(start)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("Expected backoff wait to be abandoned after 1 attempt, got %d", attempts)
	}
	if elapsed >= 200*time.Millisecond {
		t.Errorf("Expected cancellation to cut the backoff wait short, took %v", elapsed)
	}
}

func TestRetryExecutor_Execute_TokenAbortSurfacesCancellationError(t *testing.T) {
	policy := NewFixedPolicy(3, 200*time.Millisecond, WithJitter(NoJitter))
	executor := NewExecutor(policy)

	token, abort := cancel.New()
	ctx, release := token.Bind(context.Background())
	defer release()

	var attempts int32
	_, err := Execute(ctx, executor, func(ctx context.Context) (string, error) {
		atomic.AddInt32(&attempts, 1)
		abort()
		return "", types.MarkTransient(errors.New("flaky"))
	})

	var cerr *types.CancellationError
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected CancellationError, got %T: %v", err, err)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("Expected abort to stop retries after 1 attempt, got %d", attempts)
	}
}

func TestRetryExecutor_ExecuteAsync(t *testing.T) {
	policy := NewFixedPolicy(3, 5*time.Millisecond, WithJitter(NoJitter))
	executor := NewExecutor(policy)

	var attempts int32
	fut := ExecuteAsync(context.Background(), executor, func(ctx context.Context) (int, error) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			return 0, types.MarkTransient(errors.New("flaky"))
		}
		return 41, nil
	})

	res, err := fut.WaitResult(context.Background())
	if err != nil {
		t.Fatalf("Expected settled future, got %v", err)
	}
	if res.Error != nil {
		t.Fatalf("Expected success, got %v", res.Error)
	}
	if res.Value != 41 {
		t.Errorf("Expected 41, got %d", res.Value)
	}
	if res.Duration <= 0 {
		t.Errorf("Expected a positive duration, got %v", res.Duration)
	}
}

type recordingHandler struct {
	attempts  int32
	successes int32
	failures  int32
	exhausted int32
}

func (h *recordingHandler) OnAttempt(ctx context.Context, attempt int) {
	atomic.AddInt32(&h.attempts, 1)
}

func (h *recordingHandler) OnSuccess(ctx context.Context, attempt int, duration time.Duration) {
	atomic.AddInt32(&h.successes, 1)
}

func (h *recordingHandler) OnFailure(ctx context.Context, attempt int, err error) {
	atomic.AddInt32(&h.failures, 1)
}

func (h *recordingHandler) OnExhausted(ctx context.Context, attempts int, err error) {
	atomic.AddInt32(&h.exhausted, 1)
}

func TestRetryExecutor_WithEventHandler(t *testing.T) {
	handler := &recordingHandler{}
	policy := NewFixedPolicy(2, time.Millisecond, WithJitter(NoJitter))
	executor := NewExecutor(policy, WithEventHandler(handler))

	var calls int32
	_, err := Execute(context.Background(), executor, func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) < 2 {
			return "", types.MarkTransient(errors.New("flaky"))
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}

	if got := atomic.LoadInt32(&handler.attempts); got != 1 {
		t.Errorf("Expected 1 OnAttempt event, got %d", got)
	}
	if got := atomic.LoadInt32(&handler.successes); got != 1 {
		t.Errorf("Expected 1 OnSuccess event, got %d", got)
	}

	_, err = Execute(context.Background(), executor, func(ctx context.Context) (string, error) {
		return "", types.MarkTransient(errors.New("always down"))
	})
	if err == nil {
		t.Fatal("Expected exhaustion error")
	}

	if got := atomic.LoadInt32(&handler.exhausted); got != 1 {
		t.Errorf("Expected 1 OnExhausted event, got %d", got)
	}
}

func TestRetryExecutor_Wrap(t *testing.T) {
	var attempts int32
	fn := func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&attempts, 1)%2 == 1 {
			return "", types.MarkTransient(errors.New("odd call fails"))
		}
		return "even", nil
	}

	wrapped := Wrap(fn, NewFixedPolicy(3, time.Millisecond, WithJitter(NoJitter)))

	for i := 0; i < 2; i++ {
		result, err := wrapped(context.Background())
		if err != nil {
			t.Fatalf("Invocation %d: expected success, got %v", i, err)
		}
		if result != "even" {
			t.Errorf("Invocation %d: expected 'even', got %q", i, result)
		}
	}

	if got := atomic.LoadInt32(&attempts); got != 4 {
		t.Errorf("Expected 4 underlying calls across invocations, got %d", got)
	}
}

func TestRetryExecutor_ResetStats(t *testing.T) {
	policy := NewFixedPolicy(2, time.Millisecond, WithJitter(NoJitter))
	executor := NewExecutor(policy)

	_, _ = Execute(context.Background(), executor, func(ctx context.Context) (string, error) {
		return "ok", nil
	})

	if executor.GetStats().TotalAttempts == 0 {
		t.Fatal("Expected stats to accumulate")
	}

	executor.ResetStats()

	stats := executor.GetStats()
	if stats.TotalAttempts != 0 || stats.TotalSuccesses != 0 || stats.TotalRetryDelay != 0 {
		t.Errorf("Expected zeroed stats after reset, got %+v", &stats)
	}
}

func BenchmarkRetryExecutor_NoRetry(b *testing.B) {
	policy := NewFixedPolicy(3, time.Millisecond, WithJitter(NoJitter))
	executor := NewExecutor(policy)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Execute(ctx, executor, func(ctx context.Context) (int, error) {
			return i, nil
		})
	}
}

func BenchmarkRetryExecutor_Wrap(b *testing.B) {
	wrapped := Wrap(func(ctx context.Context) (int, error) {
		return 1, nil
	}, NewFixedPolicy(3, time.Millisecond, WithJitter(NoJitter)))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = wrapped(ctx)
	}
}
