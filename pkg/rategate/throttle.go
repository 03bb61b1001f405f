package rategate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/idev0085/taskflow/pkg/cancel"
	"github.com/idev0085/taskflow/pkg/types"
)

// Throttler admits at most one invocation of fn per interval. With the
// leading edge enabled (the default) the first call of an interval
// runs immediately; calls arriving before the interval elapses either
// coalesce into one trailing invocation at the boundary (trailing
// edge, also default) or share the interval's existing result.
type Throttler[R any] struct {
	fn       types.Func[R]
	interval time.Duration
	cfg      config

	mu          sync.Mutex
	windowStart time.Time
	lastFut     *types.Future[R]
	trailingFut *types.Future[R]
	trailingCtx context.Context
	timer       types.Timer
	closed      bool
}

// NewThrottler creates a throttler around fn with the given minimum
// interval between invocations.
func NewThrottler[R any](fn types.Func[R], interval time.Duration, opts ...Option) (*Throttler[R], error) {
	if fn == nil {
		return nil, fmt.Errorf("throttle function must not be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("throttle interval must be positive, got %v", interval)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.leading && !cfg.trailing {
		return nil, fmt.Errorf("leading and trailing edges cannot both be disabled")
	}

	return &Throttler[R]{fn: fn, interval: interval, cfg: cfg}, nil
}

// Call places a call with the throttler and returns the future that
// will carry its result. Depending on where the call lands in the
// interval, the future may belong to an immediate invocation, to the
// interval's trailing invocation, or to an execution that already
// happened.
func (t *Throttler[R]) Call(ctx context.Context) *types.Future[R] {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cancel.CauseOf(ctx); err != nil {
		return types.RejectedFuture[R](err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return types.RejectedFuture[R](&types.CancellationError{Reason: "throttler closed"})
	}

	now := t.cfg.clock.Now()

	// A trailing invocation whose boundary has passed but whose timer
	// has not fired yet runs now; its execution opens the interval
	// this call lands in.
	if t.trailingFut != nil && now.Sub(t.windowStart) >= t.interval {
		fut, tctx := t.trailingFut, t.trailingCtx
		t.trailingFut, t.trailingCtx = nil, nil
		t.windowStart = now
		t.lastFut = fut
		go invoke(t.cfg.clock, t.fn, tctx, fut)
	}

	if t.windowStart.IsZero() || now.Sub(t.windowStart) >= t.interval {
		t.windowStart = now
		fut := types.NewFuture[R]()
		if t.cfg.leading {
			t.lastFut = fut
			t.mu.Unlock()
			go invoke(t.cfg.clock, t.fn, ctx, fut)
			return fut
		}
		t.trailingFut, t.trailingCtx = fut, ctx
		t.armLocked(t.interval)
		t.mu.Unlock()
		return fut
	}

	if t.cfg.trailing {
		if t.trailingFut == nil {
			t.trailingFut = types.NewFuture[R]()
			t.armLocked(t.windowStart.Add(t.interval).Sub(now))
		}
		t.trailingCtx = ctx
		fut := t.trailingFut
		t.mu.Unlock()
		return fut
	}

	// Trailing disabled: share the invocation that opened the interval.
	fut := t.lastFut
	t.mu.Unlock()
	return fut
}

// Close stops the throttler. A pending trailing invocation is
// abandoned and its waiters are rejected with a CancellationError, as
// are all subsequent calls.
func (t *Throttler[R]) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	fut := t.trailingFut
	t.trailingFut, t.trailingCtx = nil, nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	if fut != nil {
		fut.Reject(&types.CancellationError{Reason: "throttler closed"})
	}
}

// Func adapts the throttler to the standard function shape: calling
// the returned function throttles and then waits for the shared
// result.
func (t *Throttler[R]) Func() types.Func[R] {
	return func(ctx context.Context) (R, error) {
		return t.Call(ctx).Wait(ctx)
	}
}

// armLocked schedules the trailing fire. Caller must hold t.mu.
func (t *Throttler[R]) armLocked(wait time.Duration) {
	if wait < 0 {
		wait = 0
	}
	if t.timer == nil {
		t.timer = t.cfg.clock.AfterFunc(wait, t.onTimer)
	} else {
		t.timer.Reset(wait)
	}
}

// onTimer fires the trailing invocation at the interval boundary. The
// execution opens a fresh interval so an immediately following call is
// throttled rather than run on the leading edge.
func (t *Throttler[R]) onTimer() {
	t.mu.Lock()
	if t.closed || t.trailingFut == nil {
		t.timer = nil
		t.mu.Unlock()
		return
	}

	now := t.cfg.clock.Now()
	boundary := t.windowStart.Add(t.interval)
	if now.Before(boundary) {
		if t.timer != nil {
			t.timer.Reset(boundary.Sub(now))
		}
		t.mu.Unlock()
		return
	}

	fut, ctx := t.trailingFut, t.trailingCtx
	t.trailingFut, t.trailingCtx = nil, nil
	t.timer = nil
	t.windowStart = now
	t.lastFut = fut
	t.mu.Unlock()

	invoke(t.cfg.clock, t.fn, ctx, fut)
}
