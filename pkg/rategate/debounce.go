package rategate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/idev0085/taskflow/pkg/cancel"
	"github.com/idev0085/taskflow/pkg/types"
)

// Debouncer delays invocation until calls stop arriving for a quiet
// period. The invocation runs once with the context of the last call,
// and every caller of the burst settles from that single result.
type Debouncer[R any] struct {
	fn    types.Func[R]
	delay time.Duration
	cfg   config

	mu       sync.Mutex
	timer    types.Timer
	deadline time.Time
	firstAt  time.Time
	pending  *types.Future[R]
	lastCtx  context.Context
}

// NewDebouncer creates a debouncer around fn with the given quiet
// period. A configured max wait shorter than the quiet period is
// raised to it.
func NewDebouncer[R any](fn types.Func[R], delay time.Duration, opts ...Option) (*Debouncer[R], error) {
	if fn == nil {
		return nil, fmt.Errorf("debounce function must not be nil")
	}
	if delay <= 0 {
		return nil, fmt.Errorf("debounce delay must be positive, got %v", delay)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxWait > 0 && cfg.maxWait < delay {
		cfg.maxWait = delay
	}

	return &Debouncer[R]{fn: fn, delay: delay, cfg: cfg}, nil
}

// Call schedules an invocation for after the quiet period and returns
// the future it will settle. Calling again before the period elapses
// restarts the wait. A ctx that is already canceled yields a rejected
// future and leaves any pending burst untouched.
func (d *Debouncer[R]) Call(ctx context.Context) *types.Future[R] {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cancel.CauseOf(ctx); err != nil {
		return types.RejectedFuture[R](err)
	}

	d.mu.Lock()
	now := d.cfg.clock.Now()

	var superseded *types.Future[R]
	switch {
	case d.pending == nil:
		d.pending = types.NewFuture[R]()
		d.firstAt = now
	case d.cfg.supersede:
		superseded = d.pending
		d.pending = types.NewFuture[R]()
	}
	fut := d.pending
	d.lastCtx = ctx

	deadline := now.Add(d.delay)
	if d.cfg.maxWait > 0 {
		if limit := d.firstAt.Add(d.cfg.maxWait); deadline.After(limit) {
			deadline = limit
		}
	}
	d.deadline = deadline

	wait := deadline.Sub(now)
	if wait < 0 {
		wait = 0
	}
	if d.timer == nil {
		d.timer = d.cfg.clock.AfterFunc(wait, d.onTimer)
	} else {
		d.timer.Reset(wait)
	}
	d.mu.Unlock()

	if superseded != nil {
		superseded.Reject(&types.CancellationError{Reason: "superseded"})
	}
	return fut
}

// Flush fires the pending invocation immediately instead of waiting
// out the quiet period. It returns the pending future, or nil when
// nothing is pending.
func (d *Debouncer[R]) Flush() *types.Future[R] {
	d.mu.Lock()
	fut, ctx := d.takeLocked()
	d.mu.Unlock()

	if fut == nil {
		return nil
	}
	go invoke(d.cfg.clock, d.fn, ctx, fut)
	return fut
}

// Cancel drops the pending invocation and rejects its waiters with a
// CancellationError.
func (d *Debouncer[R]) Cancel() {
	d.mu.Lock()
	fut, _ := d.takeLocked()
	d.mu.Unlock()

	if fut != nil {
		fut.Reject(&types.CancellationError{Reason: "debounce canceled"})
	}
}

// Func adapts the debouncer to the standard function shape: calling
// the returned function debounces and then waits for the shared
// result.
func (d *Debouncer[R]) Func() types.Func[R] {
	return func(ctx context.Context) (R, error) {
		return d.Call(ctx).Wait(ctx)
	}
}

// takeLocked detaches the pending burst and stops the timer.
// Caller must hold d.mu.
func (d *Debouncer[R]) takeLocked() (*types.Future[R], context.Context) {
	fut, ctx := d.pending, d.lastCtx
	d.pending, d.lastCtx = nil, nil
	d.firstAt = time.Time{}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return fut, ctx
}

// onTimer runs when the quiet-period timer fires. The deadline is
// absolute, so a fire that lands before a freshly extended deadline
// re-arms itself for the remainder instead of invoking early.
func (d *Debouncer[R]) onTimer() {
	d.mu.Lock()
	if d.pending == nil {
		d.timer = nil
		d.mu.Unlock()
		return
	}

	now := d.cfg.clock.Now()
	if now.Before(d.deadline) {
		if d.timer != nil {
			d.timer.Reset(d.deadline.Sub(now))
		}
		d.mu.Unlock()
		return
	}

	fut, ctx := d.pending, d.lastCtx
	d.pending, d.lastCtx = nil, nil
	d.firstAt = time.Time{}
	d.timer = nil
	d.mu.Unlock()

	invoke(d.cfg.clock, d.fn, ctx, fut)
}
