// Package breaker provides named circuit breakers that shed load from
// failing downstream operations.
//
// A breaker starts closed and counts consecutive failures. Once the
// failure threshold is reached it opens and rejects calls immediately
// with *types.CircuitOpenError. After the reset timeout a single probe
// call is admitted (half-open); its outcome decides whether the breaker
// closes again or re-opens for another timeout period.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/idev0085/taskflow/pkg/cancel"
	"github.com/idev0085/taskflow/pkg/types"
)

// State represents the admission state of a breaker.
type State int32

const (
	// StateClosed admits all calls and counts failures
	StateClosed State = iota

	// StateOpen rejects all calls until the reset timeout elapses
	StateOpen

	// StateHalfOpen admits exactly one probe call
	StateHalfOpen
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	// DefaultFailureThreshold is the number of consecutive failures
	// that trips a breaker
	DefaultFailureThreshold = 5

	// DefaultResetTimeout is how long a tripped breaker stays open
	// before admitting a probe
	DefaultResetTimeout = 30 * time.Second
)

// Counts is a point-in-time snapshot of breaker activity.
type Counts struct {
	// ConsecutiveFailures is the current closed-state failure streak
	ConsecutiveFailures int

	// Successes counts calls that completed without error
	Successes int64

	// Failures counts calls that completed with a counted error
	Failures int64

	// Rejections counts calls refused without invoking the function
	Rejections int64
}

// Option configures a Breaker
type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures trip the
// breaker. Values below 1 are clamped to 1.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		b.failureThreshold = n
	}
}

// WithResetTimeout sets how long the breaker stays open after tripping
func WithResetTimeout(d time.Duration) Option {
	return func(b *Breaker) {
		b.resetTimeout = d
	}
}

// WithFailureWindow bounds the age of the failure streak. A streak
// whose first failure is older than the window is discarded before
// counting the next one. Zero (the default) never expires the streak.
func WithFailureWindow(d time.Duration) Option {
	return func(b *Breaker) {
		b.window = d
	}
}

// WithClock sets the clock used for reset and window timing
func WithClock(clock types.Clock) Option {
	return func(b *Breaker) {
		b.clock = clock
	}
}

// WithLogger sets the logger used for state transitions
func WithLogger(logger types.Logger) Option {
	return func(b *Breaker) {
		b.logger = logger
	}
}

// WithOnStateChange registers a hook invoked after every state
// transition. The hook runs outside the breaker's lock, so it may call
// back into the breaker.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) {
		b.onStateChange = fn
	}
}

// Breaker is a circuit breaker guarding one named operation.
// The zero value is not usable; construct with New.
type Breaker struct {
	name             string
	failureThreshold int
	resetTimeout     time.Duration
	window           time.Duration
	clock            types.Clock
	logger           types.Logger
	onStateChange    func(name string, from, to State)

	mu          sync.Mutex
	state       State
	failures    int
	streakStart time.Time
	nextProbeAt time.Time
	probing     bool
	successes   int64
	failTotal   int64
	rejections  int64
}

// New creates a breaker for the named operation
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: DefaultFailureThreshold,
		resetTimeout:     DefaultResetTimeout,
		clock:            types.NewRealClock(),
		logger:           types.NopLogger{},
		state:            StateClosed,
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.failureThreshold < 1 {
		b.failureThreshold = 1
	}
	if b.resetTimeout <= 0 {
		b.resetTimeout = DefaultResetTimeout
	}

	return b
}

// Name returns the operation name the breaker guards
func (b *Breaker) Name() string {
	return b.name
}

// State returns the breaker's current state. An open breaker reports
// StateOpen until a call actually arrives after the reset timeout;
// the half-open transition happens on admission, not on a timer.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counts returns a snapshot of breaker activity
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts{
		ConsecutiveFailures: b.failures,
		Successes:           b.successes,
		Failures:            b.failTotal,
		Rejections:          b.rejections,
	}
}

// Reset forces the breaker back to closed and clears the failure
// streak. Totals are preserved.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.failures = 0
	b.streakStart = time.Time{}
	b.probing = false
	notify := b.setState(StateClosed)
	b.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Do runs fn under the breaker and returns its error. The function is
// not invoked when the breaker rejects the call or ctx is already done.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := Execute(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Execute runs fn under breaker b, preserving its typed result.
func Execute[R any](ctx context.Context, b *Breaker, fn types.Func[R]) (R, error) {
	var zero R

	if err := cancel.CauseOf(ctx); err != nil {
		return zero, err
	}

	probe, err := b.allow()
	if err != nil {
		return zero, err
	}

	value, err := fn(ctx)
	b.record(err, probe)
	if err != nil {
		return zero, err
	}
	return value, nil
}

// Wrap decorates fn so every invocation passes through breaker b.
func Wrap[R any](fn types.Func[R], b *Breaker) types.Func[R] {
	return func(ctx context.Context) (R, error) {
		return Execute(ctx, b, fn)
	}
}

// allow decides whether a call may proceed. It returns probe=true when
// the call is the half-open trial, or a *types.CircuitOpenError when
// the call is rejected.
func (b *Breaker) allow() (probe bool, err error) {
	b.mu.Lock()

	now := b.clock.Now()
	var notify func()

	switch b.state {
	case StateClosed:
		// fall through and admit

	case StateOpen:
		if now.Before(b.nextProbeAt) {
			b.rejections++
			until := b.nextProbeAt
			b.mu.Unlock()
			return false, &types.CircuitOpenError{Name: b.name, Until: until}
		}
		notify = b.setState(StateHalfOpen)
		b.probing = true
		probe = true

	case StateHalfOpen:
		if b.probing {
			b.rejections++
			b.mu.Unlock()
			return false, &types.CircuitOpenError{Name: b.name}
		}
		b.probing = true
		probe = true
	}

	b.mu.Unlock()
	if notify != nil {
		notify()
	}
	return probe, nil
}

// record applies a call outcome to the breaker state machine.
func (b *Breaker) record(err error, probe bool) {
	b.mu.Lock()

	now := b.clock.Now()
	var notify func()

	if probe {
		b.probing = false
	}

	switch {
	case err == nil:
		b.successes++
		b.failures = 0
		b.streakStart = time.Time{}
		if b.state == StateHalfOpen {
			notify = b.setState(StateClosed)
		}

	case !countsAsFailure(err):
		// Cancellation says nothing about downstream health. An
		// abandoned probe re-opens without extending the timeout so
		// the next call can probe immediately.
		if probe && b.state == StateHalfOpen {
			notify = b.setState(StateOpen)
		}

	default:
		b.failTotal++
		switch b.state {
		case StateHalfOpen:
			notify = b.trip(now)

		case StateClosed:
			if b.window > 0 && !b.streakStart.IsZero() && now.Sub(b.streakStart) > b.window {
				b.failures = 0
				b.streakStart = time.Time{}
			}
			if b.failures == 0 {
				b.streakStart = now
			}
			b.failures++
			if b.failures >= b.failureThreshold {
				notify = b.trip(now)
			}

		case StateOpen:
			// late result from a call admitted before the trip
		}
	}

	b.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// trip opens the breaker and schedules the next probe.
// Caller must hold b.mu.
func (b *Breaker) trip(now time.Time) func() {
	b.nextProbeAt = now.Add(b.resetTimeout)
	b.failures = 0
	b.streakStart = time.Time{}
	return b.setState(StateOpen)
}

// setState updates the state and returns a notification closure to run
// after the lock is released, or nil when the state is unchanged.
// Caller must hold b.mu.
func (b *Breaker) setState(to State) func() {
	from := b.state
	if from == to {
		return nil
	}
	b.state = to

	name, logger, hook := b.name, b.logger, b.onStateChange
	return func() {
		switch to {
		case StateOpen:
			logger.Warnf("breaker %q opened (from %s)", name, from)
		case StateHalfOpen:
			logger.Infof("breaker %q half-open, admitting probe", name)
		case StateClosed:
			logger.Infof("breaker %q closed (from %s)", name, from)
		}
		if hook != nil {
			hook(name, from, to)
		}
	}
}

// countsAsFailure reports whether err should advance the failure
// streak. Cancellations and bare context deadline errors reflect the
// caller, not the downstream, and are ignored. A *types.TimeoutError
// is a per-call timeout and does count.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	if types.IsCancellation(err) {
		return false
	}
	var timeout *types.TimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
