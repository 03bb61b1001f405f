// Package rategate collapses bursts of calls into fewer executions of
// an underlying function.
//
// A Debouncer waits for a quiet period after the last call before
// invoking once on behalf of the whole burst. A Throttler admits at
// most one invocation per interval, with configurable leading and
// trailing edges. Both hand callers a *types.Future for the shared
// outcome, so a burst of callers observes a single execution.
package rategate

import (
	"context"
	"time"

	"github.com/idev0085/taskflow/pkg/cancel"
	"github.com/idev0085/taskflow/pkg/types"
)

// Option configures a Debouncer or a Throttler. Options that do not
// apply to the constructed type are ignored.
type Option func(*config)

type config struct {
	maxWait   time.Duration
	supersede bool
	leading   bool
	trailing  bool
	clock     types.Clock
}

func defaultConfig() config {
	return config{
		leading:  true,
		trailing: true,
		clock:    types.NewRealClock(),
	}
}

// WithMaxWait bounds how long a Debouncer may keep postponing. Once d
// has elapsed since the first pending call the invocation fires even
// if calls keep arriving. Zero disables the bound.
func WithMaxWait(d time.Duration) Option {
	return func(c *config) {
		c.maxWait = d
	}
}

// WithSupersede controls what a new Debouncer call does to waiters
// already pending. By default the whole burst shares one future and
// one result; with supersede enabled each call rejects the previous
// pending future with a CancellationError, so only the newest caller
// observes the invocation.
func WithSupersede(supersede bool) Option {
	return func(c *config) {
		c.supersede = supersede
	}
}

// WithLeading controls whether a Throttler runs the first call of an
// interval immediately. Defaults to true.
func WithLeading(leading bool) Option {
	return func(c *config) {
		c.leading = leading
	}
}

// WithTrailing controls whether Throttler calls arriving mid-interval
// coalesce into one invocation at the interval boundary. Defaults to
// true.
func WithTrailing(trailing bool) Option {
	return func(c *config) {
		c.trailing = trailing
	}
}

// WithClock sets the clock used for delay and interval timing
func WithClock(clock types.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// invoke runs fn on behalf of fut unless ctx was canceled while the
// invocation waited its turn.
func invoke[R any](clock types.Clock, fn types.Func[R], ctx context.Context, fut *types.Future[R]) {
	if err := cancel.CauseOf(ctx); err != nil {
		fut.Reject(err)
		return
	}
	start := clock.Now()
	value, err := fn(ctx)
	fut.Complete(types.Result[R]{Value: value, Error: err, Duration: clock.Since(start)})
}
