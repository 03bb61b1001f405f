package pool

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/idev0085/taskflow/pkg/types"
)

// Option configures a Pool
type Option func(*config)

type config struct {
	maxQueue int
	limit    rate.Limit
	burst    int
	clock    types.Clock
	logger   types.Logger
	onPanic  func(taskID string, recovered any)
}

func defaultConfig() config {
	return config{
		clock:  types.NewRealClock(),
		logger: types.NopLogger{},
	}
}

func (c *config) validate() error {
	if c.maxQueue < 0 {
		return fmt.Errorf("max queue length cannot be negative, got %d", c.maxQueue)
	}
	if c.limit != 0 {
		if c.limit < 0 {
			return fmt.Errorf("rate limit must be positive, got %v", c.limit)
		}
		if c.burst < 1 {
			return fmt.Errorf("rate limit burst must be at least 1, got %d", c.burst)
		}
	}
	return nil
}

// WithMaxQueue bounds the overflow queue. Submissions that find the
// queue full are rejected with CapacityExceededError. Zero (the
// default) leaves the queue unbounded.
func WithMaxQueue(n int) Option {
	return func(c *config) {
		c.maxQueue = n
	}
}

// WithRateLimit paces task starts through a token-bucket limiter.
// Every start, immediate or dequeued, first waits for a limiter token.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *config) {
		c.limit = limit
		c.burst = burst
	}
}

// WithClock sets the clock used for duration measurement and close
// timeouts
func WithClock(clock types.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithLogger sets the logger for panic reports and close timeouts
func WithLogger(logger types.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithPanicHandler registers a hook invoked when a task panics, after
// the panic has been recovered and before the future is rejected.
func WithPanicHandler(fn func(taskID string, recovered any)) Option {
	return func(c *config) {
		c.onPanic = fn
	}
}
