// Package retry provides retry policies and the executor that drives them
package retry

import (
	"math"
	"time"

	"github.com/idev0085/taskflow/pkg/types"
)

// Policy defines the retry strategy interface
type Policy interface {
	// ShouldRetry determines whether to retry after a failed attempt.
	// attempt counts calls already made, starting at 1.
	ShouldRetry(err error, attempt int) bool

	// NextDelay returns the delay before the next attempt. attempt is
	// the number of the attempt that just failed.
	NextDelay(attempt int) time.Duration

	// MaxAttempts returns the maximum number of calls
	MaxAttempts() int

	// Reset resets policy state between independent executions
	Reset()
}

// Condition decides whether an error is worth another attempt
type Condition func(error) bool

// PolicyOption configures a retry policy
type PolicyOption func(*policyConfig)

type policyConfig struct {
	condition Condition
	maxDelay  time.Duration
	jitter    JitterFunc
}

func newPolicyConfig(opts []PolicyOption) policyConfig {
	cfg := policyConfig{
		condition: types.IsRetryable,
		maxDelay:  30 * time.Second,
		jitter:    FullJitter,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithCondition replaces the default retryability classification
func WithCondition(condition Condition) PolicyOption {
	return func(cfg *policyConfig) {
		if condition != nil {
			cfg.condition = condition
		}
	}
}

// WithMaxDelay caps the delay between attempts
func WithMaxDelay(maxDelay time.Duration) PolicyOption {
	return func(cfg *policyConfig) {
		if maxDelay > 0 {
			cfg.maxDelay = maxDelay
		}
	}
}

// WithJitter sets the jitter applied on top of the computed delay.
// Use NoJitter for deterministic delays.
func WithJitter(jitter JitterFunc) PolicyOption {
	return func(cfg *policyConfig) {
		if jitter != nil {
			cfg.jitter = jitter
		}
	}
}

// basePolicy provides the attempt accounting shared by all policies
type basePolicy struct {
	maxAttempts int
	cfg         policyConfig
}

func newBasePolicy(maxAttempts int, opts []PolicyOption) basePolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return basePolicy{
		maxAttempts: maxAttempts,
		cfg:         newPolicyConfig(opts),
	}
}

// ShouldRetry determines whether to retry
func (p *basePolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.maxAttempts {
		return false
	}
	return p.cfg.condition(err)
}

// MaxAttempts returns the maximum number of calls
func (p *basePolicy) MaxAttempts() int {
	return p.maxAttempts
}

// Reset resets policy state
func (p *basePolicy) Reset() {}

// cap bounds a computed delay to the configured maximum
func (p *basePolicy) cap(delay time.Duration) time.Duration {
	if delay > p.cfg.maxDelay {
		return p.cfg.maxDelay
	}
	if delay < 0 {
		return 0
	}
	return delay
}

// ExponentialPolicy doubles the delay after every failed attempt:
// the wait before attempt n+1 is baseDelay * 2^(n-1) plus jitter over
// baseDelay, capped at the configured maximum.
type ExponentialPolicy struct {
	basePolicy
	baseDelay time.Duration
}

// NewExponentialPolicy creates an exponential backoff retry policy
func NewExponentialPolicy(maxAttempts int, baseDelay time.Duration, opts ...PolicyOption) *ExponentialPolicy {
	if baseDelay < 0 {
		baseDelay = 0
	}
	return &ExponentialPolicy{
		basePolicy: newBasePolicy(maxAttempts, opts),
		baseDelay:  baseDelay,
	}
}

// NextDelay returns the delay before the next attempt
func (p *ExponentialPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(p.baseDelay) * math.Pow(2, float64(attempt-1)))
	delay += p.cfg.jitter(p.baseDelay)
	return p.cap(delay)
}

// FixedPolicy waits the same delay between every attempt
type FixedPolicy struct {
	basePolicy
	delay time.Duration
}

// NewFixedPolicy creates a fixed delay retry policy
func NewFixedPolicy(maxAttempts int, delay time.Duration, opts ...PolicyOption) *FixedPolicy {
	if delay < 0 {
		delay = 0
	}
	return &FixedPolicy{
		basePolicy: newBasePolicy(maxAttempts, opts),
		delay:      delay,
	}
}

// NextDelay returns the delay before the next attempt
func (p *FixedPolicy) NextDelay(attempt int) time.Duration {
	return p.cap(p.delay + p.cfg.jitter(p.delay))
}

// CustomPolicy delegates delay computation to a caller-supplied
// function
type CustomPolicy struct {
	basePolicy
	delayFunc DelayFunc
}

// DelayFunc computes the delay after the given failed attempt
type DelayFunc func(attempt int) time.Duration

// NewCustomPolicy creates a retry policy with caller-defined delays
func NewCustomPolicy(maxAttempts int, delayFunc DelayFunc, opts ...PolicyOption) *CustomPolicy {
	return &CustomPolicy{
		basePolicy: newBasePolicy(maxAttempts, opts),
		delayFunc:  delayFunc,
	}
}

// NextDelay returns the delay before the next attempt
func (p *CustomPolicy) NextDelay(attempt int) time.Duration {
	if p.delayFunc == nil {
		return 0
	}
	return p.cap(p.delayFunc(attempt))
}
