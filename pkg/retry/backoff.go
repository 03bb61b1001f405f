// Package retry jitter functions and the decorrelated jitter policy
package retry

import (
	"math/rand"
	"sync"
	"time"
)

// JitterFunc computes the random extra delay derived from d. The
// result is added on top of a policy's computed backoff.
type JitterFunc func(d time.Duration) time.Duration

// NoJitter adds no randomness, for deterministic delays
func NoJitter(d time.Duration) time.Duration {
	return 0
}

// FullJitter adds a uniform random duration in [0, d)
func FullJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d)))
}

// EqualJitter adds d/2 plus a uniform random duration in [0, d/2)
func EqualJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	if half <= 0 {
		return 0
	}
	return half + time.Duration(rand.Int63n(int64(half)))
}

// DecorrelatedJitterPolicy spreads retries with the AWS decorrelated
// jitter algorithm: each delay is drawn from [baseDelay, prev*3],
// capped at the configured maximum. The policy carries state between
// attempts, so Reset is meaningful and concurrent executions share
// one random walk.
type DecorrelatedJitterPolicy struct {
	basePolicy
	baseDelay time.Duration

	mu   sync.Mutex
	prev time.Duration
}

// NewDecorrelatedJitterPolicy creates a decorrelated jitter retry
// policy. Cap the spread with WithMaxDelay.
func NewDecorrelatedJitterPolicy(maxAttempts int, baseDelay time.Duration, opts ...PolicyOption) *DecorrelatedJitterPolicy {
	if baseDelay < 0 {
		baseDelay = 0
	}
	return &DecorrelatedJitterPolicy{
		basePolicy: newBasePolicy(maxAttempts, opts),
		baseDelay:  baseDelay,
		prev:       baseDelay,
	}
}

// NextDelay returns the delay before the next attempt
func (p *DecorrelatedJitterPolicy) NextDelay(attempt int) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	upper := p.prev * 3
	if upper > p.cfg.maxDelay {
		upper = p.cfg.maxDelay
	}
	if upper <= p.baseDelay {
		p.prev = p.baseDelay
		return p.baseDelay
	}

	delay := p.baseDelay + time.Duration(rand.Int63n(int64(upper-p.baseDelay)))
	p.prev = delay
	return delay
}

// Reset restarts the random walk from the base delay
func (p *DecorrelatedJitterPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prev = p.baseDelay
}
