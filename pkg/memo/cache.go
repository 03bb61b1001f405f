// Package memo provides single-flight memoization with TTL expiry.
//
// A Cache wraps a keyed function so that concurrent callers for the
// same key share one in-flight call and later callers are served from
// the cached result until it expires. Waiters that cancel detach from
// the flight without canceling the underlying call, so the result
// still lands in the cache for everyone else.
package memo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/idev0085/taskflow/pkg/cancel"
	"github.com/idev0085/taskflow/pkg/types"
)

// Option configures a Cache
type Option func(*config)

type config struct {
	cacheErrors bool
	janitor     time.Duration
	clock       types.Clock
	keyFn       any
}

func defaultConfig() config {
	return config{clock: types.NewRealClock()}
}

// WithCacheErrors controls negative caching. By default a failed call
// is not stored and the next caller re-invokes; with caching enabled
// the error is served like a value until the entry expires.
func WithCacheErrors(cache bool) Option {
	return func(c *config) {
		c.cacheErrors = cache
	}
}

// WithJanitor starts a background sweep that evicts expired entries
// every interval. Without it, expired entries are only evicted lazily
// when read. Stop the sweep with Cache.Close.
func WithJanitor(interval time.Duration) Option {
	return func(c *config) {
		c.janitor = interval
	}
}

// WithClock sets the clock used for TTL expiry
func WithClock(clock types.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithKeyFunc sets how keys map to cache strings. The function must
// accept the cache's key type; NewCache rejects a mismatch. The
// default is fmt.Sprint.
func WithKeyFunc[K comparable](fn func(K) string) Option {
	return func(c *config) {
		c.keyFn = fn
	}
}

// entry is one cached outcome
type entry[V any] struct {
	value     V
	err       error
	createdAt time.Time
}

// Cache memoizes a keyed function with single-flight de-duplication
// and TTL expiry.
type Cache[K comparable, V any] struct {
	fn          func(ctx context.Context, key K) (V, error)
	ttl         time.Duration
	cacheErrors bool
	keyFn       func(K) string
	clock       types.Clock

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]*entry[V]

	janitor     types.Ticker
	janitorStop chan struct{}
	closeOnce   sync.Once
}

// NewCache creates a cache around fn. Entries are valid for ttl by the
// configured clock; ttl <= 0 caches forever.
func NewCache[K comparable, V any](fn func(ctx context.Context, key K) (V, error), ttl time.Duration, opts ...Option) (*Cache[K, V], error) {
	if fn == nil {
		return nil, fmt.Errorf("memoized function must not be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	keyFn := func(key K) string { return fmt.Sprint(key) }
	if cfg.keyFn != nil {
		typed, ok := cfg.keyFn.(func(K) string)
		if !ok {
			return nil, fmt.Errorf("key function must have type func(%T) string", *new(K))
		}
		keyFn = typed
	}

	c := &Cache[K, V]{
		fn:          fn,
		ttl:         ttl,
		cacheErrors: cfg.cacheErrors,
		keyFn:       keyFn,
		clock:       cfg.clock,
		entries:     make(map[string]*entry[V]),
	}
	if cfg.janitor > 0 {
		c.startJanitor(cfg.janitor)
	}
	return c, nil
}

// Memoize wraps fn so repeated calls for the same key within ttl share
// one execution and one result.
func Memoize[K comparable, V any](fn func(ctx context.Context, key K) (V, error), ttl time.Duration, opts ...Option) (func(ctx context.Context, key K) (V, error), error) {
	c, err := NewCache(fn, ttl, opts...)
	if err != nil {
		return nil, err
	}
	return c.Do, nil
}

// Do returns the cached value for key, joining an in-flight call or
// invoking fn on a miss. Cancelling ctx abandons the wait only; the
// underlying call finishes and populates the cache.
func (c *Cache[K, V]) Do(ctx context.Context, key K) (V, error) {
	var zero V
	if err := cancel.CauseOf(ctx); err != nil {
		return zero, err
	}

	k := c.keyFn(key)

	if value, err, ok := c.lookup(k); ok {
		return value, err
	}

	ch := c.group.DoChan(k, func() (interface{}, error) {
		// Another flight may have filled the entry between this
		// caller's miss and winning the flight.
		if value, err, ok := c.lookup(k); ok {
			if err != nil {
				return nil, err
			}
			return value, nil
		}

		// Detach from the triggering caller so its cancellation
		// cannot kill a call other waiters depend on.
		value, err := c.fn(context.WithoutCancel(ctx), key)
		if err != nil {
			if c.cacheErrors {
				c.store(k, value, err)
			}
			return nil, err
		}
		c.store(k, value, nil)
		return value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, cancel.CauseOf(ctx)
	}
}

// Func binds the cache to one key in the standard function shape, so
// a cached lookup can slot into a wrapper chain.
func (c *Cache[K, V]) Func(key K) types.Func[V] {
	return func(ctx context.Context) (V, error) {
		return c.Do(ctx, key)
	}
}

// Forget drops the entry for key and detaches future callers from any
// in-flight call, forcing a fresh invocation.
func (c *Cache[K, V]) Forget(key K) {
	k := c.keyFn(key)
	c.mu.Lock()
	delete(c.entries, k)
	c.mu.Unlock()
	c.group.Forget(k)
}

// Purge drops every cached entry. Calls already in flight still
// complete and may repopulate the cache.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.entries = make(map[string]*entry[V])
	c.mu.Unlock()

	for _, k := range keys {
		c.group.Forget(k)
	}
}

// Len reports the number of stored entries. It may count expired
// entries that have not been evicted yet.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the janitor sweep, if one was started
func (c *Cache[K, V]) Close() {
	c.closeOnce.Do(func() {
		if c.janitor != nil {
			c.janitor.Stop()
			close(c.janitorStop)
		}
	})
}

// lookup returns the fresh entry for k, evicting it when expired.
func (c *Cache[K, V]) lookup(k string) (V, error, bool) {
	var zero V
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()
	if !ok {
		return zero, nil, false
	}

	if c.expired(e) {
		c.mu.Lock()
		if cur, ok := c.entries[k]; ok && cur == e {
			delete(c.entries, k)
		}
		c.mu.Unlock()
		return zero, nil, false
	}
	return e.value, e.err, true
}

func (c *Cache[K, V]) store(k string, value V, err error) {
	c.mu.Lock()
	c.entries[k] = &entry[V]{value: value, err: err, createdAt: c.clock.Now()}
	c.mu.Unlock()
}

func (c *Cache[K, V]) expired(e *entry[V]) bool {
	return c.ttl > 0 && c.clock.Since(e.createdAt) >= c.ttl
}

func (c *Cache[K, V]) startJanitor(interval time.Duration) {
	c.janitor = c.clock.NewTicker(interval)
	c.janitorStop = make(chan struct{})
	go func() {
		for {
			select {
			case <-c.janitor.C():
				c.sweep()
			case <-c.janitorStop:
				return
			}
		}
	}()
}

func (c *Cache[K, V]) sweep() {
	c.mu.Lock()
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}
