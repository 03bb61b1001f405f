package breaker

import (
	"sort"
	"sync"
)

// Registry holds breakers keyed by operation name so that every caller
// guarding the same operation shares one breaker for the life of the
// process.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults []Option
}

// NewRegistry creates an empty registry. The given options are applied
// to every breaker the registry creates, before per-call options.
func NewRegistry(defaults ...Option) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
	}
}

// Get returns the breaker for name, creating it on first use. Options
// only take effect at creation; later calls for the same name return
// the existing breaker unchanged.
func (r *Registry) Get(name string, opts ...Option) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}

	combined := make([]Option, 0, len(r.defaults)+len(opts))
	combined = append(combined, r.defaults...)
	combined = append(combined, opts...)
	b = New(name, combined...)
	r.breakers[name] = b
	return b
}

// Lookup returns the breaker for name without creating one
func (r *Registry) Lookup(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Remove deletes the breaker for name. Callers holding a reference can
// keep using it; new Get calls create a fresh breaker.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, name)
}

// Names returns the sorted names of all registered breakers
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset forces the named breaker back to closed. Unknown names are
// ignored.
func (r *Registry) Reset(name string) {
	if b, ok := r.Lookup(name); ok {
		b.Reset()
	}
}

// ResetAll forces every registered breaker back to closed
func (r *Registry) ResetAll() {
	r.mu.RLock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.RUnlock()

	for _, b := range breakers {
		b.Reset()
	}
}

// Global registry instance
var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// getDefaultRegistry returns the process-wide registry
func getDefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// resetDefaultRegistryForTesting clears the global registry.
// Only for use in tests.
func resetDefaultRegistryForTesting() {
	defaultRegistryOnce.Do(func() {})
	defaultRegistry = NewRegistry()
}

// Get returns the named breaker from the process-wide registry,
// creating it on first use
func Get(name string, opts ...Option) *Breaker {
	return getDefaultRegistry().Get(name, opts...)
}

// Lookup returns the named breaker from the process-wide registry
// without creating one
func Lookup(name string) (*Breaker, bool) {
	return getDefaultRegistry().Lookup(name)
}

// Remove deletes the named breaker from the process-wide registry
func Remove(name string) {
	getDefaultRegistry().Remove(name)
}

// Names returns the sorted names in the process-wide registry
func Names() []string {
	return getDefaultRegistry().Names()
}

// Reset forces the named breaker in the process-wide registry back to
// closed
func Reset(name string) {
	getDefaultRegistry().Reset(name)
}
