// Package cancel implements cooperative cancellation tokens. A token
// signals intent: it prevents pending work from starting and lets
// running work observe the abort, but never interrupts a function
// that does not check it. Tokens bridge to context.Context in both
// directions, see Bind and FromContext.
package cancel

import (
	"sync"

	"github.com/idev0085/taskflow/pkg/types"
)

// AbortFunc aborts the token returned alongside it. An optional
// reason is recorded in the token's CancellationError. Calling it
// more than once is harmless; only the first call has any effect.
type AbortFunc func(reason ...string)

type listener struct {
	id int
	fn func()
}

// Token carries an abort signal to any number of observers. The zero
// value is not usable; create tokens with New or FromContext. A nil
// *Token is valid everywhere and behaves as a token that never
// aborts.
type Token struct {
	mu        sync.Mutex
	done      chan struct{}
	err       *types.CancellationError
	listeners []listener
	nextID    int
}

// New creates a live token and the function that aborts it
func New() (*Token, AbortFunc) {
	t := &Token{done: make(chan struct{})}
	return t, func(reason ...string) {
		r := "token aborted"
		if len(reason) > 0 && reason[0] != "" {
			r = reason[0]
		}
		t.abort(r)
	}
}

func (t *Token) abort(reason string) {
	t.mu.Lock()
	if t.err != nil {
		t.mu.Unlock()
		return
	}
	t.err = &types.CancellationError{Reason: reason}
	close(t.done)
	fired := t.listeners
	t.listeners = nil
	t.mu.Unlock()

	// Listeners run outside the lock, in registration order.
	for _, l := range fired {
		l.fn()
	}
}

// Aborted reports whether the token has been aborted
func (t *Token) Aborted() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err != nil
}

// Err returns the CancellationError once the token is aborted, nil
// before that
func (t *Token) Err() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		return nil
	}
	return t.err
}

// Done returns a channel closed on abort. For a nil token it returns
// nil, which blocks forever in a select.
func (t *Token) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.done
}

// OnAbort registers fn to run once when the token aborts. Listeners
// run in registration order, outside the token's lock. If the token
// is already aborted, fn runs inline before OnAbort returns. The
// returned function removes the registration; calling it after the
// listener fired is harmless.
func (t *Token) OnAbort(fn func()) (remove func()) {
	if t == nil || fn == nil {
		return func() {}
	}
	t.mu.Lock()
	if t.err != nil {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	id := t.nextID
	t.nextID++
	t.listeners = append(t.listeners, listener{id: id, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, l := range t.listeners {
			if l.id == id {
				t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
				return
			}
		}
	}
}
