// Package cancel context bridging
package cancel

import (
	"context"
	"errors"

	"github.com/idev0085/taskflow/pkg/types"
)

// Bind derives a context that is canceled when either ctx is done or
// the token aborts. On token abort the CancellationError is installed
// as the cancellation cause, so CauseOf recovers it downstream. The
// returned CancelFunc releases the token listener and must be called
// when the derived context is no longer needed.
func (t *Token) Bind(ctx context.Context) (context.Context, context.CancelFunc) {
	if t == nil {
		return context.WithCancel(ctx)
	}
	cctx, cause := context.WithCancelCause(ctx)
	remove := t.OnAbort(func() { cause(t.Err()) })
	return cctx, func() {
		remove()
		cause(nil)
	}
}

// FromContext derives a token that aborts when ctx is done. If ctx is
// already done the token is returned aborted. For contexts that can
// be canceled, a goroutine observes ctx and lives until ctx is done.
func FromContext(ctx context.Context) *Token {
	t := &Token{done: make(chan struct{})}
	if ctx.Done() == nil {
		return t
	}
	if ctx.Err() != nil {
		t.abort(ctx.Err().Error())
		return t
	}
	go func() {
		<-ctx.Done()
		t.abort(ctx.Err().Error())
	}()
	return t
}

// CauseOf reports the effective error of a done context. A
// CancellationError installed as the cancellation cause, typically by
// Bind, is surfaced instead of the bare context.Canceled. Returns nil
// while ctx is live.
func CauseOf(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	if cause := context.Cause(ctx); cause != nil {
		var cerr *types.CancellationError
		if errors.As(cause, &cerr) {
			return cerr
		}
	}
	return ctx.Err()
}
