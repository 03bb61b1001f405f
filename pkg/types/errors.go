// Package types defines the error taxonomy shared by all wrappers
package types

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Predefined errors
var (
	// ErrPoolClosed indicates the pool no longer accepts submissions
	ErrPoolClosed = errors.New("pool is closed")

	// ErrNilTask indicates a nil task or nil run function was submitted
	ErrNilTask = errors.New("nil task")

	// ErrCanceled indicates work was canceled before or during execution
	ErrCanceled = errors.New("operation canceled")

	// ErrTimeout indicates a per-call deadline elapsed
	ErrTimeout = errors.New("operation timed out")

	// ErrCircuitOpen indicates a circuit breaker rejected the call
	ErrCircuitOpen = errors.New("circuit open")

	// ErrQueueFull indicates a bounded queue rejected a submission
	ErrQueueFull = errors.New("queue full")

	// ErrRetryExhausted indicates all retry attempts were consumed
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// TransientError marks an error as retryable. Wrappers that classify
// failures treat it, and anything unwrapping to it, as worth another
// attempt.
type TransientError struct {
	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Cause)
}

// Unwrap returns the underlying error
func (e *TransientError) Unwrap() error {
	return e.Cause
}

// MarkTransient wraps err so IsRetryable reports true for it.
// Returns nil when err is nil.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Cause: err}
}

// PermanentError marks an error as not worth retrying. Retry wrappers
// short-circuit and return the underlying cause unchanged.
type PermanentError struct {
	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Cause)
}

// Unwrap returns the underlying error
func (e *PermanentError) Unwrap() error {
	return e.Cause
}

// MarkPermanent wraps err so retry wrappers refuse to retry it.
// Returns nil when err is nil.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Cause: err}
}

// RetryExhaustedError reports that a retry wrapper consumed every
// attempt without success. Attempts counts calls actually made and
// Cause carries the last observed error.
type RetryExhaustedError struct {
	// Attempts is the number of calls made before giving up
	Attempts int

	// Cause is the last error observed
	Cause error
}

// Error implements the error interface
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Cause)
}

// Unwrap returns the underlying error
func (e *RetryExhaustedError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the exhaustion sentinel
func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// CircuitOpenError is returned when a breaker rejects a call without
// invoking the wrapped function. Until reports when the breaker will
// next admit a probe; it is zero while a probe is already in flight.
type CircuitOpenError struct {
	// Name identifies the breaker that rejected the call
	Name string

	// Until is the earliest time a probe will be admitted
	Until time.Time
}

// Error implements the error interface
func (e *CircuitOpenError) Error() string {
	if e.Until.IsZero() {
		return fmt.Sprintf("circuit %q open", e.Name)
	}
	return fmt.Sprintf("circuit %q open until %s", e.Name, e.Until.Format(time.RFC3339))
}

// Is reports whether target is the circuit-open sentinel
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// CapacityExceededError is returned when a bounded queue rejects a
// submission instead of growing past its configured limit.
type CapacityExceededError struct {
	// Limit is the configured queue capacity
	Limit int
}

// Error implements the error interface
func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("queue capacity %d exceeded", e.Limit)
}

// Is reports whether target is the queue-full sentinel
func (e *CapacityExceededError) Is(target error) bool {
	return target == ErrQueueFull
}

// CancellationError reports cooperative cancellation through a token
// or a bound context. It is never retried.
type CancellationError struct {
	// Reason describes why the work was canceled
	Reason string
}

// Error implements the error interface
func (e *CancellationError) Error() string {
	if e.Reason == "" {
		return "canceled"
	}
	return fmt.Sprintf("canceled: %s", e.Reason)
}

// Is reports whether target is the cancellation sentinel or a context
// cancellation
func (e *CancellationError) Is(target error) bool {
	return target == ErrCanceled || target == context.Canceled
}

// TimeoutError reports that a per-call deadline elapsed. Unlike a
// caller-level context deadline it is classified as transient, so
// retry wrappers will attempt the call again.
type TimeoutError struct {
	// After is the deadline that elapsed
	After time.Duration

	// Cause is the underlying error, usually context.DeadlineExceeded
	Cause error
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s", e.After)
}

// Unwrap returns the underlying error
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the timeout sentinel
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Timeout implements the net.Error convention
func (e *TimeoutError) Timeout() bool {
	return true
}

// IsRetryable classifies an error for retry wrappers. Cancellation,
// caller-level context errors, permanent failures, exhausted retries
// and open circuits are terminal. Transient and timeout errors are
// retryable, errors exposing Temporary() are classified by its
// answer, and unclassified errors default to retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsCancellation(err) || (errors.Is(err, context.DeadlineExceeded) && !isTimeoutWrapped(err)) {
		return false
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}
	if errors.Is(err, ErrRetryExhausted) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	var to interface{ Timeout() bool }
	if errors.As(err, &to) && to.Timeout() {
		return true
	}
	return true
}

// isTimeoutWrapped reports whether a context.DeadlineExceeded is
// wrapped in a per-call TimeoutError, which stays retryable.
func isTimeoutWrapped(err error) bool {
	var timeout *TimeoutError
	return errors.As(err, &timeout)
}

// IsPermanent reports whether err is marked permanent
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// IsCancellation reports whether err represents cooperative
// cancellation, either through a token or a canceled context
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	var cancellation *CancellationError
	if errors.As(err, &cancellation) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrCanceled)
}
