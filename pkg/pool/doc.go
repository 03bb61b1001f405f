/*
Package pool provides a bounded concurrency pool with FIFO overflow queuing and comprehensive task lifecycle management.

# Overview

This package implements a type-safe concurrency pool supporting:
- Hard upper bound on concurrently running tasks
- FIFO overflow queue, optionally bounded
- Eager removal of queued tasks whose token aborts
- Per-submission futures for result delivery
- Optional token-bucket admission pacing
- Panic recovery and error wrapping
- Complete statistical information
- Graceful shutdown

# Core Components

## Pool

The pool admits tasks up to its concurrency limit and queues the rest:
- Submissions below the limit start immediately
- Overflow waits in FIFO order and starts as running tasks settle
- A bounded queue rejects excess submissions with CapacityExceededError
- Every submission returns a Future that settles with the task's result

## Cancellation

Tokens and contexts are honored at every stage:
- An aborted token or canceled context at submit rejects without running
- A token abort while queued removes the task eagerly, not at dequeue time
- Once running, the token is bound into the task's context
- Tasks with Cancellable unset ignore their token entirely

# Concurrency Safety

All components are safe for concurrent use:
- Admission and settlement are serialized on a single mutex
- Running never exceeds the configured maximum
- Atomic counters ensure statistical accuracy
- Listener registration order avoids lock inversion with tokens

# Error Handling

Submission and execution failures are reported through the future:
- Nil tasks reject with ErrNilTask
- Closed pools reject with ErrPoolClosed
- Full queues reject with CapacityExceededError
- Cancellation rejects with the token's CancellationError
- Panics are recovered, logged with a stack trace and wrapped into the
  task's error

# Usage Examples

Basic usage:

	p, err := pool.New[string](4, pool.WithMaxQueue(100))
	if err != nil {
		log.Fatal(err)
	}
	defer p.Close()

	fut := p.SubmitFunc(ctx, func(ctx context.Context) (string, error) {
		return fetch(ctx, url)
	})

	value, err := fut.Wait(ctx)

Cancellable submission:

	token, abort := cancel.New()
	fut := p.Submit(ctx, types.NewTask(work), token)

	// Aborting while the task is queued rejects fut immediately and
	// frees its queue slot.
	abort()

Retrieve statistics:

	stats := p.Stats()
	fmt.Printf("Running: %d/%d\n", stats.Running, stats.MaxConcurrency)
	fmt.Printf("Queued: %d\n", stats.Queued)
	fmt.Printf("Completed: %d\n", stats.Completed)

# Configuration Options

Pool construction supports the following options:
- WithMaxQueue: Bound on the overflow queue, zero for unbounded
- WithRateLimit: Token-bucket pacing of task starts
- WithClock: Clock for duration measurement and close timeouts
- WithLogger: Logger for panic reports and shutdown diagnostics
- WithPanicHandler: Hook invoked with recovered panic values
*/
package pool
