// Package retry provides bounded retry with configurable backoff for
// functions of the Func shape.
//
// Key Features:
//
// 1. Multiple retry policies:
//   - ExponentialPolicy: doubling delays with jitter, the usual default
//   - FixedPolicy: constant delay between attempts
//   - DecorrelatedJitterPolicy: AWS-style decorrelated jitter
//   - CustomPolicy: caller-supplied delay function
//
// 2. Jitter support:
//   - FullJitter: uniform random in [0, d)
//   - EqualJitter: d/2 plus uniform random in [0, d/2)
//   - NoJitter: deterministic delays, useful in tests
//
// 3. Failure classification:
//   - permanent errors short-circuit and pass through unchanged
//   - exhausting all attempts wraps the last error in RetryExhaustedError
//   - cancellation during a backoff wait abandons the pending attempt
//   - the default condition is types.IsRetryable, replaceable per policy
//
// 4. Retry executor:
//   - synchronous Execute and future-based ExecuteAsync
//   - statistics and event notification
//   - pluggable clock for deterministic tests
//
// Basic usage:
//
//	policy := retry.NewExponentialPolicy(3, 100*time.Millisecond)
//	fetch := retry.Wrap(fetchQuote, policy)
//
//	quote, err := fetch(ctx)
//	if err != nil {
//		var exhausted *types.RetryExhaustedError
//		if errors.As(err, &exhausted) {
//			log.Printf("gave up after %d attempts: %v", exhausted.Attempts, exhausted.Cause)
//		}
//	}
//
// Executor usage with events and statistics:
//
//	executor := retry.NewExecutor(policy,
//		retry.WithEventHandler(retry.NewLogEventHandler(logger)),
//	)
//	value, err := retry.Execute(ctx, executor, fetchQuote)
//	stats := executor.GetStats()
package retry
