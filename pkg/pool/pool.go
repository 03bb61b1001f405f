package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/idev0085/taskflow/pkg/cancel"
	"github.com/idev0085/taskflow/pkg/types"
)

// item is one submitted unit of work waiting to run or running.
type item[R any] struct {
	task  *types.Task[R]
	ctx   context.Context
	token *cancel.Token
	fut   *types.Future[R]

	// removeAbort deregisters the queued-abort listener. Read and
	// written only under the pool mutex.
	removeAbort func()
}

// Pool runs submitted tasks on at most maxConcurrency goroutines and
// queues the overflow in FIFO order. Tasks are admitted immediately
// while capacity is free; otherwise they wait in the queue and start
// as running tasks settle. A bounded queue rejects submissions beyond
// its length with CapacityExceededError.
type Pool[R any] struct {
	max      int
	maxQueue int

	clock   types.Clock
	logger  types.Logger
	limiter *rate.Limiter
	onPanic func(taskID string, recovered any)

	// lifecycleCtx is canceled on Close so that admission waits (the
	// rate limiter) unblock even when task contexts stay live.
	lifecycleCtx    context.Context
	lifecycleCancel context.CancelFunc

	mu      sync.Mutex
	running int
	queue   []*item[R]
	closed  bool
	wg      sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	canceled  atomic.Int64
}

// Stats is a point-in-time snapshot of pool state. Submitted counts
// every Submit call; Completed, Failed, Rejected and Canceled
// partition their outcomes. Canceled covers submissions that never
// started: pre-aborted tokens, canceled contexts and queued tasks
// removed by an abort or by Close.
type Stats struct {
	Running        int
	Queued         int
	MaxConcurrency int
	QueueCapacity  int
	Submitted      int64
	Completed      int64
	Failed         int64
	Rejected       int64
	Canceled       int64
}

// New creates a pool that runs at most maxConcurrency tasks at once.
// The pool is live immediately; there is no start step.
func New[R any](maxConcurrency int, opts ...Option) (*Pool[R], error) {
	if maxConcurrency <= 0 {
		return nil, fmt.Errorf("max concurrency must be positive, got %d", maxConcurrency)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	lifecycleCtx, lifecycleCancel := context.WithCancel(context.Background())
	p := &Pool[R]{
		max:             maxConcurrency,
		maxQueue:        cfg.maxQueue,
		clock:           cfg.clock,
		logger:          cfg.logger,
		onPanic:         cfg.onPanic,
		lifecycleCtx:    lifecycleCtx,
		lifecycleCancel: lifecycleCancel,
	}
	if cfg.limit != 0 {
		p.limiter = rate.NewLimiter(cfg.limit, cfg.burst)
	}
	return p, nil
}

// Submit hands a task to the pool and returns its future. The future
// settles with the task's result, or rejects without running the task
// when the submission cannot be admitted: nil task, canceled context,
// aborted token, closed pool or full queue.
//
// The token is honored only for tasks with Cancellable set. While the
// task is queued an abort removes it eagerly; once running, the token
// is bound into the task's context.
func (p *Pool[R]) Submit(ctx context.Context, task *types.Task[R], token *cancel.Token) *types.Future[R] {
	if ctx == nil {
		ctx = context.Background()
	}
	p.submitted.Add(1)

	if task == nil || task.Run == nil {
		p.rejected.Add(1)
		return types.RejectedFuture[R](types.ErrNilTask)
	}
	if cause := cancel.CauseOf(ctx); cause != nil {
		p.canceled.Add(1)
		return types.RejectedFuture[R](cause)
	}
	if task.Cancellable && token != nil && token.Aborted() {
		p.canceled.Add(1)
		return types.RejectedFuture[R](token.Err())
	}

	it := &item[R]{
		task:  task,
		ctx:   ctx,
		token: token,
		fut:   types.NewFuture[R](),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.rejected.Add(1)
		return types.RejectedFuture[R](types.ErrPoolClosed)
	}
	if p.running < p.max {
		p.running++
		p.wg.Add(1)
		p.mu.Unlock()
		go p.run(it)
		return it.fut
	}
	if p.maxQueue > 0 && len(p.queue) >= p.maxQueue {
		p.mu.Unlock()
		p.rejected.Add(1)
		return types.RejectedFuture[R](&types.CapacityExceededError{Limit: p.maxQueue})
	}
	p.queue = append(p.queue, it)
	p.mu.Unlock()

	if task.Cancellable && token != nil {
		// Registered after releasing the lock: an already aborted
		// token fires the listener inline, and the listener takes the
		// lock to dequeue.
		remove := token.OnAbort(func() { p.cancelQueued(it) })
		p.mu.Lock()
		if p.queuedLocked(it) {
			it.removeAbort = remove
			p.mu.Unlock()
		} else {
			// Dequeued, canceled or drained by Close in the window
			// before registration.
			p.mu.Unlock()
			remove()
		}
	}
	return it.fut
}

// SubmitFunc submits fn as an anonymous cancellable task
func (p *Pool[R]) SubmitFunc(ctx context.Context, fn types.Func[R]) *types.Future[R] {
	return p.Submit(ctx, types.NewTask(fn), nil)
}

// Stats returns a snapshot of the pool's counters and occupancy
func (p *Pool[R]) Stats() Stats {
	p.mu.Lock()
	running := p.running
	queued := len(p.queue)
	p.mu.Unlock()

	return Stats{
		Running:        running,
		Queued:         queued,
		MaxConcurrency: p.max,
		QueueCapacity:  p.maxQueue,
		Submitted:      p.submitted.Load(),
		Completed:      p.completed.Load(),
		Failed:         p.failed.Load(),
		Rejected:       p.rejected.Load(),
		Canceled:       p.canceled.Load(),
	}
}

// Close stops admission, rejects all queued tasks with a
// CancellationError and waits for running tasks to settle. Closing an
// already closed pool returns nil immediately.
func (p *Pool[R]) Close() error {
	return p.close(0)
}

// CloseWithTimeout closes the pool but gives up waiting for running
// tasks after d, returning a TimeoutError. The pool is closed either
// way; only the wait is bounded.
func (p *Pool[R]) CloseWithTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("close timeout must be positive, got %v", d)
	}
	return p.close(d)
}

func (p *Pool[R]) close(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	drained := p.queue
	p.queue = nil
	removes := make([]func(), 0, len(drained))
	for _, it := range drained {
		if it.removeAbort != nil {
			removes = append(removes, it.removeAbort)
			it.removeAbort = nil
		}
	}
	p.mu.Unlock()

	p.lifecycleCancel()
	for _, remove := range removes {
		remove()
	}
	for _, it := range drained {
		p.canceled.Add(1)
		it.fut.Reject(&types.CancellationError{Reason: "pool closed"})
	}
	if len(drained) > 0 {
		p.logger.Infof("pool closed, rejected %d queued tasks", len(drained))
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-p.clock.After(timeout):
		p.logger.Warnf("pool close timed out after %v with %d tasks still running", timeout, p.Stats().Running)
		return &types.TimeoutError{After: timeout, Cause: context.DeadlineExceeded}
	}
}

// queuedLocked reports whether it is still in the queue. Caller holds
// the mutex.
func (p *Pool[R]) queuedLocked(it *item[R]) bool {
	for _, q := range p.queue {
		if q == it {
			return true
		}
	}
	return false
}

// cancelQueued removes it from the queue on token abort. Runs from the
// token's listener; a lost race with dispatch or Close is a no-op.
func (p *Pool[R]) cancelQueued(it *item[R]) {
	p.mu.Lock()
	found := false
	for i, q := range p.queue {
		if q == it {
			copy(p.queue[i:], p.queue[i+1:])
			p.queue[len(p.queue)-1] = nil
			p.queue = p.queue[:len(p.queue)-1]
			found = true
			break
		}
	}
	it.removeAbort = nil
	p.mu.Unlock()

	if !found {
		return
	}
	p.canceled.Add(1)
	it.fut.Reject(p.abortErr(it, "canceled while queued"))
}

// dispatchLocked starts queued tasks while capacity is free. Caller
// holds the mutex. Tasks whose token aborted in the gap before their
// listener ran are rejected here instead of started.
func (p *Pool[R]) dispatchLocked() {
	for p.running < p.max && len(p.queue) > 0 {
		it := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]

		if it.task.Cancellable && it.token != nil && it.token.Aborted() {
			remove := it.removeAbort
			it.removeAbort = nil
			p.canceled.Add(1)
			it.fut.Reject(p.abortErr(it, "canceled while queued"))
			if remove != nil {
				remove()
			}
			continue
		}

		p.running++
		p.wg.Add(1)
		go p.run(it)
	}
}

func (p *Pool[R]) run(it *item[R]) {
	defer p.wg.Done()

	p.mu.Lock()
	remove := it.removeAbort
	it.removeAbort = nil
	p.mu.Unlock()
	if remove != nil {
		remove()
	}

	ctx := it.ctx
	if it.task.Cancellable && it.token != nil {
		bound, release := it.token.Bind(ctx)
		defer release()
		ctx = bound
	}

	if cause := cancel.CauseOf(ctx); cause != nil {
		p.canceled.Add(1)
		it.fut.Reject(cause)
		p.onSettled()
		return
	}

	if p.limiter != nil {
		if err := p.waitLimiter(ctx); err != nil {
			if cause := cancel.CauseOf(ctx); cause != nil {
				p.canceled.Add(1)
				it.fut.Reject(cause)
			} else {
				p.rejected.Add(1)
				it.fut.Reject(types.ErrPoolClosed)
			}
			p.onSettled()
			return
		}
	}

	start := p.clock.Now()
	value, err := p.safeRun(ctx, it.task)
	elapsed := p.clock.Since(start)

	if err != nil {
		p.failed.Add(1)
	} else {
		p.completed.Add(1)
	}
	it.fut.Complete(types.Result[R]{Value: value, Error: err, Duration: elapsed})
	p.onSettled()
}

// waitLimiter blocks for a limiter token, unblocking when either the
// task's context or the pool lifecycle is canceled.
func (p *Pool[R]) waitLimiter(ctx context.Context) error {
	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()
	stop := context.AfterFunc(p.lifecycleCtx, cancelWait)
	defer stop()
	return p.limiter.Wait(waitCtx)
}

func (p *Pool[R]) onSettled() {
	p.mu.Lock()
	p.running--
	if !p.closed {
		p.dispatchLocked()
	}
	p.mu.Unlock()
}

func (p *Pool[R]) safeRun(ctx context.Context, task *types.Task[R]) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			var buf [4096]byte
			n := runtime.Stack(buf[:], false)
			p.logger.Errorf("task %s panicked: %v\n%s", task.ID, r, buf[:n])
			if p.onPanic != nil {
				p.onPanic(task.ID, r)
			}
			if perr, ok := r.(error); ok {
				err = fmt.Errorf("task %s panicked: %w", task.ID, perr)
			} else {
				err = fmt.Errorf("task %s panicked: %v", task.ID, r)
			}
		}
	}()
	return task.Run(ctx)
}

func (p *Pool[R]) abortErr(it *item[R], fallback string) error {
	if err := it.token.Err(); err != nil {
		return err
	}
	return &types.CancellationError{Reason: fallback}
}
