package rategate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/idev0085/taskflow/internal/testutils"
	"github.com/idev0085/taskflow/pkg/cancel"
	"github.com/idev0085/taskflow/pkg/types"
)

type ctxKey struct{}

// countingFn returns a Func that records invocations and echoes the
// int stashed in the context by the caller.
func countingFn(calls *testutils.CallCounter) types.Func[int] {
	return func(ctx context.Context) (int, error) {
		calls.Inc()
		value, _ := ctx.Value(ctxKey{}).(int)
		return value, nil
	}
}

func tagged(value int) context.Context {
	return context.WithValue(context.Background(), ctxKey{}, value)
}

func TestDebouncer_FiresAfterQuietPeriod(t *testing.T) {
	mock := testutils.NewMockClock(t)
	var calls testutils.CallCounter
	d, err := NewDebouncer(func(ctx context.Context) (string, error) {
		calls.Inc()
		return "done", nil
	}, 100*time.Millisecond, WithClock(testutils.NewClockWrapper(mock)))
	require.NoError(t, err)

	fut := d.Call(context.Background())
	assert.False(t, fut.Settled())

	mock.Advance(99 * time.Millisecond)
	assert.False(t, fut.Settled())

	mock.Advance(1 * time.Millisecond)
	value, err := testutils.WaitValue(t, fut, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "done", value)
	assert.Equal(t, int64(1), calls.Count())
}

func TestDebouncer_BurstSharesLastContext(t *testing.T) {
	mock := testutils.NewMockClock(t)
	var calls testutils.CallCounter
	d, err := NewDebouncer(countingFn(&calls), 100*time.Millisecond,
		WithClock(testutils.NewClockWrapper(mock)))
	require.NoError(t, err)

	futs := make([]*types.Future[int], 3)
	for i := range futs {
		futs[i] = d.Call(tagged(i + 1))
		mock.Advance(30 * time.Millisecond)
	}

	assert.Same(t, futs[0], futs[1])
	assert.Same(t, futs[1], futs[2])

	// The pending fire is 70ms away (last call at 60ms + 100ms delay) and
	// the mock clock cannot advance past it in a single step, so split
	// the 100ms advance around it.
	mock.Advance(70 * time.Millisecond).MustWait(context.Background())
	mock.Advance(30 * time.Millisecond)
	value, err := testutils.WaitValue(t, futs[0], time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, value, "invocation should use the last caller's context")
	assert.Equal(t, int64(1), calls.Count())
}

func TestDebouncer_CallRestartsQuietPeriod(t *testing.T) {
	mock := testutils.NewMockClock(t)
	var calls testutils.CallCounter
	d, err := NewDebouncer(countingFn(&calls), 100*time.Millisecond,
		WithClock(testutils.NewClockWrapper(mock)))
	require.NoError(t, err)

	fut := d.Call(context.Background())
	mock.Advance(80 * time.Millisecond)
	d.Call(context.Background())

	mock.Advance(99 * time.Millisecond)
	assert.False(t, fut.Settled())

	mock.Advance(1 * time.Millisecond)
	_, err = testutils.WaitValue(t, fut, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Count())
}

func TestDebouncer_SupersedeRejectsPreviousWaiter(t *testing.T) {
	mock := testutils.NewMockClock(t)
	var calls testutils.CallCounter
	d, err := NewDebouncer(countingFn(&calls), 100*time.Millisecond,
		WithClock(testutils.NewClockWrapper(mock)),
		WithSupersede(true))
	require.NoError(t, err)

	fut1 := d.Call(tagged(1))
	mock.Advance(30 * time.Millisecond)
	fut2 := d.Call(tagged(2))
	assert.NotSame(t, fut1, fut2)

	_, err = testutils.WaitValue(t, fut1, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCanceled)
	var cerr *types.CancellationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "superseded", cerr.Reason)

	mock.Advance(100 * time.Millisecond)
	value, err := testutils.WaitValue(t, fut2, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, value)
	assert.Equal(t, int64(1), calls.Count())
}

func TestDebouncer_MaxWaitBoundsPostponement(t *testing.T) {
	mock := testutils.NewMockClock(t)
	var calls testutils.CallCounter
	d, err := NewDebouncer(countingFn(&calls), 100*time.Millisecond,
		WithClock(testutils.NewClockWrapper(mock)),
		WithMaxWait(250*time.Millisecond))
	require.NoError(t, err)

	// Calls every 80ms keep restarting the quiet period, but the max
	// wait forces the invocation 250ms after the burst began.
	fut := d.Call(tagged(1))
	for i := 2; i <= 4; i++ {
		mock.Advance(80 * time.Millisecond)
		d.Call(tagged(i))
	}
	assert.False(t, fut.Settled())

	mock.Advance(10 * time.Millisecond)
	value, err := testutils.WaitValue(t, fut, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 4, value)
	assert.Equal(t, int64(1), calls.Count())
}

func TestDebouncer_PrecanceledContext(t *testing.T) {
	mock := testutils.NewMockClock(t)
	var calls testutils.CallCounter
	d, err := NewDebouncer(countingFn(&calls), 100*time.Millisecond,
		WithClock(testutils.NewClockWrapper(mock)))
	require.NoError(t, err)

	ctx, cancelCtx := context.WithCancel(context.Background())
	cancelCtx()

	fut := d.Call(ctx)
	require.True(t, fut.Settled())
	_, err = testutils.WaitValue(t, fut, time.Second)
	assert.ErrorIs(t, err, context.Canceled)

	// The rejected call left no pending burst behind.
	fut2 := d.Call(tagged(1))
	assert.NotSame(t, fut, fut2)
	mock.Advance(100 * time.Millisecond)
	value, err := testutils.WaitValue(t, fut2, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, value)
	assert.Equal(t, int64(1), calls.Count())
}

func TestDebouncer_ContextCanceledBeforeFire(t *testing.T) {
	mock := testutils.NewMockClock(t)
	var calls testutils.CallCounter
	d, err := NewDebouncer(countingFn(&calls), 100*time.Millisecond,
		WithClock(testutils.NewClockWrapper(mock)))
	require.NoError(t, err)

	ctx, cancelCtx := context.WithCancel(context.Background())
	fut := d.Call(ctx)

	mock.Advance(50 * time.Millisecond)
	cancelCtx()
	mock.Advance(50 * time.Millisecond)

	_, err = testutils.WaitValue(t, fut, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), calls.Count())
}

func TestDebouncer_TokenAbortBeforeFire(t *testing.T) {
	mock := testutils.NewMockClock(t)
	var calls testutils.CallCounter
	d, err := NewDebouncer(countingFn(&calls), 100*time.Millisecond,
		WithClock(testutils.NewClockWrapper(mock)))
	require.NoError(t, err)

	tok, abort := cancel.New()
	ctx, release := tok.Bind(context.Background())
	defer release()

	fut := d.Call(ctx)
	abort()
	mock.Advance(100 * time.Millisecond)

	_, err = testutils.WaitValue(t, fut, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCanceled)
	assert.Equal(t, int64(0), calls.Count())
}

func TestDebouncer_Flush(t *testing.T) {
	mock := testutils.NewMockClock(t)
	var calls testutils.CallCounter
	d, err := NewDebouncer(countingFn(&calls), 100*time.Millisecond,
		WithClock(testutils.NewClockWrapper(mock)))
	require.NoError(t, err)

	fut := d.Call(tagged(5))
	flushed := d.Flush()
	assert.Same(t, fut, flushed)

	value, err := testutils.WaitValue(t, fut, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5, value)
	assert.Equal(t, int64(1), calls.Count())

	assert.Nil(t, d.Flush())

	// The stopped timer must not fire a second invocation.
	mock.Advance(200 * time.Millisecond)
	assert.Equal(t, int64(1), calls.Count())
}

func TestDebouncer_Cancel(t *testing.T) {
	mock := testutils.NewMockClock(t)
	var calls testutils.CallCounter
	d, err := NewDebouncer(countingFn(&calls), 100*time.Millisecond,
		WithClock(testutils.NewClockWrapper(mock)))
	require.NoError(t, err)

	fut := d.Call(context.Background())
	d.Cancel()

	_, err = testutils.WaitValue(t, fut, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCanceled)

	mock.Advance(200 * time.Millisecond)
	assert.Equal(t, int64(0), calls.Count())
}

func TestDebouncer_SequentialBursts(t *testing.T) {
	mock := testutils.NewMockClock(t)
	var calls testutils.CallCounter
	d, err := NewDebouncer(countingFn(&calls), 100*time.Millisecond,
		WithClock(testutils.NewClockWrapper(mock)))
	require.NoError(t, err)

	fut1 := d.Call(tagged(1))
	mock.Advance(100 * time.Millisecond)
	value, err := testutils.WaitValue(t, fut1, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, value)

	fut2 := d.Call(tagged(2))
	assert.NotSame(t, fut1, fut2)
	mock.Advance(100 * time.Millisecond)
	value, err = testutils.WaitValue(t, fut2, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, value)
	assert.Equal(t, int64(2), calls.Count())
}

func TestDebouncer_ConcurrentBurst(t *testing.T) {
	var calls testutils.CallCounter
	d, err := NewDebouncer(func(ctx context.Context) (string, error) {
		calls.Inc()
		return "shared", nil
	}, 50*time.Millisecond)
	require.NoError(t, err)

	futs := make([]*types.Future[string], 20)
	var g errgroup.Group
	for i := range futs {
		g.Go(func() error {
			futs[i] = d.Call(context.Background())
			return nil
		})
	}
	require.NoError(t, g.Wait())

	testutils.WaitAll(t, futs, 2*time.Second)
	for _, fut := range futs {
		value, err := testutils.WaitValue(t, fut, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "shared", value)
	}
	assert.Equal(t, int64(1), calls.Count())
}

func TestDebouncer_Func(t *testing.T) {
	var calls testutils.CallCounter
	d, err := NewDebouncer(func(ctx context.Context) (int, error) {
		calls.Inc()
		return 7, nil
	}, 5*time.Millisecond)
	require.NoError(t, err)

	value, err := d.Func()(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, value)
	assert.Equal(t, int64(1), calls.Count())
}

func TestDebouncer_Validation(t *testing.T) {
	_, err := NewDebouncer[int](nil, time.Millisecond)
	assert.Error(t, err)

	fn := func(ctx context.Context) (int, error) { return 0, nil }
	_, err = NewDebouncer(fn, 0)
	assert.Error(t, err)
	_, err = NewDebouncer(fn, -time.Second)
	assert.Error(t, err)
}

func TestDebouncer_ErrorPropagates(t *testing.T) {
	mock := testutils.NewMockClock(t)
	errBoom := errors.New("boom")
	d, err := NewDebouncer(func(ctx context.Context) (int, error) {
		return 0, errBoom
	}, 100*time.Millisecond, WithClock(testutils.NewClockWrapper(mock)))
	require.NoError(t, err)

	fut := d.Call(context.Background())
	mock.Advance(100 * time.Millisecond)

	_, err = testutils.WaitValue(t, fut, time.Second)
	assert.ErrorIs(t, err, errBoom)
}
