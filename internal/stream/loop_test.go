package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/apimachinery/pkg/util/wait"
	testingclock "k8s.io/utils/clock/testing"
)

const testTimeout = 2 * time.Second

// channelFactory hands out a fresh ChannelSession per attempt and publishes
// it on the returned channel.
func channelFactory() (Factory[int], <-chan *ChannelSession[int]) {
	opened := make(chan *ChannelSession[int], 16)
	return func(ctx context.Context) (Session[int], error) {
		s := NewChannelSession[int](16)
		opened <- s
		return s, nil
	}, opened
}

func nextSession(t *testing.T, opened <-chan *ChannelSession[int]) *ChannelSession[int] {
	t.Helper()
	select {
	case s := <-opened:
		return s
	case <-time.After(testTimeout):
		t.Fatal("no session was opened")
		return nil
	}
}

func assertNoSession(t *testing.T, opened <-chan *ChannelSession[int]) {
	t.Helper()
	select {
	case <-opened:
		t.Fatal("unexpected session was opened")
	case <-time.After(50 * time.Millisecond):
	}
}

func waitSettled(t *testing.T, l *Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, l.Wait(ctx), "loop did not settle")
}

func waitForTimer(t *testing.T, fc *testingclock.FakeClock) {
	t.Helper()
	require.Eventually(t, fc.HasWaiters, testTimeout, time.Millisecond, "loop never started its pause")
}

type conditionLog struct {
	mu    sync.Mutex
	conds []Condition
	errs  []error
}

func (c *conditionLog) record(cond Condition, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conds = append(c.conds, cond)
	c.errs = append(c.errs, err)
}

func (c *conditionLog) snapshot() ([]Condition, []error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Condition(nil), c.conds...), append([]error(nil), c.errs...)
}

func noopHandler(context.Context, int) error { return nil }

func TestLoop_DeliversMessagesInOrder(t *testing.T) {
	factory, opened := channelFactory()
	got := make(chan int, 8)
	l := Run(factory, func(_ context.Context, msg int) error {
		got <- msg
		return nil
	}, Options{Clock: testingclock.NewFakeClock(time.Now())})
	defer l.Dispose()

	s := nextSession(t, opened)
	for i := 1; i <= 3; i++ {
		require.True(t, s.Send(i))
	}
	for i := 1; i <= 3; i++ {
		select {
		case v := <-got:
			assert.Equal(t, i, v)
		case <-time.After(testTimeout):
			t.Fatalf("message %d not delivered", i)
		}
	}
}

func TestLoop_TransientErrorReconnectsAfterInterval(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	factory, opened := channelFactory()
	log := &conditionLog{}
	l := Run(factory, noopHandler, Options{Clock: fc, OnCondition: log.record})
	defer l.Dispose()

	s1 := nextSession(t, opened)
	s1.Close(status.Error(codes.Unavailable, "connection refused"))

	waitForTimer(t, fc)
	fc.Step(DefaultInterval - time.Millisecond)
	assertNoSession(t, opened)

	fc.Step(time.Millisecond)
	nextSession(t, opened)

	conds, _ := log.snapshot()
	assert.Equal(t, []Condition{ConditionTransient}, conds)
}

func TestLoop_CleanEndReconnects(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	factory, opened := channelFactory()
	l := Run(factory, noopHandler, Options{Clock: fc})
	defer l.Dispose()

	nextSession(t, opened).Close(nil)
	waitForTimer(t, fc)
	fc.Step(DefaultInterval)
	nextSession(t, opened)
}

func TestLoop_CancelledSessionLeavesWithoutPause(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	factory, opened := channelFactory()
	l := Run(factory, noopHandler, Options{Clock: fc})

	nextSession(t, opened).Close(context.Canceled)

	waitSettled(t, l)
	assert.False(t, fc.HasWaiters())
	assert.False(t, l.Unimplemented())
	assertNoSession(t, opened)
}

func TestLoop_UnimplementedStopsForGood(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	var attempts atomic.Int32
	log := &conditionLog{}
	l := Run(func(ctx context.Context) (Session[int], error) {
		attempts.Add(1)
		return nil, status.Error(codes.Unimplemented, "unknown service supervisor.StatusService")
	}, noopHandler, Options{Clock: fc, OnCondition: log.record})

	waitSettled(t, l)
	assert.True(t, l.Unimplemented())
	assert.False(t, fc.HasWaiters())
	fc.Step(time.Minute)
	assert.Equal(t, int32(1), attempts.Load())

	conds, _ := log.snapshot()
	assert.Equal(t, []Condition{ConditionUnimplemented}, conds)
}

func TestLoop_DisposeCancelsOpenSession(t *testing.T) {
	factory, opened := channelFactory()
	log := &conditionLog{}
	l := Run(factory, noopHandler, Options{Clock: testingclock.NewFakeClock(time.Now()), OnCondition: log.record})

	s := nextSession(t, opened)
	l.Dispose()
	waitSettled(t, l)

	assert.True(t, s.Cancelled())
	conds, _ := log.snapshot()
	assert.Equal(t, []Condition{ConditionCancelled}, conds)
	assertNoSession(t, opened)
}

func TestLoop_DisposeIsIdempotent(t *testing.T) {
	factory, opened := channelFactory()
	l := Run(factory, noopHandler, Options{Clock: testingclock.NewFakeClock(time.Now())})
	nextSession(t, opened)

	l.Dispose()
	l.Dispose()
	waitSettled(t, l)
	l.Dispose()
}

func TestLoop_DisposeWhileConnecting(t *testing.T) {
	entered := make(chan struct{})
	l := Run(func(ctx context.Context) (Session[int], error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}, noopHandler, Options{Clock: testingclock.NewFakeClock(time.Now())})

	<-entered
	l.Dispose()
	waitSettled(t, l)
}

func TestLoop_DisposeDuringPause(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	factory, opened := channelFactory()
	l := Run(factory, noopHandler, Options{Clock: fc})

	nextSession(t, opened).Close(errors.New("network is unreachable"))
	waitForTimer(t, fc)

	l.Dispose()
	waitSettled(t, l)
	assertNoSession(t, opened)
}

func TestLoop_NoDeliveryAfterDispose(t *testing.T) {
	factory, opened := channelFactory()
	gate := make(chan struct{})
	inHandler := make(chan struct{}, 1)
	var delivered []int
	var mu sync.Mutex

	l := Run(factory, func(_ context.Context, msg int) error {
		mu.Lock()
		delivered = append(delivered, msg)
		mu.Unlock()
		inHandler <- struct{}{}
		<-gate
		return nil
	}, Options{Clock: testingclock.NewFakeClock(time.Now())})

	s := nextSession(t, opened)
	require.True(t, s.Send(1))
	<-inHandler
	require.True(t, s.Send(2))

	l.Dispose()
	close(gate)
	waitSettled(t, l)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1}, delivered)
}

func TestLoop_DisposeFromHandlerStopsQueuedMessages(t *testing.T) {
	factory, opened := channelFactory()
	var delivered []int
	var l *Loop
	ready := make(chan struct{})

	l = Run(factory, func(_ context.Context, msg int) error {
		<-ready
		delivered = append(delivered, msg)
		l.Dispose()
		return nil
	}, Options{Clock: testingclock.NewFakeClock(time.Now())})
	close(ready)

	s := nextSession(t, opened)
	require.True(t, s.Send(1))
	require.True(t, s.Send(2))
	require.True(t, s.Send(3))
	waitSettled(t, l)

	assert.Equal(t, []int{1}, delivered)
	assert.True(t, s.Cancelled())
	assertNoSession(t, opened)
}

func TestLoop_FailEndsSessionAsTransient(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	factory, opened := channelFactory()
	log := &conditionLog{}
	boom := errors.New("respond failed")

	l := Run(factory, func(ctx context.Context, msg int) error {
		go func() {
			assert.True(t, Fail(ctx, boom))
		}()
		return nil
	}, Options{Clock: fc, OnCondition: log.record})
	defer l.Dispose()

	s1 := nextSession(t, opened)
	require.True(t, s1.Send(7))

	waitForTimer(t, fc)
	assert.True(t, s1.Cancelled())
	conds, errs := log.snapshot()
	require.Len(t, conds, 1)
	assert.Equal(t, ConditionTransient, conds[0])
	assert.Equal(t, boom, errs[0])

	fc.Step(DefaultInterval)
	nextSession(t, opened)
}

func TestLoop_FailWithTransientCauseRetries(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	factory, opened := channelFactory()
	log := &conditionLog{}

	l := Run(factory, func(ctx context.Context, msg int) error {
		go Fail(ctx, Transient(status.Error(codes.Unimplemented, "respond not served")))
		return nil
	}, Options{Clock: fc, OnCondition: log.record})
	defer l.Dispose()

	s1 := nextSession(t, opened)
	require.True(t, s1.Send(1))

	waitForTimer(t, fc)
	conds, _ := log.snapshot()
	assert.Equal(t, []Condition{ConditionTransient}, conds)
	assert.False(t, l.Unimplemented())

	fc.Step(DefaultInterval)
	nextSession(t, opened)
}

func TestLoop_HandlerErrorEndsSession(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	factory, opened := channelFactory()
	l := Run(factory, func(context.Context, int) error {
		return errors.New("decode failed")
	}, Options{Clock: fc})
	defer l.Dispose()

	s1 := nextSession(t, opened)
	require.True(t, s1.Send(1))

	waitForTimer(t, fc)
	assert.True(t, s1.Cancelled())
	fc.Step(DefaultInterval)
	nextSession(t, opened)
}

func TestLoop_BackoffResetsAfterOpen(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Now())
	var attempts atomic.Int32
	opened := make(chan *ChannelSession[int], 4)
	l := Run(func(ctx context.Context) (Session[int], error) {
		if attempts.Add(1) <= 2 {
			return nil, status.Error(codes.Unavailable, "not yet")
		}
		s := NewChannelSession[int](1)
		opened <- s
		return s, nil
	}, noopHandler, Options{
		Clock:   fc,
		Backoff: wait.Backoff{Duration: time.Second, Factor: 2},
	})
	defer l.Dispose()

	// first failure pauses 1s
	waitForTimer(t, fc)
	fc.Step(time.Second)
	require.Eventually(t, func() bool { return attempts.Load() == 2 }, testTimeout, time.Millisecond)

	// second failure pauses 2s
	waitForTimer(t, fc)
	fc.Step(time.Second)
	assert.Equal(t, int32(2), attempts.Load())
	fc.Step(time.Second)

	s := nextSession(t, opened)
	s.Close(nil)

	// the open session reset the schedule
	waitForTimer(t, fc)
	fc.Step(time.Second)
	nextSession(t, opened)
}

func TestFail_OutsideSession(t *testing.T) {
	assert.False(t, Fail(context.Background(), errors.New("x")))
}
