package stream

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"wsagent/pkg/logging"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"
)

// DefaultInterval is the pause between reconnect attempts.
const DefaultInterval = time.Second

// Handler processes one message. ctx is scoped to the session the message
// arrived on. Returning an error ends that session; the error is classified
// like a stream error.
type Handler[T any] func(ctx context.Context, msg T) error

// Options tunes a Loop.
type Options struct {
	// Name is the logging subsystem, e.g. "PortsLoop".
	Name string
	// Backoff schedules the pause between attempts. The zero value means a
	// flat DefaultInterval.
	Backoff wait.Backoff
	// Clock drives the pauses. Defaults to the real clock.
	Clock clock.Clock
	// OnCondition, if set, observes every terminal condition.
	OnCondition func(cond Condition, err error)
	// OnOpen, if set, is called after each session is opened.
	OnOpen func()
}

// Loop reopens a session after it ends until it is disposed, the caller
// cancels it, or the server reports the stream as unimplemented.
type Loop struct {
	name    string
	clock   clock.Clock
	backoff wait.Backoff

	onCondition func(Condition, error)
	onOpen      func()

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu            sync.Mutex
	stopped       bool
	current       interface{ Cancel() }
	unimplemented bool
}

// Run starts a loop that consumes sessions from factory and delivers every
// message to onMessage in arrival order.
func Run[T any](factory Factory[T], onMessage Handler[T], opts Options) *Loop {
	l := newLoop(opts)
	go l.run(func() attempt {
		return consume(l, factory, onMessage)
	})
	return l
}

func newLoop(opts Options) *Loop {
	b := opts.Backoff
	if b.Duration <= 0 {
		b.Duration = DefaultInterval
	}
	if b.Factor == 0 {
		b.Factor = 1.0
	}
	if b.Steps <= 0 {
		b.Steps = math.MaxInt32
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	name := opts.Name
	if name == "" {
		name = "StreamLoop"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		name:        name,
		clock:       clk,
		backoff:     b,
		onCondition: opts.OnCondition,
		onOpen:      opts.OnOpen,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// attempt is the outcome of one session.
type attempt struct {
	cond   Condition
	err    error
	opened bool
}

func (l *Loop) run(next func() attempt) {
	defer close(l.done)
	defer l.cancel()

	backoff := l.backoff
	for !l.isStopped() {
		a := next()
		cond, err := a.cond, a.err
		if a.opened {
			backoff = l.backoff
		}
		if l.onCondition != nil {
			l.onCondition(cond, err)
		}

		switch cond {
		case ConditionCancelled:
			logging.Debug(l.name, "Session cancelled, leaving loop")
			return
		case ConditionUnimplemented:
			logging.Warn(l.name, "Supervisor does not implement this stream, giving up: %v", err)
			l.mu.Lock()
			l.stopped = true
			l.unimplemented = true
			l.mu.Unlock()
			return
		case ConditionEnded:
			logging.Debug(l.name, "Stream closed by supervisor, reconnecting")
		default:
			logging.Error(l.name, err, "Cannot maintain connection to supervisor")
		}

		delay := backoff.Step()
		select {
		case <-l.ctx.Done():
			return
		case <-l.clock.After(delay):
		}
	}
}

// consume drives a single session to its end.
func consume[T any](l *Loop, factory Factory[T], onMessage Handler[T]) attempt {
	sctx, scancel := context.WithCancelCause(l.ctx)
	defer scancel(context.Canceled)
	sctx = withFailer(sctx, scancel)

	session, err := factory(sctx)
	if err != nil {
		cond, err := classifySession(sctx, err)
		return attempt{cond: cond, err: err}
	}
	if !l.attach(session) {
		session.Cancel()
		return attempt{cond: ConditionCancelled, err: context.Canceled}
	}
	defer l.detach()
	// Fail and Dispose both end sctx; the session must follow even when
	// its transport does not watch the context.
	stop := context.AfterFunc(sctx, session.Cancel)
	defer stop()
	if l.onOpen != nil {
		l.onOpen()
	}

	for {
		msg, err := session.Recv()
		if err != nil {
			cond, err := classifySession(sctx, err)
			return attempt{cond: cond, err: err, opened: true}
		}
		// A delivery starts when it passes this check; Dispose takes the
		// same lock, so once it returns every later check fails.
		if l.isStopped() {
			return attempt{cond: ConditionCancelled, err: context.Canceled, opened: true}
		}
		if err := onMessage(sctx, msg); err != nil {
			session.Cancel()
			cond, err := classifySession(sctx, err)
			return attempt{cond: cond, err: err, opened: true}
		}
	}
}

// classifySession prefers a failure recorded through Fail over the error the
// transport surfaced for the resulting abort.
func classifySession(sctx context.Context, err error) (Condition, error) {
	if cause := context.Cause(sctx); cause != nil && (isTransient(cause) || !errors.Is(cause, context.Canceled)) {
		return Classify(cause), cause
	}
	return Classify(err), err
}

func (l *Loop) attach(s interface{ Cancel() }) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.current = s
	return true
}

func (l *Loop) detach() {
	l.mu.Lock()
	l.current = nil
	l.mu.Unlock()
}

func (l *Loop) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// Dispose stops the loop and cancels the open session, if any. It never
// blocks on the loop goroutine; use Wait to settle. A message whose delivery
// passed the stop check before Dispose took the loop lock counts as already
// running and is handed to the handler; no other message is. Dispose may be
// called from inside the handler.
func (l *Loop) Dispose() {
	l.mu.Lock()
	l.stopped = true
	current := l.current
	l.mu.Unlock()

	if current != nil {
		current.Cancel()
	}
	l.cancel()
}

// Done is closed once the loop goroutine has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the loop has returned or ctx ends.
func (l *Loop) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unimplemented reports whether the loop stopped because the supervisor
// does not offer the stream.
func (l *Loop) Unimplemented() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unimplemented
}

type failerKey struct{}

func withFailer(ctx context.Context, cancel context.CancelCauseFunc) context.Context {
	return context.WithValue(ctx, failerKey{}, cancel)
}

// Fail ends the session that ctx belongs to with err. Work started from a
// Handler outside the delivery call uses it to report failures that must
// end the session. It returns false if ctx is not a session context.
func Fail(ctx context.Context, err error) bool {
	cancel, ok := ctx.Value(failerKey{}).(context.CancelCauseFunc)
	if !ok {
		return false
	}
	cancel(err)
	return true
}
