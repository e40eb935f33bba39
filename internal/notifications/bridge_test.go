package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wsagent/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	testingclock "k8s.io/utils/clock/testing"
)

// gatedPresenter blocks every prompt until a choice is sent on answers.
type gatedPresenter struct {
	mu      sync.Mutex
	shown   []Request
	entered chan Request
	answers chan string
}

func newGatedPresenter() *gatedPresenter {
	return &gatedPresenter{
		entered: make(chan Request, 8),
		answers: make(chan string, 8),
	}
}

func (p *gatedPresenter) Present(ctx context.Context, req Request) (string, error) {
	p.mu.Lock()
	p.shown = append(p.shown, req)
	p.mu.Unlock()
	p.entered <- req
	select {
	case choice := <-p.answers:
		return choice, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *gatedPresenter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.shown)
}

type response struct {
	id     uint64
	action string
}

type recordingResponder struct {
	mu        sync.Mutex
	responses []response
	err       error
}

func (r *recordingResponder) Respond(ctx context.Context, req Request, action string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, response{req.ID, action})
	return r.err
}

func (r *recordingResponder) all() []response {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]response(nil), r.responses...)
}

func fixedPresenter(choice string) Presenter {
	return PresenterFunc(func(context.Context, Request) (string, error) { return choice, nil })
}

func TestHandle_RespondsWithChoice(t *testing.T) {
	responder := &recordingResponder{}
	var outcomes []Outcome
	b := NewBridge(fixedPresenter("Retry"), responder, WithOutcomeHook(func(_ Request, o Outcome, _ string) {
		outcomes = append(outcomes, o)
	}))

	req := Request{ID: 7, Key: RequestKey(7), Level: LevelError, Message: "Build failed", Actions: []string{"Retry", "Ignore"}}
	require.NoError(t, b.Handle(context.Background(), req))

	assert.Equal(t, []response{{7, "Retry"}}, responder.all())
	assert.Equal(t, []Outcome{OutcomeAnswered}, outcomes)
	assert.Equal(t, 0, b.Outstanding())
}

func TestHandle_DismissedSendsEmptyAction(t *testing.T) {
	responder := &recordingResponder{}
	b := NewBridge(fixedPresenter(""), responder)

	require.NoError(t, b.Handle(context.Background(), Request{ID: 1, Key: RequestKey(1)}))
	assert.Equal(t, []response{{1, ""}}, responder.all())
}

func TestHandle_PresenterErrorCountsAsDismissed(t *testing.T) {
	responder := &recordingResponder{}
	b := NewBridge(PresenterFunc(func(context.Context, Request) (string, error) {
		return "", errors.New("no display")
	}), responder)

	require.NoError(t, b.Handle(context.Background(), Request{ID: 2, Key: RequestKey(2)}))
	assert.Equal(t, []response{{2, ""}}, responder.all())
}

func TestHandle_DuplicateKeyDropped(t *testing.T) {
	presenter := newGatedPresenter()
	responder := &recordingResponder{}
	var dropped int
	var mu sync.Mutex
	b := NewBridge(presenter, responder, WithOutcomeHook(func(_ Request, o Outcome, _ string) {
		if o == OutcomeDropped {
			mu.Lock()
			dropped++
			mu.Unlock()
		}
	}))

	first := Request{ID: 1, Key: PortKey(8080), Message: "A service is available on port 8080"}
	second := Request{ID: 2, Key: PortKey(8080), Message: "A service is available on port 8080"}

	done := make(chan error, 1)
	go func() { done <- b.Handle(context.Background(), first) }()
	<-presenter.entered

	require.NoError(t, b.Handle(context.Background(), second))
	assert.Equal(t, 1, presenter.count())
	assert.Empty(t, responder.all())

	presenter.answers <- "Open Browser"
	require.NoError(t, <-done)

	assert.Equal(t, 1, presenter.count())
	assert.Equal(t, []response{{1, "Open Browser"}}, responder.all())
	mu.Lock()
	assert.Equal(t, 1, dropped)
	mu.Unlock()

	// released: the same key can be presented again
	presenter.answers <- ""
	require.NoError(t, b.Handle(context.Background(), second))
	assert.Equal(t, 2, presenter.count())
}

func TestHandle_DistinctRequestIDsDoNotCollide(t *testing.T) {
	presenter := newGatedPresenter()
	responder := &recordingResponder{}
	b := NewBridge(presenter, responder)

	assert.True(t, b.Submit(context.Background(), Request{ID: 1, Key: RequestKey(1), Message: "same"}))
	assert.True(t, b.Submit(context.Background(), Request{ID: 2, Key: RequestKey(2), Message: "same"}))
	<-presenter.entered
	<-presenter.entered
	assert.Equal(t, 2, b.Outstanding())

	presenter.answers <- "a"
	presenter.answers <- "b"
	require.Eventually(t, func() bool { return len(responder.all()) == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return b.Outstanding() == 0 }, time.Second, time.Millisecond)
}

func TestHandle_RespondDeadlineSwallowed(t *testing.T) {
	var outcome Outcome
	b := NewBridge(fixedPresenter("OK"), ResponderFunc(func(ctx context.Context, _ Request, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}), WithRespondTimeout(10*time.Millisecond), WithOutcomeHook(func(_ Request, o Outcome, _ string) {
		outcome = o
	}))

	start := time.Now()
	err := b.Handle(context.Background(), Request{ID: 3, Key: RequestKey(3)})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, OutcomeTimeout, outcome)
	assert.Equal(t, 0, b.Outstanding())
}

func TestHandle_ServerDeadlineSwallowed(t *testing.T) {
	responder := &recordingResponder{err: status.Error(codes.DeadlineExceeded, "deadline exceeded")}
	b := NewBridge(fixedPresenter("OK"), responder)
	assert.NoError(t, b.Handle(context.Background(), Request{ID: 4, Key: RequestKey(4)}))
}

func TestHandle_RespondErrorReturned(t *testing.T) {
	responder := &recordingResponder{err: status.Error(codes.Unavailable, "supervisor gone")}
	b := NewBridge(fixedPresenter("OK"), responder)

	err := b.Handle(context.Background(), Request{ID: 5, Key: RequestKey(5)})
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Equal(t, stream.ConditionTransient, stream.Classify(err))
	assert.Equal(t, 0, b.Outstanding(), "key is released on failure")
}

func TestHandle_ResponseOutlivesCancelledSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var respondCtxErr error
	b := NewBridge(PresenterFunc(func(context.Context, Request) (string, error) {
		cancel()
		return "Yes", nil
	}), ResponderFunc(func(rctx context.Context, _ Request, _ string) error {
		respondCtxErr = rctx.Err()
		return nil
	}))

	require.NoError(t, b.Handle(ctx, Request{ID: 6, Key: RequestKey(6)}))
	assert.NoError(t, respondCtxErr)
}

func TestSubmit_RespondErrorFailsSession(t *testing.T) {
	boom := status.Error(codes.Internal, "broken")
	b := NewBridge(fixedPresenter("OK"), &recordingResponder{err: boom})

	sessionFailed := make(chan struct{})
	l := stream.Run(func(ctx context.Context) (stream.Session[Request], error) {
		s := stream.NewChannelSession[Request](1)
		s.Send(Request{ID: 9, Key: RequestKey(9)})
		return s, nil
	}, func(ctx context.Context, req Request) error {
		b.Submit(ctx, req)
		return nil
	}, stream.Options{OnCondition: func(cond stream.Condition, err error) {
		if cond == stream.ConditionTransient && status.Code(err) == codes.Internal {
			select {
			case <-sessionFailed:
			default:
				close(sessionFailed)
			}
		}
	}})
	defer l.Dispose()

	select {
	case <-sessionFailed:
	case <-time.After(2 * time.Second):
		t.Fatal("respond error did not end the session")
	}
}

// holdingPresenter answers request 1 only once release is closed and every
// other request at once.
type holdingPresenter struct {
	release chan struct{}
}

func (p holdingPresenter) Present(ctx context.Context, req Request) (string, error) {
	if req.ID != 1 {
		return "ok", nil
	}
	select {
	case <-p.release:
		return "later", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestSubmitOnSession_OpenPromptSurvivesSiblingFailure(t *testing.T) {
	presenter := holdingPresenter{release: make(chan struct{})}
	recorded := &recordingResponder{}
	var outcomes sync.Map
	b := NewBridge(presenter, ResponderFunc(func(ctx context.Context, req Request, action string) error {
		_ = recorded.Respond(ctx, req, action)
		if req.ID == 2 {
			return status.Error(codes.Unavailable, "supervisor gone")
		}
		return nil
	}), WithOutcomeHook(func(req Request, o Outcome, _ string) {
		outcomes.Store(req.ID, o)
	}))

	sessions := make(chan *stream.ChannelSession[Request], 4)
	l := stream.Run(func(ctx context.Context) (stream.Session[Request], error) {
		s := stream.NewChannelSession[Request](4)
		sessions <- s
		return s, nil
	}, func(sctx context.Context, req Request) error {
		b.SubmitOnSession(context.Background(), sctx, req)
		return nil
	}, stream.Options{Clock: testingclock.NewFakeClock(time.Now())})
	defer l.Dispose()

	s := <-sessions
	require.True(t, s.Send(Request{ID: 1, Key: RequestKey(1)}))
	require.True(t, s.Send(Request{ID: 2, Key: RequestKey(2)}))

	require.Eventually(t, s.Cancelled, time.Second, time.Millisecond, "failed response ends the session")
	require.Eventually(t, func() bool { return b.Outstanding() == 1 }, time.Second, time.Millisecond, "request 1 is still on screen")

	close(presenter.release)
	require.Eventually(t, func() bool { return b.Outstanding() == 0 }, time.Second, time.Millisecond)
	assert.ElementsMatch(t, []response{{2, "ok"}, {1, "later"}}, recorded.all())
	o, _ := outcomes.Load(uint64(1))
	assert.Equal(t, OutcomeAnswered, o)
}

func TestHandle_RespondErrorIsTransient(t *testing.T) {
	responder := &recordingResponder{err: status.Error(codes.Unimplemented, "respond not served")}
	b := NewBridge(fixedPresenter("OK"), responder)

	err := b.Handle(context.Background(), Request{ID: 10, Key: RequestKey(10)})
	require.Error(t, err)
	assert.Equal(t, stream.ConditionTransient, stream.Classify(err))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "warning", LevelWarning.String())
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "info", Level(42).String())
}
