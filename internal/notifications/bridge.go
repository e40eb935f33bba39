package notifications

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"wsagent/internal/stream"
	"wsagent/pkg/logging"

	"k8s.io/apimachinery/pkg/util/sets"
)

// DefaultRespondTimeout bounds the response call.
const DefaultRespondTimeout = 5 * time.Second

// Level is the severity a request is presented with.
type Level int32

const (
	LevelError   Level = 0
	LevelWarning Level = 1
	LevelInfo    Level = 2
)

// String returns the level name. Unknown levels are presented as info.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	default:
		return "info"
	}
}

// Request is one prompt to present.
type Request struct {
	// ID is the supervisor's request id; zero for locally raised prompts.
	ID uint64
	// Key identifies the condition the prompt is about. At most one
	// request per key is outstanding.
	Key     string
	Level   Level
	Message string
	Actions []string
}

// RequestKey is the key of a general supervisor notification. Request ids
// are unique, so these never collide.
func RequestKey(id uint64) string {
	return "request/" + strconv.FormatUint(id, 10)
}

// PortKey is the key of a port availability prompt.
func PortKey(port uint32) string {
	return "port/" + strconv.FormatUint(uint64(port), 10)
}

// Presenter shows a request and waits for the user's choice. An empty
// choice means the prompt was dismissed.
type Presenter interface {
	Present(ctx context.Context, req Request) (string, error)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, req Request) (string, error)

func (f PresenterFunc) Present(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Responder delivers the choice for a request.
type Responder interface {
	Respond(ctx context.Context, req Request, action string) error
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, req Request, action string) error

func (f ResponderFunc) Respond(ctx context.Context, req Request, action string) error {
	return f(ctx, req, action)
}

// Outcome names how a request ended.
type Outcome string

const (
	OutcomeAnswered  Outcome = "answered"
	OutcomeDismissed Outcome = "dismissed"
	OutcomeDropped   Outcome = "dropped"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeFailed    Outcome = "failed"
)

// Option configures a Bridge.
type Option func(*Bridge)

// WithRespondTimeout overrides DefaultRespondTimeout.
func WithRespondTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.respondTimeout = d
		}
	}
}

// WithOutcomeHook observes every finished or dropped request.
func WithOutcomeHook(fn func(req Request, outcome Outcome, action string)) Option {
	return func(b *Bridge) {
		b.onOutcome = fn
	}
}

// WithSubsystem sets the logging subsystem.
func WithSubsystem(name string) Option {
	return func(b *Bridge) {
		b.subsystem = name
	}
}

// Bridge presents requests and sends exactly one response for each one it
// accepts. A request whose key is already outstanding is dropped.
type Bridge struct {
	presenter      Presenter
	responder      Responder
	respondTimeout time.Duration
	onOutcome      func(Request, Outcome, string)
	subsystem      string

	mu          sync.Mutex
	outstanding sets.Set[string]
}

// NewBridge creates a bridge.
func NewBridge(presenter Presenter, responder Responder, opts ...Option) *Bridge {
	b := &Bridge{
		presenter:      presenter,
		responder:      responder,
		respondTimeout: DefaultRespondTimeout,
		subsystem:      "Notifications",
		outstanding:    sets.New[string](),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle presents req and sends the response before returning. A response
// error other than a deadline expiry is returned, marked transient.
func (b *Bridge) Handle(ctx context.Context, req Request) error {
	if !b.claim(req) {
		return nil
	}
	defer b.release(req.Key)
	return b.deliver(ctx, req)
}

// Submit is Handle without waiting for the user. The key is claimed before
// Submit returns, so a later duplicate is dropped even if the prompt has
// not been shown yet. A response error ends the stream session ctx belongs
// to. Submit reports whether the request was accepted.
func (b *Bridge) Submit(ctx context.Context, req Request) bool {
	return b.SubmitOnSession(ctx, ctx, req)
}

// SubmitOnSession is Submit for a request that arrived on a stream session.
// The prompt lives on ctx, so it survives the end of the session and is
// answered exactly once even across a reconnect. A response error is
// reported to session through stream.Fail and always counts as transient.
func (b *Bridge) SubmitOnSession(ctx, session context.Context, req Request) bool {
	if !b.claim(req) {
		return false
	}
	go func() {
		defer b.release(req.Key)
		if err := b.deliver(ctx, req); err != nil {
			if session.Err() != nil || !stream.Fail(session, err) {
				logging.Error(b.subsystem, err, "Failed to respond to %q", req.Message)
			}
		}
	}()
	return true
}

// Outstanding returns the number of requests being presented.
func (b *Bridge) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outstanding.Len()
}

func (b *Bridge) claim(req Request) bool {
	b.mu.Lock()
	if b.outstanding.Has(req.Key) {
		b.mu.Unlock()
		logging.Debug(b.subsystem, "Dropping duplicate prompt %s", req.Key)
		b.report(req, OutcomeDropped, "")
		return false
	}
	b.outstanding.Insert(req.Key)
	b.mu.Unlock()
	return true
}

func (b *Bridge) release(key string) {
	b.mu.Lock()
	b.outstanding.Delete(key)
	b.mu.Unlock()
}

func (b *Bridge) deliver(ctx context.Context, req Request) error {
	logging.Info(b.subsystem, "Presenting %s prompt: %s", req.Level, req.Message)
	choice, err := b.presenter.Present(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logging.Warn(b.subsystem, "Prompt %s could not be presented, treating as dismissed: %v", req.Key, err)
		choice = ""
	}

	// The response outlives the session so a prompt answered during
	// shutdown is still reported.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.respondTimeout)
	defer cancel()

	logging.Debug(b.subsystem, "Sending response %q for %s", choice, req.Key)
	if err := b.responder.Respond(rctx, req, choice); err != nil {
		if stream.IsDeadlineExceeded(err) {
			logging.Debug(b.subsystem, "Response for %s timed out, ignoring", req.Key)
			b.report(req, OutcomeTimeout, choice)
			return nil
		}
		b.report(req, OutcomeFailed, choice)
		return stream.Transient(fmt.Errorf("failed to respond to %s: %w", req.Key, err))
	}

	if choice == "" {
		b.report(req, OutcomeDismissed, "")
	} else {
		b.report(req, OutcomeAnswered, choice)
	}
	return nil
}

func (b *Bridge) report(req Request, outcome Outcome, action string) {
	if b.onOutcome != nil {
		b.onOutcome(req, outcome, action)
	}
}
