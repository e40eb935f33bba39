package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wsagent/internal/exposure"
	"wsagent/internal/notifications"
	"wsagent/internal/ports"
	"wsagent/internal/reporting"
	"wsagent/internal/stream"
	"wsagent/internal/supervisor"
	"wsagent/pkg/logging"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"
)

const (
	subsystem = "Agent"

	// PortsLoopName and NotificationsLoopName name the two stream loops in
	// logs and events.
	PortsLoopName         = "PortsLoop"
	NotificationsLoopName = "NotificationsLoop"
)

// Streams opens the supervisor streams and answers notifications.
// *supervisor.Client implements it.
type Streams interface {
	PortsStatus(ctx context.Context, observe bool) (stream.Session[*supervisor.PortsStatusResponse], error)
	SubscribeNotifications(ctx context.Context) (stream.Session[*supervisor.SubscribeResponse], error)
	notifications.Responder
}

// Options tunes an Engine. Zero values fall back to the defaults of the
// packages involved.
type Options struct {
	Backoff        wait.Backoff
	Clock          clock.Clock
	RespondTimeout time.Duration
	// Bus receives port, action, prompt and loop events. May be nil.
	Bus reporting.EventBus
}

// Engine keeps the port table and the notification stream in sync with the
// supervisor. It owns one loop per stream.
type Engine struct {
	streams    Streams
	reconciler *ports.Reconciler
	dispatcher *exposure.Dispatcher
	bridge     *notifications.Bridge
	bus        reporting.EventBus
	opts       Options

	// ctx outlives individual sessions so open prompts are not torn down
	// by a reconnect.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	loops  map[string]*stream.Loop
	states map[string]reporting.LoopState
}

// NewEngine wires the reconciler, the dispatcher and the notification bridge
// to streams. presenter shows both supervisor notifications and port
// prompts.
func NewEngine(streams Streams, reconciler *ports.Reconciler, sink exposure.ActionSink, visibility exposure.VisibilitySetter, presenter notifications.Presenter, opts Options) *Engine {
	e := &Engine{
		streams:    streams,
		reconciler: reconciler,
		bus:        opts.Bus,
		opts:       opts,
		loops:      make(map[string]*stream.Loop),
		states:     make(map[string]reporting.LoopState),
	}

	var bridgeOpts []notifications.Option
	if opts.RespondTimeout > 0 {
		bridgeOpts = append(bridgeOpts, notifications.WithRespondTimeout(opts.RespondTimeout))
	}

	e.bridge = notifications.NewBridge(presenter, streams,
		append(bridgeOpts, notifications.WithOutcomeHook(e.outcomeHook("Notifications")))...)
	e.dispatcher = exposure.NewDispatcher(sink, visibility, presenter,
		exposure.WithActionHook(e.actionHook),
		exposure.WithBridgeOptions(append(bridgeOpts, notifications.WithOutcomeHook(e.outcomeHook("Dispatcher")))...))
	return e
}

// Reconciler returns the port table the engine maintains.
func (e *Engine) Reconciler() *ports.Reconciler {
	return e.reconciler
}

// Start opens both loops. They run until Stop is called or ctx ends.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx != nil {
		return errors.New("engine already started")
	}
	e.ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))

	e.loops[PortsLoopName] = stream.Run(
		func(sctx context.Context) (stream.Session[*supervisor.PortsStatusResponse], error) {
			return e.streams.PortsStatus(sctx, true)
		},
		e.onPorts,
		e.loopOptions(PortsLoopName),
	)
	e.loops[NotificationsLoopName] = stream.Run(
		e.streams.SubscribeNotifications,
		e.onNotification,
		e.loopOptions(NotificationsLoopName),
	)

	context.AfterFunc(ctx, func() {
		if err := e.Stop(context.Background()); err != nil {
			logging.Error(subsystem, err, "Failed to stop")
		}
	})
	logging.Info(subsystem, "Started port and notification sync")
	return nil
}

// Stop disposes both loops and waits for them to settle.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	loops := make([]*stream.Loop, 0, len(e.loops))
	for _, l := range e.loops {
		loops = append(loops, l)
	}
	e.mu.Unlock()

	for _, l := range loops {
		l.Dispose()
	}
	for _, l := range loops {
		if err := l.Wait(ctx); err != nil {
			return fmt.Errorf("loops did not settle: %w", err)
		}
	}
	return nil
}

// Done is closed once both loops have exited.
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	loops := make([]*stream.Loop, 0, len(e.loops))
	for _, l := range e.loops {
		loops = append(loops, l)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, l := range loops {
			<-l.Done()
		}
	}()
	return done
}

// States returns the last known state of each loop.
func (e *Engine) States() map[string]reporting.LoopState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]reporting.LoopState, len(e.states))
	for k, v := range e.states {
		out[k] = v
	}
	return out
}

// Health reports an error unless the ports stream is connected.
func (e *Engine) Health() error {
	state := e.States()[PortsLoopName]
	if state != reporting.LoopConnected {
		if state == "" {
			state = "not started"
		}
		return fmt.Errorf("ports stream is %s", state)
	}
	return nil
}

// Outstanding returns the number of prompts awaiting an answer.
func (e *Engine) Outstanding() int {
	return e.bridge.Outstanding() + e.dispatcher.Outstanding()
}

func (e *Engine) onPorts(_ context.Context, resp *supervisor.PortsStatusResponse) error {
	diff := e.reconciler.ApplySnapshot(resp.Statuses())
	e.publish(reporting.NewPortsChangedEvent(diff, e.reconciler.Ports()))
	for _, edge := range diff.Edges {
		e.publish(reporting.NewPortExposedEvent(edge))
		e.dispatcher.Dispatch(e.ctx, edge)
	}
	return nil
}

func (e *Engine) onNotification(sctx context.Context, resp *supervisor.SubscribeResponse) error {
	req, ok := resp.Notification()
	if !ok {
		logging.Debug(subsystem, "Ignoring notification %d without a request", resp.RequestID)
		return nil
	}
	e.bridge.SubmitOnSession(e.ctx, sctx, req)
	return nil
}

func (e *Engine) loopOptions(name string) stream.Options {
	return stream.Options{
		Name:    name,
		Backoff: e.opts.Backoff,
		Clock:   e.opts.Clock,
		OnOpen: func() {
			e.setState(name, reporting.LoopConnected, "", nil)
		},
		OnCondition: func(cond stream.Condition, err error) {
			state := reporting.LoopDisconnected
			if cond == stream.ConditionCancelled || cond == stream.ConditionUnimplemented {
				state = reporting.LoopStopped
			}
			e.setState(name, state, cond.String(), err)
		},
	}
}

func (e *Engine) setState(loop string, state reporting.LoopState, condition string, err error) {
	e.mu.Lock()
	e.states[loop] = state
	e.mu.Unlock()
	e.publish(reporting.NewLoopStateEvent(loop, state, condition, err))
}

func (e *Engine) actionHook(a exposure.Action) {
	if a.Kind == exposure.KindNone {
		return
	}
	e.publish(reporting.NewActionEvent(a.Kind.String(), a.Port, a.URL))
}

func (e *Engine) outcomeHook(source string) func(notifications.Request, notifications.Outcome, string) {
	return func(req notifications.Request, outcome notifications.Outcome, action string) {
		e.publish(reporting.NewNotificationEvent(source, req.Key, req.Message, string(outcome), action))
	}
}

func (e *Engine) publish(event reporting.Event) {
	if e.bus != nil {
		e.bus.Publish(event)
	}
}
