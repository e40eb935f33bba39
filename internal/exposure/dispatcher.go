package exposure

import (
	"context"
	"sync"

	"wsagent/internal/notifications"
	"wsagent/internal/ports"
	"wsagent/pkg/logging"
)

const subsystem = "Dispatcher"

// ActionSink executes URL actions in the host environment.
type ActionSink interface {
	OpenExternal(ctx context.Context, url string) error
	OpenPreview(ctx context.Context, url string) error
}

// VisibilitySetter changes a port's visibility.
type VisibilitySetter interface {
	SetVisibility(ctx context.Context, port uint32, visibility ports.Visibility) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithActionHook observes every decided action, including KindNone, and
// every action chosen from a prompt.
func WithActionHook(fn func(Action)) Option {
	return func(d *Dispatcher) {
		d.onAction = fn
	}
}

// WithBridgeOptions passes options to the prompt bridge.
func WithBridgeOptions(opts ...notifications.Option) Option {
	return func(d *Dispatcher) {
		d.bridgeOpts = append(d.bridgeOpts, opts...)
	}
}

// Dispatcher executes the action decided for each exposure edge. Prompts
// are keyed by port, so a port with an unanswered prompt gets no second one.
type Dispatcher struct {
	sink       ActionSink
	visibility VisibilitySetter
	prompts    *notifications.Bridge
	onAction   func(Action)
	bridgeOpts []notifications.Option

	// handles maps a prompted port to its handle; the chosen action uses
	// the port's status at the time of the choice.
	handles sync.Map
}

// NewDispatcher creates a dispatcher presenting prompts through presenter.
func NewDispatcher(sink ActionSink, visibility VisibilitySetter, presenter notifications.Presenter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sink:       sink,
		visibility: visibility,
	}
	for _, opt := range opts {
		opt(d)
	}
	bridgeOpts := append([]notifications.Option{notifications.WithSubsystem(subsystem)}, d.bridgeOpts...)
	d.prompts = notifications.NewBridge(presenter, notifications.ResponderFunc(d.choose), bridgeOpts...)
	return d
}

// Dispatch decides and executes the action for edge. Prompts are answered
// asynchronously; Dispatch never blocks on the user. Failures are logged.
func (d *Dispatcher) Dispatch(ctx context.Context, edge ports.Edge) Action {
	a := Decide(edge.Status)
	d.report(a)

	switch a.Kind {
	case KindNone:
		logging.Debug(subsystem, "Port %d is open, no action requested", a.Port)
	case KindOpenExternal:
		d.openExternal(ctx, a.Port, a.URL)
	case KindOpenPreview:
		d.openPreview(ctx, a.Port, a.URL)
	case KindPrompt:
		if edge.Port != nil {
			d.handles.Store(a.Port, edge.Port)
		}
		d.prompts.Submit(ctx, notifications.Request{
			ID:      uint64(a.Port),
			Key:     notifications.PortKey(a.Port),
			Level:   notifications.LevelInfo,
			Message: a.Message,
			Actions: a.Labels,
		})
	}
	return a
}

// Outstanding returns the number of unanswered port prompts.
func (d *Dispatcher) Outstanding() int {
	return d.prompts.Outstanding()
}

// choose acts on the label picked for a port prompt. It never fails the
// prompt: errors are logged and the next snapshot shows the truth.
func (d *Dispatcher) choose(ctx context.Context, req notifications.Request, label string) error {
	port := uint32(req.ID)
	url := ""
	if v, ok := d.handles.Load(port); ok {
		url = v.(*ports.Port).Status().URL()
	}

	switch label {
	case "":
		logging.Debug(subsystem, "Prompt for port %d dismissed", port)
		return nil
	case LabelMakePublic:
		d.report(Action{Kind: KindMakePublic, Port: port, URL: url})
		if err := d.visibility.SetVisibility(ctx, port, ports.VisibilityPublic); err != nil {
			logging.Warn(subsystem, "Could not make port %d public: %v", port, err)
		}
	case LabelOpenPreview:
		d.report(Action{Kind: KindOpenPreview, Port: port, URL: url})
		d.openPreview(ctx, port, url)
	case LabelOpenBrowser:
		d.report(Action{Kind: KindOpenExternal, Port: port, URL: url})
		d.openExternal(ctx, port, url)
	default:
		logging.Warn(subsystem, "Unknown choice %q for port %d", label, port)
	}
	return nil
}

func (d *Dispatcher) openExternal(ctx context.Context, port uint32, url string) {
	if url == "" {
		logging.Warn(subsystem, "Port %d has no external URL", port)
		return
	}
	logging.Info(subsystem, "Opening port %d in browser: %s", port, url)
	if err := d.sink.OpenExternal(ctx, url); err != nil {
		logging.Warn(subsystem, "Could not open %s: %v", url, err)
	}
}

func (d *Dispatcher) openPreview(ctx context.Context, port uint32, url string) {
	if url == "" {
		logging.Warn(subsystem, "Port %d has no external URL", port)
		return
	}
	logging.Info(subsystem, "Opening preview for port %d: %s", port, url)
	if err := d.sink.OpenPreview(ctx, url); err != nil {
		logging.Warn(subsystem, "Could not preview %s: %v", url, err)
	}
}

func (d *Dispatcher) report(a Action) {
	if d.onAction != nil {
		d.onAction(a)
	}
}
