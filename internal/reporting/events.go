package reporting

import (
	"fmt"
	"strings"
	"time"

	"wsagent/internal/ports"
)

// EventType defines the type of event
type EventType string

const (
	// Port table events
	EventTypePortsChanged EventType = "ports.changed"
	EventTypePortExposed  EventType = "port.exposed"

	// Side effects decided for exposed ports
	EventTypeAction EventType = "action.dispatched"

	// Prompt outcomes
	EventTypeNotification EventType = "notification.outcome"

	// Stream loop lifecycle
	EventTypeLoopState EventType = "loop.state"
)

// EventSeverity indicates the importance/severity of an event
type EventSeverity string

const (
	SeverityDebug EventSeverity = "debug"
	SeverityInfo  EventSeverity = "info"
	SeverityWarn  EventSeverity = "warn"
	SeverityError EventSeverity = "error"
)

// Event is the base interface for all events in the system
type Event interface {
	// Type returns the event type
	Type() EventType

	// Source returns the component that generated this event
	Source() string

	// Timestamp returns when the event occurred
	Timestamp() time.Time

	// Severity returns the event severity
	Severity() EventSeverity

	// String returns a human-readable description of the event
	String() string
}

// BaseEvent provides common event functionality
type BaseEvent struct {
	EventType     EventType     `json:"type"`
	SourceLabel   string        `json:"source"`
	EventTime     time.Time     `json:"timestamp"`
	EventSeverity EventSeverity `json:"severity"`
}

func newBase(t EventType, source string, severity EventSeverity) BaseEvent {
	return BaseEvent{
		EventType:     t,
		SourceLabel:   source,
		EventTime:     time.Now(),
		EventSeverity: severity,
	}
}

// Type implements Event interface
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Source implements Event interface
func (e BaseEvent) Source() string {
	return e.SourceLabel
}

// Timestamp implements Event interface
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// Severity implements Event interface
func (e BaseEvent) Severity() EventSeverity {
	return e.EventSeverity
}

// String implements Event interface
func (e BaseEvent) String() string {
	return string(e.EventType) + " from " + e.SourceLabel
}

// PortsChangedEvent is published for every snapshot that changed the
// table. Ports is the table after the change, in arrival order.
type PortsChangedEvent struct {
	BaseEvent
	Added   []uint32       `json:"added,omitempty"`
	Updated []uint32       `json:"updated,omitempty"`
	Removed []uint32       `json:"removed,omitempty"`
	Ports   []ports.Status `json:"ports"`
}

// String returns a human-readable description
func (e PortsChangedEvent) String() string {
	var parts []string
	if len(e.Added) > 0 {
		parts = append(parts, "added "+joinPorts(e.Added))
	}
	if len(e.Updated) > 0 {
		parts = append(parts, "updated "+joinPorts(e.Updated))
	}
	if len(e.Removed) > 0 {
		parts = append(parts, "removed "+joinPorts(e.Removed))
	}
	if len(parts) == 0 {
		return "Ports unchanged"
	}
	return "Ports " + strings.Join(parts, "; ")
}

// PortExposedEvent is published when a port becomes exposed and served.
type PortExposedEvent struct {
	BaseEvent
	Port       uint32              `json:"port"`
	URL        string              `json:"url"`
	Visibility ports.Visibility    `json:"visibility"`
	OnExposed  ports.ExposedAction `json:"on_exposed"`
}

// String returns a human-readable description
func (e PortExposedEvent) String() string {
	return fmt.Sprintf("Port %d is open (%s) at %s", e.Port, e.Visibility, e.URL)
}

// ActionEvent records a side effect carried out for a port.
type ActionEvent struct {
	BaseEvent
	Kind string `json:"kind"`
	Port uint32 `json:"port"`
	URL  string `json:"url,omitempty"`
}

// String returns a human-readable description
func (e ActionEvent) String() string {
	if e.URL != "" {
		return fmt.Sprintf("Port %d: %s %s", e.Port, e.Kind, e.URL)
	}
	return fmt.Sprintf("Port %d: %s", e.Port, e.Kind)
}

// NotificationEvent records how a prompt ended.
type NotificationEvent struct {
	BaseEvent
	Key     string `json:"key"`
	Message string `json:"message"`
	Outcome string `json:"outcome"`
	Action  string `json:"action,omitempty"`
}

// String returns a human-readable description
func (e NotificationEvent) String() string {
	if e.Action != "" {
		return fmt.Sprintf("%q %s: %s", e.Message, e.Outcome, e.Action)
	}
	return fmt.Sprintf("%q %s", e.Message, e.Outcome)
}

// LoopState is the connection state of a stream loop.
type LoopState string

const (
	LoopConnected    LoopState = "connected"
	LoopDisconnected LoopState = "disconnected"
	LoopStopped      LoopState = "stopped"
)

// LoopStateEvent is published when a stream loop opens a session or a
// session ends.
type LoopStateEvent struct {
	BaseEvent
	Loop      string    `json:"loop"`
	State     LoopState `json:"state"`
	Condition string    `json:"condition,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// String returns a human-readable description
func (e LoopStateEvent) String() string {
	s := e.Loop + " " + string(e.State)
	if e.Condition != "" {
		s += " (" + e.Condition + ")"
	}
	if e.Error != "" {
		s += ": " + e.Error
	}
	return s
}

// NewPortsChangedEvent creates a ports changed event from a diff.
func NewPortsChangedEvent(diff ports.Diff, table []ports.Status) *PortsChangedEvent {
	return &PortsChangedEvent{
		BaseEvent: newBase(EventTypePortsChanged, "Reconciler", SeverityDebug),
		Added:     handleNumbers(diff.Added),
		Updated:   handleNumbers(diff.Updated),
		Removed:   handleNumbers(diff.Removed),
		Ports:     table,
	}
}

// NewPortExposedEvent creates an event for an exposed-and-served edge.
func NewPortExposedEvent(edge ports.Edge) *PortExposedEvent {
	e := &PortExposedEvent{
		BaseEvent: newBase(EventTypePortExposed, "Reconciler", SeverityInfo),
		Port:      edge.Status.LocalPort,
	}
	if edge.Status.Exposed != nil {
		e.URL = edge.Status.Exposed.URL
		e.Visibility = edge.Status.Exposed.Visibility
		e.OnExposed = edge.Status.Exposed.OnExposed
	}
	return e
}

// NewActionEvent creates an action event.
func NewActionEvent(kind string, port uint32, url string) *ActionEvent {
	return &ActionEvent{
		BaseEvent: newBase(EventTypeAction, "Dispatcher", SeverityInfo),
		Kind:      kind,
		Port:      port,
		URL:       url,
	}
}

// NewNotificationEvent creates a prompt outcome event.
func NewNotificationEvent(source, key, message, outcome, action string) *NotificationEvent {
	severity := SeverityInfo
	if outcome == "failed" {
		severity = SeverityWarn
	}
	return &NotificationEvent{
		BaseEvent: newBase(EventTypeNotification, source, severity),
		Key:       key,
		Message:   message,
		Outcome:   outcome,
		Action:    action,
	}
}

// NewLoopStateEvent creates a loop state event.
func NewLoopStateEvent(loop string, state LoopState, condition string, err error) *LoopStateEvent {
	e := &LoopStateEvent{
		BaseEvent: newBase(EventTypeLoopState, loop, mapLoopStateToSeverity(state, err)),
		Loop:      loop,
		State:     state,
		Condition: condition,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

func mapLoopStateToSeverity(state LoopState, err error) EventSeverity {
	switch {
	case state == LoopStopped:
		return SeverityWarn
	case err != nil:
		return SeverityError
	default:
		return SeverityInfo
	}
}

func handleNumbers(ps []*ports.Port) []uint32 {
	if len(ps) == 0 {
		return nil
	}
	out := make([]uint32, len(ps))
	for i, p := range ps {
		out[i] = p.Number()
	}
	return out
}

func joinPorts(ps []uint32) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ", ")
}
