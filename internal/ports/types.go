package ports

import (
	"fmt"
	"strings"
)

// Visibility controls who may reach an exposed port.
type Visibility int32

const (
	VisibilityPrivate Visibility = 0
	VisibilityPublic  Visibility = 1
)

func (v Visibility) String() string {
	switch v {
	case VisibilityPrivate:
		return "private"
	case VisibilityPublic:
		return "public"
	default:
		return fmt.Sprintf("unknown(%d)", int32(v))
	}
}

// ParseVisibility accepts "public" or "private", case insensitive.
func ParseVisibility(s string) (Visibility, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public":
		return VisibilityPublic, nil
	case "private":
		return VisibilityPrivate, nil
	default:
		return VisibilityPrivate, fmt.Errorf("invalid visibility %q: must be public or private", s)
	}
}

// ExposedAction is what the workspace asks the agent to do once a port is
// both exposed and served. Values outside the known set may arrive from
// newer supervisors and are kept as-is.
type ExposedAction int32

const (
	ActionIgnore        ExposedAction = 0
	ActionOpenBrowser   ExposedAction = 1
	ActionOpenPreview   ExposedAction = 2
	ActionNotify        ExposedAction = 3
	ActionNotifyPrivate ExposedAction = 4
)

func (a ExposedAction) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionOpenBrowser:
		return "open-browser"
	case ActionOpenPreview:
		return "open-preview"
	case ActionNotify:
		return "notify"
	case ActionNotifyPrivate:
		return "notify-private"
	default:
		return fmt.Sprintf("unknown(%d)", int32(a))
	}
}

// Exposure describes how a port is reachable from outside the workspace.
type Exposure struct {
	GlobalPort uint32
	URL        string
	Visibility Visibility
	OnExposed  ExposedAction
}

// Status is one entry of a ports snapshot. Every snapshot carries the full
// status of every known port; nothing is merged with earlier values.
type Status struct {
	LocalPort  uint32
	GlobalPort uint32
	Served     bool
	// Exposed is nil until the port has an external URL. A port may stay
	// exposed after it stops being served.
	Exposed *Exposure
}

// Clone returns a deep copy.
func (s Status) Clone() Status {
	if s.Exposed != nil {
		e := *s.Exposed
		s.Exposed = &e
	}
	return s
}

// ExposedServed reports whether the port is both exposed and served, the
// only state in which exposure actions apply.
func (s Status) ExposedServed() bool {
	return s.Served && s.Exposed != nil
}

// Public reports whether the port is exposed publicly.
func (s Status) Public() bool {
	return s.Exposed != nil && s.Exposed.Visibility == VisibilityPublic
}

// URL returns the external URL, or "" when the port is not exposed.
func (s Status) URL() string {
	if s.Exposed == nil {
		return ""
	}
	return s.Exposed.URL
}

// Description is the short human readable state shown next to a port.
func (s Status) Description() string {
	switch {
	case !s.Served:
		return "not served"
	case s.Exposed == nil:
		return "detecting..."
	case s.Exposed.Visibility == VisibilityPublic:
		return "open (public)"
	default:
		return "open (private)"
	}
}

// ContextValue tags the port with its state, e.g. "public-exposed-served-port".
// Hosts use it to decide which port commands to offer.
func (s Status) ContextValue() string {
	v := "port"
	if s.Served {
		v = "served-" + v
	}
	if s.Exposed != nil {
		v = "exposed-" + v
		if s.Exposed.Visibility == VisibilityPublic {
			v = "public-" + v
		} else {
			v = "private-" + v
		}
	}
	return v
}

func (s Status) equal(o Status) bool {
	if s.LocalPort != o.LocalPort || s.GlobalPort != o.GlobalPort || s.Served != o.Served {
		return false
	}
	if (s.Exposed == nil) != (o.Exposed == nil) {
		return false
	}
	return s.Exposed == nil || *s.Exposed == *o.Exposed
}

// Summary renders the status line for a set of open ports.
func Summary(open []uint32) string {
	if len(open) == 0 {
		return "No open ports"
	}
	parts := make([]string, len(open))
	for i, p := range open {
		parts[i] = fmt.Sprint(p)
	}
	return "Ports: " + strings.Join(parts, ", ")
}
