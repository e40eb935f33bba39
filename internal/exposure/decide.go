package exposure

import (
	"fmt"

	"wsagent/internal/ports"
)

// Prompt labels.
const (
	LabelMakePublic  = "Make Public"
	LabelOpenPreview = "Open Preview"
	LabelOpenBrowser = "Open Browser"
)

// Kind is the side effect an exposure edge leads to.
type Kind int

const (
	KindNone Kind = iota
	KindOpenExternal
	KindOpenPreview
	KindPrompt
	// KindMakePublic only results from choosing LabelMakePublic.
	KindMakePublic
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindOpenExternal:
		return "open-external"
	case KindOpenPreview:
		return "open-preview"
	case KindPrompt:
		return "prompt"
	case KindMakePublic:
		return "make-public"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Action is the decided effect for one edge.
type Action struct {
	Kind Kind
	Port uint32
	URL  string
	// Message and Labels are set for KindPrompt.
	Message string
	Labels  []string
}

// Decide maps the status carried by an exposed-and-served edge to exactly
// one action. It is total: unknown OnExposed values, and statuses that are
// not exposed and served, yield KindNone.
func Decide(st ports.Status) Action {
	a := Action{Kind: KindNone, Port: st.LocalPort}
	if !st.ExposedServed() {
		return a
	}
	a.URL = st.Exposed.URL

	switch st.Exposed.OnExposed {
	case ports.ActionOpenBrowser:
		a.Kind = KindOpenExternal
	case ports.ActionOpenPreview:
		a.Kind = KindOpenPreview
	case ports.ActionNotify:
		a.Kind = KindPrompt
		a.Labels = []string{LabelOpenPreview, LabelOpenBrowser}
	case ports.ActionNotifyPrivate:
		a.Kind = KindPrompt
		a.Labels = []string{LabelOpenPreview, LabelOpenBrowser}
		if st.Exposed.Visibility != ports.VisibilityPublic {
			a.Labels = append([]string{LabelMakePublic}, a.Labels...)
		}
	}
	if a.Kind == KindPrompt {
		a.Message = fmt.Sprintf("A service is available on port %d", st.LocalPort)
	}
	return a
}
