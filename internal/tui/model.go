package tui

import (
	"context"
	"fmt"
	"time"

	"wsagent/internal/ports"
	"wsagent/internal/reporting"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
)

// Actions carries out what the user asks for from the ports view.
type Actions interface {
	OpenExternal(ctx context.Context, url string) error
	OpenPreview(ctx context.Context, url string) error
	SetVisibility(ctx context.Context, port uint32, visibility ports.Visibility) error
}

// Model is the bubbletea model of the ports view.
type Model struct {
	ctx     context.Context
	actions Actions
	keys    KeyMap
	help    help.Model
	table   table.Model

	ports   []ports.Status
	states  map[string]reporting.LoopState
	log     []string
	prompts []promptMsg

	width  int
	height int

	// copy writes to the system clipboard.
	copy func(string) error
	now  func() time.Time
}

// NewModel creates the model. ctx bounds the actions started from keys.
func NewModel(ctx context.Context, actions Actions, initial []ports.Status) *Model {
	m := &Model{
		ctx:     ctx,
		actions: actions,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		states:  make(map[string]reporting.LoopState),
		width:   80,
		height:  24,
		copy:    clipboard.WriteAll,
		now:     time.Now,
	}
	m.table = table.New(
		table.WithColumns(m.columns()),
		table.WithFocused(true),
		table.WithHeight(8),
		table.WithStyles(tableStyles()),
	)
	m.setPorts(initial)
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// columns fits the URL column into the remaining width.
func (m *Model) columns() []table.Column {
	const (
		portWidth       = 7
		statusWidth     = 16
		visibilityWidth = 10
	)
	urlWidth := m.width - portWidth - statusWidth - visibilityWidth - 12
	urlWidth = max(urlWidth, 20)
	return []table.Column{
		{Title: "PORT", Width: portWidth},
		{Title: "STATUS", Width: statusWidth},
		{Title: "VISIBILITY", Width: visibilityWidth},
		{Title: "URL", Width: urlWidth},
	}
}

func (m *Model) setPorts(statuses []ports.Status) {
	m.ports = statuses
	rows := make([]tableRow, 0, len(statuses))
	for _, st := range statuses {
		rows = append(rows, newTableRow(st))
	}
	m.table.SetRows(toRows(rows))
	if cursor := m.table.Cursor(); cursor >= len(statuses) && len(statuses) > 0 {
		m.table.SetCursor(len(statuses) - 1)
	}
}

// selected returns the status of the highlighted port.
func (m *Model) selected() (ports.Status, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.ports) {
		return ports.Status{}, false
	}
	return m.ports[i], true
}

func (m *Model) exposedPorts() []uint32 {
	var out []uint32
	for _, st := range m.ports {
		if st.ExposedServed() {
			out = append(out, st.LocalPort)
		}
	}
	return out
}

func (m *Model) appendLog(format string, args ...any) {
	line := m.now().Format("15:04:05") + " " + fmt.Sprintf(format, args...)
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

// ActivityLog returns the log lines, oldest first.
func (m *Model) ActivityLog() []string {
	return append([]string(nil), m.log...)
}

type tableRow struct {
	port, status, visibility, url string
}

func newTableRow(st ports.Status) tableRow {
	r := tableRow{port: fmt.Sprintf("%d", st.LocalPort), status: st.Description()}
	if st.Exposed != nil {
		r.visibility = st.Exposed.Visibility.String()
		r.url = st.Exposed.URL
	}
	return r
}

func toRows(rows []tableRow) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		out[i] = table.Row{r.port, r.status, r.visibility, r.url}
	}
	return out
}
