package tui

import (
	"context"
	"fmt"
	"strconv"

	"wsagent/internal/ports"
	"wsagent/internal/reporting"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.table.SetColumns(m.columns())
		m.table.SetHeight(m.tableHeight())
		return m, nil

	case eventMsg:
		m.handleEvent(msg.event)
		return m, nil

	case logLineMsg:
		m.appendLog("%s", msg.line)
		return m, nil

	case promptMsg:
		m.prompts = append(m.prompts, msg)
		return m, nil

	case promptWithdrawnMsg:
		for i, p := range m.prompts {
			if p.req.Key == msg.key {
				m.prompts = append(m.prompts[:i], m.prompts[i+1:]...)
				break
			}
		}
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.appendLog("%s %s: %v", IconCross, msg.text, msg.err)
		} else {
			m.appendLog("%s %s", IconCheck, msg.text)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleEvent(event reporting.Event) {
	switch e := event.(type) {
	case *reporting.PortsChangedEvent:
		m.setPorts(e.Ports)
		if len(e.Added)+len(e.Updated)+len(e.Removed) == 0 {
			return
		}
	case *reporting.LoopStateEvent:
		m.states[e.Loop] = e.State
	case *reporting.PortExposedEvent:
		m.appendLog("%s %s", IconLink, e.String())
		return
	}
	m.appendLog("%s", event.String())
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.dismissAll()
		return m, tea.Quit
	}

	if len(m.prompts) > 0 {
		return m.handlePromptKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.table.SetHeight(m.tableHeight())
		return m, nil
	case key.Matches(msg, m.keys.Preview):
		return m, m.withURL("preview", m.actions.OpenPreview)
	case key.Matches(msg, m.keys.Open):
		return m, m.withURL("open", m.actions.OpenExternal)
	case key.Matches(msg, m.keys.MakePublic):
		return m, m.setVisibility(ports.VisibilityPublic)
	case key.Matches(msg, m.keys.MakePrivate):
		return m, m.setVisibility(ports.VisibilityPrivate)
	case key.Matches(msg, m.keys.Copy):
		st, ok := m.exposedSelection()
		if !ok {
			return m, nil
		}
		if err := m.copy(st.Exposed.URL); err != nil {
			m.appendLog("%s Failed to copy URL: %v", IconCross, err)
		} else {
			m.appendLog("%s Copied %s", IconCheck, st.Exposed.URL)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// handlePromptKey answers the front prompt: digits pick an action, the
// dismiss key sends an empty answer.
func (m *Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	front := m.prompts[0]
	if key.Matches(msg, m.keys.Dismiss) {
		m.answer("")
		return m, nil
	}
	if n, err := strconv.Atoi(msg.String()); err == nil && n >= 1 && n <= len(front.req.Actions) {
		m.answer(front.req.Actions[n-1])
	}
	return m, nil
}

func (m *Model) answer(action string) {
	front := m.prompts[0]
	m.prompts = m.prompts[1:]
	front.reply <- action
}

func (m *Model) dismissAll() {
	for len(m.prompts) > 0 {
		m.answer("")
	}
}

func (m *Model) exposedSelection() (ports.Status, bool) {
	st, ok := m.selected()
	if !ok {
		return st, false
	}
	if st.Exposed == nil || st.Exposed.URL == "" {
		m.appendLog("%s Port %d is not exposed", IconWarning, st.LocalPort)
		return st, false
	}
	return st, true
}

func (m *Model) withURL(verb string, fn func(ctx context.Context, url string) error) tea.Cmd {
	st, ok := m.exposedSelection()
	if !ok {
		return nil
	}
	ctx, url := m.ctx, st.Exposed.URL
	return func() tea.Msg {
		return actionDoneMsg{text: fmt.Sprintf("%s %s", verb, url), err: fn(ctx, url)}
	}
}

func (m *Model) setVisibility(v ports.Visibility) tea.Cmd {
	st, ok := m.exposedSelection()
	if !ok {
		return nil
	}
	ctx, actions, port := m.ctx, m.actions, st.LocalPort
	return func() tea.Msg {
		err := actions.SetVisibility(ctx, port, v)
		return actionDoneMsg{text: fmt.Sprintf("make port %d %s", port, v), err: err}
	}
}
