package tui

import (
	"fmt"
	"sort"
	"strings"

	"wsagent/internal/notifications"
	"wsagent/internal/ports"
	"wsagent/internal/reporting"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// View implements tea.Model.
func (m *Model) View() string {
	sections := []string{
		m.renderHeader(),
		panelStyle.Width(m.innerWidth()).Render(m.table.View()),
	}
	if len(m.prompts) > 0 {
		sections = append(sections, m.renderPrompt(m.prompts[0].req, len(m.prompts)-1))
	}
	if m.height >= minHeightForLog {
		sections = append(sections, m.renderLog(m.logHeight()))
	}
	sections = append(sections, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) innerWidth() int {
	return max(m.width-4, 20)
}

func (m *Model) tableHeight() int {
	reserved := 8
	if m.help.ShowAll {
		reserved += 3
	}
	if m.height >= minHeightForLog {
		reserved += m.logHeight() + 2
	}
	return max(m.height-reserved, 3)
}

func (m *Model) logHeight() int {
	return max(m.height/4, 3)
}

func (m *Model) renderHeader() string {
	title := headerStyle.Render("wsagent")
	status := statusStyle.Render(ports.Summary(m.exposedPorts()))

	names := make([]string, 0, len(m.states))
	for name := range m.states {
		names = append(names, name)
	}
	sort.Strings(names)
	loops := make([]string, 0, len(names))
	for _, name := range names {
		loops = append(loops, renderLoopState(name, m.states[name]))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, title, status, statusStyle.Render(strings.Join(loops, "  ")))
}

func renderLoopState(name string, state reporting.LoopState) string {
	label := fmt.Sprintf("%s: %s", strings.TrimSuffix(name, "Loop"), state)
	switch state {
	case reporting.LoopConnected:
		return connectedStyle.Render(label)
	case reporting.LoopDisconnected:
		return disconnectedStyle.Render(label)
	default:
		return stoppedStyle.Render(label)
	}
}

func (m *Model) renderPrompt(req notifications.Request, queued int) string {
	icon := IconInfo
	switch req.Level {
	case notifications.LevelError:
		icon = IconCross
	case notifications.LevelWarning:
		icon = IconWarning
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", icon, req.Message)
	for i, action := range req.Actions {
		fmt.Fprintf(&b, "  [%d] %s\n", i+1, action)
	}
	b.WriteString("  [esc] dismiss")
	if queued > 0 {
		fmt.Fprintf(&b, "  (%d more)", queued)
	}
	return promptStyle.Width(m.innerWidth()).Render(b.String())
}

func (m *Model) renderLog(height int) string {
	lines := m.log
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	width := m.innerWidth() - 2
	rendered := make([]string, 0, height)
	for _, line := range lines {
		if runewidth.StringWidth(line) > width {
			line = runewidth.Truncate(line, width, "…")
		}
		rendered = append(rendered, logLineStyle.Render(line))
	}
	for len(rendered) < height {
		rendered = append(rendered, "")
	}
	return panelStyle.Width(m.innerWidth()).Render(strings.Join(rendered, "\n"))
}
