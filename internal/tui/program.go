package tui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"wsagent/internal/notifications"
	"wsagent/internal/ports"
	"wsagent/internal/reporting"
	"wsagent/pkg/logging"

	tea "github.com/charmbracelet/bubbletea"
)

// eventBufferSize is the bus channel buffer between the loops and the UI.
// Events beyond it are dropped rather than stalling a loop.
const eventBufferSize = 256

// Program runs the ports view.
type Program struct {
	program *tea.Program
	model   *Model
}

// NewProgram creates the program. It ends when the user quits or ctx ends.
func NewProgram(ctx context.Context, actions Actions, initial []ports.Status) *Program {
	model := NewModel(ctx, actions, initial)
	return &Program{
		model:   model,
		program: tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)),
	}
}

// Run blocks until the program exits.
func (p *Program) Run() error {
	_, err := p.program.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// Presenter shows prompts in the program.
func (p *Program) Presenter() *Presenter {
	return NewPresenter(p.program.Send)
}

// LogWriter turns every written line into an activity log entry.
func (p *Program) LogWriter() io.Writer {
	return &lineWriter{send: p.program.Send}
}

// Attach forwards bus events to the program until the returned function is
// called.
func (p *Program) Attach(bus reporting.EventBus) func() {
	sub := bus.SubscribeChannel(nil, eventBufferSize)
	if sub == nil {
		return func() {}
	}
	go func() {
		for event := range sub.Channel {
			p.program.Send(eventMsg{event: event})
		}
	}()
	return func() { bus.Unsubscribe(sub) }
}

// AttachLogs forwards log entries to the activity log until entries closes.
func (p *Program) AttachLogs(entries <-chan logging.LogEntry) {
	go func() {
		for entry := range entries {
			p.program.Send(logLineMsg{line: formatEntry(entry)})
		}
	}()
}

func formatEntry(entry logging.LogEntry) string {
	line := fmt.Sprintf("[%s] %s: %s", entry.Level, entry.Subsystem, entry.Message)
	if entry.Err != nil {
		line += ": " + entry.Err.Error()
	}
	return line
}

// Presenter implements notifications.Presenter on top of a running program.
type Presenter struct {
	send func(tea.Msg)
}

// NewPresenter creates a presenter that delivers prompts through send.
func NewPresenter(send func(tea.Msg)) *Presenter {
	return &Presenter{send: send}
}

// Present queues the prompt and waits for the user's choice. An empty choice
// means the prompt was dismissed. When ctx ends first the prompt is
// withdrawn from the view.
func (p *Presenter) Present(ctx context.Context, req notifications.Request) (string, error) {
	reply := make(chan string, 1)
	p.send(promptMsg{req: req, reply: reply})
	select {
	case action := <-reply:
		return action, nil
	case <-ctx.Done():
		p.send(promptWithdrawnMsg{key: req.Key})
		return "", ctx.Err()
	}
}

type lineWriter struct {
	mu   sync.Mutex
	send func(tea.Msg)
	buf  bytes.Buffer
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(b)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// keep the partial line for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(b), nil
		}
		w.send(logLineMsg{line: strings.TrimRight(line, "\r\n")})
	}
}
