// Package host carries out port actions and prompts on the machine the
// agent runs on when no TUI is attached.
package host

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"wsagent/internal/notifications"
	"wsagent/pkg/logging"
)

const subsystem = "Host"

// RunFunc runs a command to completion.
type RunFunc func(ctx context.Context, name string, args ...string) error

func execRun(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to execute '%s %s': %w. Stderr: %s",
			name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// DefaultBrowserCommand returns the platform opener.
func DefaultBrowserCommand(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"open"}
	case "windows":
		return []string{"rundll32", "url.dll,FileProtocolHandler"}
	default:
		return []string{"xdg-open"}
	}
}

// Sink opens external URLs with a command and prints preview URLs.
type Sink struct {
	command []string
	run     RunFunc
	mu      sync.Mutex
	out     io.Writer
}

// NewSink creates a sink. An empty command selects the platform opener.
func NewSink(command []string, out io.Writer) *Sink {
	if len(command) == 0 {
		command = DefaultBrowserCommand(runtime.GOOS)
	}
	return &Sink{command: command, run: execRun, out: out}
}

// OpenExternal runs the browser command with the URL as last argument.
func (s *Sink) OpenExternal(ctx context.Context, url string) error {
	args := append(append([]string{}, s.command[1:]...), url)
	logging.Debug(subsystem, "Opening %s with %s", url, s.command[0])
	return s.run(ctx, s.command[0], args...)
}

// OpenPreview prints the URL. There is no embedded preview outside an IDE.
func (s *Sink) OpenPreview(_ context.Context, url string) error {
	s.println("Preview: " + url)
	return nil
}

func (s *Sink) println(line string) {
	if s.out == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, line)
}

// AutoDismiss is a presenter for unattended runs. It logs every prompt and
// dismisses it.
type AutoDismiss struct{}

// Present implements notifications.Presenter.
func (AutoDismiss) Present(_ context.Context, req notifications.Request) (string, error) {
	switch req.Level {
	case notifications.LevelError:
		logging.Error(subsystem, nil, "%s", describe(req))
	case notifications.LevelWarning:
		logging.Warn(subsystem, "%s", describe(req))
	default:
		logging.Info(subsystem, "%s", describe(req))
	}
	return "", nil
}

func describe(req notifications.Request) string {
	if len(req.Actions) == 0 {
		return req.Message
	}
	return fmt.Sprintf("%s [%s]", req.Message, strings.Join(req.Actions, ", "))
}
