package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"wsagent/internal/ports"
	"wsagent/internal/stream"
	"wsagent/internal/supervisor"
	"wsagent/pkg/logging"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"k8s.io/apimachinery/pkg/util/wait"
)

// PortsSource opens the supervisor ports stream.
type PortsSource interface {
	PortsStatus(ctx context.Context, observe bool) (stream.Session[*supervisor.PortsStatusResponse], error)
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// RenderPorts writes the port table.
func RenderPorts(w io.Writer, statuses []ports.Status) error {
	if len(statuses) == 0 {
		_, err := fmt.Fprintln(w, "No open ports")
		return err
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("PORT", "STATE", "VISIBILITY", "URL")
	for _, st := range statuses {
		visibility := "-"
		if st.Exposed != nil {
			visibility = st.Exposed.Visibility.String()
		}
		url := st.URL()
		if url == "" {
			url = "-"
		}
		t.Row(fmt.Sprint(st.LocalPort), st.Description(), visibility, url)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// ListPorts prints the current port table from a single snapshot.
func ListPorts(ctx context.Context, src PortsSource, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session, err := src.PortsStatus(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to open ports stream: %w", err)
	}
	defer session.Cancel()

	resp, err := session.Recv()
	if err != nil {
		return fmt.Errorf("failed to read ports: %w", err)
	}
	rec := ports.NewReconciler()
	rec.ApplySnapshot(resp.Statuses())
	return RenderPorts(w, rec.Ports())
}

// WatchPorts prints a line per port change until ctx ends or the supervisor
// stops serving the stream.
func WatchPorts(ctx context.Context, src PortsSource, backoff wait.Backoff, w io.Writer) error {
	rec := ports.NewReconciler()
	loop := stream.Run(func(ctx context.Context) (stream.Session[*supervisor.PortsStatusResponse], error) {
		return src.PortsStatus(ctx, true)
	}, func(_ context.Context, resp *supervisor.PortsStatusResponse) error {
		diff := rec.ApplySnapshot(resp.Statuses())
		for _, p := range diff.Added {
			fmt.Fprintf(w, "+ %d %s\n", p.Number(), describeStatus(p.Status()))
		}
		for _, p := range diff.Updated {
			fmt.Fprintf(w, "~ %d %s\n", p.Number(), describeStatus(p.Status()))
		}
		for _, p := range diff.Removed {
			fmt.Fprintf(w, "- %d\n", p.Number())
		}
		return nil
	}, stream.Options{Name: "PortsLoop", Backoff: backoff})
	defer loop.Dispose()

	select {
	case <-ctx.Done():
		return nil
	case <-loop.Done():
		if loop.Unimplemented() {
			return errors.New("supervisor does not serve the ports stream")
		}
		return nil
	}
}

func describeStatus(st ports.Status) string {
	if url := st.URL(); url != "" {
		return st.Description() + " " + url
	}
	return st.Description()
}

// Expose makes a port reachable from outside the workspace and returns its
// URL. It follows the ports stream until the URL shows up or timeout passes.
func Expose(ctx context.Context, services *Services, port uint32, backoff wait.Backoff, timeout time.Duration) (string, error) {
	loop := stream.Run(func(ctx context.Context) (stream.Session[*supervisor.PortsStatusResponse], error) {
		return services.Supervisor.PortsStatus(ctx, true)
	}, func(_ context.Context, resp *supervisor.PortsStatusResponse) error {
		services.Reconciler.ApplySnapshot(resp.Statuses())
		return nil
	}, stream.Options{Name: "PortsLoop", Backoff: backoff})
	defer loop.Dispose()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logging.Debug("CLI", "Resolving external URL of port %d", port)
	url, err := services.Commands.ResolveExternalPort(ctx, port)
	if err != nil {
		return "", err
	}
	return url, nil
}
