package ports

import (
	"context"
	"fmt"

	"wsagent/pkg/logging"
)

// Exposer asks the supervisor to expose a local port.
type Exposer interface {
	ExposePort(ctx context.Context, port, targetPort uint32) error
}

// ExposerFunc adapts a function to Exposer.
type ExposerFunc func(ctx context.Context, port, targetPort uint32) error

func (f ExposerFunc) ExposePort(ctx context.Context, port, targetPort uint32) error {
	return f(ctx, port, targetPort)
}

// Opener changes the visibility of an exposed port through the server API.
type Opener interface {
	OpenPort(ctx context.Context, port, targetPort uint32, visibility Visibility) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, port, targetPort uint32, visibility Visibility) error

func (f OpenerFunc) OpenPort(ctx context.Context, port, targetPort uint32, visibility Visibility) error {
	return f(ctx, port, targetPort, visibility)
}

// Commands are the user-triggered operations on ports. Their outcome is
// never applied to the table directly; the next snapshot reflects it.
type Commands struct {
	rec     *Reconciler
	exposer Exposer
	opener  Opener
}

// NewCommands wires the port operations. opener may be nil when the server
// API is unavailable; visibility changes then fail.
func NewCommands(rec *Reconciler, exposer Exposer, opener Opener) *Commands {
	return &Commands{rec: rec, exposer: exposer, opener: opener}
}

// Reconciler returns the table the commands act on.
func (c *Commands) Reconciler() *Reconciler {
	return c.rec
}

// SetVisibility makes a port public or private. Ports without a status are
// left alone.
func (c *Commands) SetVisibility(ctx context.Context, port uint32, visibility Visibility) error {
	st, ok := c.rec.Get(port)
	if !ok {
		logging.Debug(subsystem, "Port %d is unknown, not changing visibility", port)
		return nil
	}
	if c.opener == nil {
		return fmt.Errorf("cannot make port %d %s: server API not connected", port, visibility)
	}

	target := st.GlobalPort
	if st.Exposed != nil && st.Exposed.GlobalPort != 0 {
		target = st.Exposed.GlobalPort
	}
	if target == 0 {
		target = st.LocalPort
	}

	if err := c.opener.OpenPort(ctx, st.LocalPort, target, visibility); err != nil {
		logging.Error(subsystem, err, "Failed to make port %d %s", port, visibility)
		return fmt.Errorf("failed to make port %d %s: %w", port, visibility, err)
	}
	logging.Info(subsystem, "Requested port %d to become %s", port, visibility)
	return nil
}

// ResolveExternalPort returns the external URL of a port. A port that is
// not exposed yet is exposed on the same port number and the call waits
// for the snapshot that carries its URL.
func (c *Commands) ResolveExternalPort(ctx context.Context, port uint32) (string, error) {
	if st, ok := c.rec.Get(port); ok && st.Exposed != nil {
		return st.Exposed.URL, nil
	}

	if err := c.exposer.ExposePort(ctx, port, port); err != nil {
		logging.Warn(subsystem, "Failed to expose port %d: %v", port, err)
		return "", fmt.Errorf("failed to expose port %d: %w", port, err)
	}
	url, err := c.rec.ResolveURL(ctx, port)
	if err != nil {
		return "", fmt.Errorf("waiting for port %d to be exposed: %w", port, err)
	}
	return url, nil
}

// ExposedPorts returns the ports that are open to the outside.
func (c *Commands) ExposedPorts() []uint32 {
	return c.rec.ExposedPorts()
}
