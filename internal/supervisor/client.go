package supervisor

import (
	"context"
	"fmt"
	"io"
	"time"

	"wsagent/internal/notifications"
	"wsagent/internal/stream"
	"wsagent/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const subsystem = "Supervisor"

// Full method names of the supervisor API.
const (
	MethodPortsStatus   = "/supervisor.StatusService/PortsStatus"
	MethodSubscribe     = "/supervisor.NotificationService/Subscribe"
	MethodRespond       = "/supervisor.NotificationService/Respond"
	MethodExposePort    = "/supervisor.ControlService/ExposePort"
	MethodWorkspaceInfo = "/supervisor.InfoService/WorkspaceInfo"
	MethodGetToken      = "/supervisor.TokenService/GetToken"
)

var (
	portsStatusDesc = &grpc.StreamDesc{StreamName: "PortsStatus", ServerStreams: true}
	subscribeDesc   = &grpc.StreamDesc{StreamName: "Subscribe", ServerStreams: true}
)

// Deadlines bound the unary calls.
type Deadlines struct {
	Long    time.Duration
	Normal  time.Duration
	Short   time.Duration
	Respond time.Duration
}

// DefaultDeadlines are the supervisor's customary call deadlines.
var DefaultDeadlines = Deadlines{
	Long:    30 * time.Second,
	Normal:  15 * time.Second,
	Short:   5 * time.Second,
	Respond: 5 * time.Second,
}

// Dial creates a connection to the supervisor. The supervisor runs next to
// the agent, so the connection is not encrypted. Dial does not block; the
// first call establishes the connection.
func Dial(address, userAgent string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUserAgent(userAgent),
	}, opts...)
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create supervisor connection to %s: %w", address, err)
	}
	return conn, nil
}

// Client calls the supervisor API.
type Client struct {
	conn      grpc.ClientConnInterface
	deadlines Deadlines
}

// NewClient wraps conn. Zero deadlines fall back to DefaultDeadlines.
func NewClient(conn grpc.ClientConnInterface, deadlines Deadlines) *Client {
	if deadlines.Long <= 0 {
		deadlines.Long = DefaultDeadlines.Long
	}
	if deadlines.Normal <= 0 {
		deadlines.Normal = DefaultDeadlines.Normal
	}
	if deadlines.Short <= 0 {
		deadlines.Short = DefaultDeadlines.Short
	}
	if deadlines.Respond <= 0 {
		deadlines.Respond = DefaultDeadlines.Respond
	}
	return &Client{conn: conn, deadlines: deadlines}
}

// WorkspaceInfo describes the workspace the agent runs in.
type WorkspaceInfo struct {
	WorkspaceID      string
	InstanceID       string
	CheckoutLocation string
	GitpodHost       string
	APIEndpoint      string
	APIHost          string
	ContextURL       string
}

// WorkspaceInfo fetches the workspace description.
func (c *Client) WorkspaceInfo(ctx context.Context) (WorkspaceInfo, error) {
	resp := &WorkspaceInfoResponse{}
	if err := c.invoke(ctx, c.deadlines.Long, MethodWorkspaceInfo, &Empty{}, resp); err != nil {
		return WorkspaceInfo{}, fmt.Errorf("failed to get workspace info: %w", err)
	}
	info := WorkspaceInfo{
		WorkspaceID:      resp.WorkspaceID,
		InstanceID:       resp.InstanceID,
		CheckoutLocation: resp.CheckoutLocation,
		GitpodHost:       resp.GitpodHost,
		ContextURL:       resp.WorkspaceContextURL,
	}
	if resp.GitpodAPI != nil {
		info.APIEndpoint = resp.GitpodAPI.Endpoint
		info.APIHost = resp.GitpodAPI.Host
	}
	return info, nil
}

// PortsStatus opens the port status stream. With observe set the
// supervisor sends a new snapshot on every change.
func (c *Client) PortsStatus(ctx context.Context, observe bool) (stream.Session[*PortsStatusResponse], error) {
	return openStream(ctx, c.conn, portsStatusDesc, MethodPortsStatus, &PortsStatusRequest{Observe: observe},
		func() *PortsStatusResponse { return &PortsStatusResponse{} })
}

// SubscribeNotifications opens the notification stream.
func (c *Client) SubscribeNotifications(ctx context.Context) (stream.Session[*SubscribeResponse], error) {
	return openStream(ctx, c.conn, subscribeDesc, MethodSubscribe, &SubscribeRequest{},
		func() *SubscribeResponse { return &SubscribeResponse{} })
}

// RespondNotification reports the user's choice for a notification.
func (c *Client) RespondNotification(ctx context.Context, requestID uint64, action string) error {
	req := &RespondRequest{RequestID: requestID, Response: &NotifyResponse{Action: action}}
	return c.invoke(ctx, c.deadlines.Respond, MethodRespond, req, &Empty{})
}

// Respond implements notifications.Responder.
func (c *Client) Respond(ctx context.Context, req notifications.Request, action string) error {
	return c.RespondNotification(ctx, req.ID, action)
}

// ExposePort asks the supervisor to expose port on targetPort.
func (c *Client) ExposePort(ctx context.Context, port, targetPort uint32) error {
	req := &ExposePortRequest{Port: port, TargetPort: targetPort}
	if err := c.invoke(ctx, c.deadlines.Normal, MethodExposePort, req, &Empty{}); err != nil {
		return fmt.Errorf("failed to expose port %d: %w", port, err)
	}
	return nil
}

// GetToken returns a token of the given kind for host with the requested
// scopes.
func (c *Client) GetToken(ctx context.Context, kind, host string, scopes []string) (string, error) {
	req := &GetTokenRequest{Kind: kind, Host: host, Scope: scopes}
	resp := &GetTokenResponse{}
	if err := c.invoke(ctx, c.deadlines.Long, MethodGetToken, req, resp); err != nil {
		return "", fmt.Errorf("failed to get %s token for %s: %w", kind, host, err)
	}
	return resp.Token, nil
}

func (c *Client) invoke(ctx context.Context, timeout time.Duration, method string, req, resp message) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	logging.Debug(subsystem, "Calling %s", method)
	return c.conn.Invoke(ctx, method, req, resp, grpc.ForceCodec(Codec{}))
}

// openStream starts a server-streaming call and wraps it as a Session.
// Cancelling the session cancels the call.
func openStream[T message](ctx context.Context, conn grpc.ClientConnInterface, desc *grpc.StreamDesc, method string, req message, newMsg func() T) (stream.Session[T], error) {
	sctx, cancel := context.WithCancel(ctx)
	cs, err := conn.NewStream(sctx, desc, method, grpc.ForceCodec(Codec{}))
	if err != nil {
		cancel()
		return nil, err
	}
	// io.EOF from SendMsg means the stream already failed; RecvMsg reports why.
	if err := cs.SendMsg(req); err != nil && err != io.EOF {
		cancel()
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		cancel()
		return nil, err
	}
	logging.Debug(subsystem, "Opened %s", method)

	return stream.NewSession(func() (T, error) {
		msg := newMsg()
		if err := cs.RecvMsg(msg); err != nil {
			var zero T
			return zero, err
		}
		return msg, nil
	}, cancel), nil
}
