package gitpodapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"wsagent/internal/ports"
	"wsagent/pkg/logging"

	"github.com/gorilla/websocket"
)

const subsystem = "GitpodAPI"

// TokenKind is the token kind requested from the supervisor for server calls.
const TokenKind = "gitpod"

// TokenProvider hands out server tokens. The supervisor client implements it.
type TokenProvider interface {
	GetToken(ctx context.Context, kind, host string, scopes []string) (string, error)
}

// PortSpec is the argument of openPort.
type PortSpec struct {
	Port       uint32 `json:"port"`
	TargetPort uint32 `json:"targetPort,omitempty"`
	Visibility string `json:"visibility,omitempty"`
}

// RPCError is an error object returned by the server.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Config describes where the server lives.
type Config struct {
	// Endpoint is the websocket URL of the server API.
	Endpoint string
	// Host is the API host the token is issued for.
	Host string
	// Origin is sent as the Origin header, usually the workspace host URL.
	Origin string
	// WorkspaceID scopes the token.
	WorkspaceID string
}

// Client speaks JSON-RPC 2.0 to the server over a single websocket. Calls
// are serialized. A broken connection is dropped and redialed on the next
// call.
type Client struct {
	cfg    Config
	tokens TokenProvider
	dialer *websocket.Dialer

	mu     sync.Mutex
	token  string
	conn   *websocket.Conn
	nextID uint64
}

// NewClient creates a client. Nothing is dialed until the first call.
func NewClient(cfg Config, tokens TokenProvider) *Client {
	return &Client{
		cfg:    cfg,
		tokens: tokens,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Scopes returns the token scopes the client asks for.
func (c *Client) Scopes() []string {
	scopes := []string{"function:openPort"}
	if c.cfg.WorkspaceID != "" {
		scopes = append(scopes, "resource:workspace::"+c.cfg.WorkspaceID+"::get/update")
	}
	return scopes
}

// OpenPort asks the server to (re)open a port with the given visibility.
func (c *Client) OpenPort(ctx context.Context, workspaceID string, spec PortSpec) error {
	return c.call(ctx, "openPort", []any{workspaceID, spec}, nil)
}

// Opener adapts the client to the port commands.
func (c *Client) Opener(workspaceID string) ports.Opener {
	return ports.OpenerFunc(func(ctx context.Context, port, targetPort uint32, v ports.Visibility) error {
		return c.OpenPort(ctx, workspaceID, PortSpec{Port: port, TargetPort: targetPort, Visibility: v.String()})
	})
}

// Close drops the connection if one is open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked()
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connectLocked(ctx)
	if err != nil {
		return err
	}

	c.nextID++
	id := c.nextID

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
		_ = conn.SetReadDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := conn.WriteJSON(request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		_ = c.dropLocked()
		return c.contextErr(ctx, fmt.Errorf("failed to send %s: %w", method, err))
	}

	for {
		var resp response
		if err := conn.ReadJSON(&resp); err != nil {
			_ = c.dropLocked()
			return c.contextErr(ctx, fmt.Errorf("failed to read %s response: %w", method, err))
		}
		if resp.ID == nil || *resp.ID != id {
			// Server notifications and stale replies.
			logging.Debug(subsystem, "Skipping message %q", resp.Method)
			continue
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("failed to decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Client) contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (c *Client) connectLocked(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	if c.cfg.Endpoint == "" {
		return nil, errors.New("server API endpoint is not known")
	}

	if c.token == "" {
		token, err := c.tokens.GetToken(ctx, TokenKind, c.cfg.Host, c.Scopes())
		if err != nil {
			return nil, fmt.Errorf("failed to get server token: %w", err)
		}
		c.token = token
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	if origin := originOf(c.cfg.Origin); origin != "" {
		header.Set("Origin", origin)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.Endpoint, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			// The token may have been revoked; fetch a new one next time.
			c.token = ""
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", c.cfg.Endpoint, err)
	}
	logging.Debug(subsystem, "Connected to %s", c.cfg.Endpoint)
	c.conn = conn
	return conn, nil
}

func (c *Client) dropLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// originOf reduces a URL to scheme://host.
func originOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
