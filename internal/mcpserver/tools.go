package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"wsagent/internal/ports"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// DefaultExposeTimeout bounds expose_port while it waits for the URL.
const DefaultExposeTimeout = 30 * time.Second

// PortCommands is what the tools act on. *ports.Commands implements it.
type PortCommands interface {
	Reconciler() *ports.Reconciler
	ResolveExternalPort(ctx context.Context, port uint32) (string, error)
	SetVisibility(ctx context.Context, port uint32, visibility ports.Visibility) error
}

// PortTools exposes the port commands as MCP tools.
type PortTools struct {
	commands      PortCommands
	exposeTimeout time.Duration
}

// NewPortTools creates the tool set.
func NewPortTools(commands PortCommands) *PortTools {
	return &PortTools{commands: commands, exposeTimeout: DefaultExposeTimeout}
}

// Tools returns the tool definitions with their handlers.
func (pt *PortTools) Tools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("list_ports",
				mcp.WithDescription("List the workspace ports with their status and URL"),
			),
			Handler: pt.HandleListPorts,
		},
		{
			Tool: mcp.NewTool("resolve_port_url",
				mcp.WithDescription("Return the external URL of an exposed port"),
				mcp.WithNumber("port",
					mcp.Required(),
					mcp.Description("Local port number"),
				),
			),
			Handler: pt.HandleResolvePortURL,
		},
		{
			Tool: mcp.NewTool("expose_port",
				mcp.WithDescription("Expose a local port and wait for its external URL"),
				mcp.WithNumber("port",
					mcp.Required(),
					mcp.Description("Local port number"),
				),
			),
			Handler: pt.HandleExposePort,
		},
		{
			Tool: mcp.NewTool("set_port_visibility",
				mcp.WithDescription("Make an exposed port public or private"),
				mcp.WithNumber("port",
					mcp.Required(),
					mcp.Description("Local port number"),
				),
				mcp.WithString("visibility",
					mcp.Required(),
					mcp.Enum("public", "private"),
					mcp.Description("New visibility"),
				),
			),
			Handler: pt.HandleSetPortVisibility,
		},
	}
}

type portInfo struct {
	Port       uint32 `json:"port"`
	GlobalPort uint32 `json:"globalPort,omitempty"`
	Status     string `json:"status"`
	Served     bool   `json:"served"`
	Exposed    bool   `json:"exposed"`
	Visibility string `json:"visibility,omitempty"`
	URL        string `json:"url,omitempty"`
}

func newPortInfo(st ports.Status) portInfo {
	info := portInfo{
		Port:       st.LocalPort,
		GlobalPort: st.GlobalPort,
		Status:     st.Description(),
		Served:     st.Served,
		Exposed:    st.Exposed != nil,
	}
	if st.Exposed != nil {
		info.Visibility = st.Exposed.Visibility.String()
		info.URL = st.Exposed.URL
	}
	return info
}

// HandleListPorts handles the list_ports tool call
func (pt *PortTools) HandleListPorts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table := pt.commands.Reconciler().Ports()
	if len(table) == 0 {
		return mcp.NewToolResultText("No ports detected"), nil
	}

	infos := make([]portInfo, len(table))
	for i, st := range table {
		infos[i] = newPortInfo(st)
	}
	jsonData, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format ports: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

// HandleResolvePortURL handles the resolve_port_url tool call
func (pt *PortTools) HandleResolvePortURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	port, errResult := requirePort(req)
	if errResult != nil {
		return errResult, nil
	}

	st, ok := pt.commands.Reconciler().Get(port)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Port %d is not known", port)), nil
	}
	if st.Exposed == nil || st.Exposed.URL == "" {
		return mcp.NewToolResultError(fmt.Sprintf("Port %d is not exposed", port)), nil
	}
	return mcp.NewToolResultText(st.Exposed.URL), nil
}

// HandleExposePort handles the expose_port tool call
func (pt *PortTools) HandleExposePort(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	port, errResult := requirePort(req)
	if errResult != nil {
		return errResult, nil
	}

	ctx, cancel := context.WithTimeout(ctx, pt.exposeTimeout)
	defer cancel()
	url, err := pt.commands.ResolveExternalPort(ctx, port)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to expose port %d: %v", port, err)), nil
	}
	return mcp.NewToolResultText(url), nil
}

// HandleSetPortVisibility handles the set_port_visibility tool call
func (pt *PortTools) HandleSetPortVisibility(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	port, errResult := requirePort(req)
	if errResult != nil {
		return errResult, nil
	}
	raw, err := req.RequireString("visibility")
	if err != nil {
		return mcp.NewToolResultError("visibility is required"), nil
	}
	visibility, err := ports.ParseVisibility(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, ok := pt.commands.Reconciler().Get(port); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Port %d is not known", port)), nil
	}

	if err := pt.commands.SetVisibility(ctx, port, visibility); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to make port %d %s: %v", port, visibility, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Port %d is now %s", port, visibility)), nil
}

func requirePort(req mcp.CallToolRequest) (uint32, *mcp.CallToolResult) {
	n, err := req.RequireFloat("port")
	if err != nil {
		return 0, mcp.NewToolResultError("port is required")
	}
	if n < 1 || n > math.MaxUint16 || n != math.Trunc(n) {
		return 0, mcp.NewToolResultError(fmt.Sprintf("invalid port %v", n))
	}
	return uint32(n), nil
}
