// Package mcpserver serves the port commands as MCP tools over SSE.
package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"wsagent/pkg/logging"

	"github.com/mark3labs/mcp-go/server"
)

const subsystem = "MCPServer"

// Config locates the SSE endpoint.
type Config struct {
	Host string
	Port int
	// Version is reported to clients.
	Version string
}

// Server is the MCP tool server.
type Server struct {
	config Config
	tools  *PortTools

	mu        sync.Mutex
	server    *server.MCPServer
	sseServer *server.SSEServer
}

// New creates a server for commands. Nothing listens until Start.
func New(config Config, commands PortCommands) *Server {
	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == 0 {
		config.Port = 8095
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	return &Server{config: config, tools: NewPortTools(commands)}
}

// BaseURL is where clients connect.
func (s *Server) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", s.config.Host, s.config.Port)
}

// MCPServer returns the underlying server, nil before Start.
func (s *Server) MCPServer() *server.MCPServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server
}

// Start registers the tools and serves SSE in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return fmt.Errorf("MCP server already started")
	}

	s.server = server.NewMCPServer(
		"wsagent",
		s.config.Version,
		server.WithToolCapabilities(true),
	)
	s.server.AddTools(s.tools.Tools()...)

	s.sseServer = server.NewSSEServer(
		s.server,
		server.WithBaseURL(s.BaseURL()),
		server.WithSSEEndpoint("/sse"),
		server.WithMessageEndpoint("/message"),
		server.WithKeepAlive(true),
		server.WithKeepAliveInterval(30*time.Second),
	)
	sseServer := s.sseServer
	s.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	logging.Info(subsystem, "Starting MCP server on %s/sse", s.BaseURL())
	go func() {
		if err := sseServer.Start(addr); err != nil && err != http.ErrServerClosed {
			logging.Error(subsystem, err, "SSE server error")
		}
	}()

	context.AfterFunc(ctx, func() {
		_ = s.Stop(context.Background())
	})
	return nil
}

// Stop shuts the SSE server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	sseServer := s.sseServer
	s.sseServer = nil
	s.mu.Unlock()
	if sseServer == nil {
		return nil
	}

	logging.Info(subsystem, "Stopping MCP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sseServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop MCP server: %w", err)
	}
	return nil
}
