package config

import (
	"time"
)

// AgentConfig is the top-level configuration structure for wsagent.
type AgentConfig struct {
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Deadlines  Deadlines        `yaml:"deadlines"`
	Backoff    BackoffConfig    `yaml:"backoff"`
	MCP        MCPConfig        `yaml:"mcp"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Gitpod     GitpodConfig     `yaml:"gitpod"`
	Browser    BrowserConfig    `yaml:"browser"`
	LogLevel   string           `yaml:"logLevel,omitempty"`
}

// SupervisorConfig locates the workspace supervisor gRPC endpoint.
type SupervisorConfig struct {
	Address   string `yaml:"address,omitempty"`   // host:port, default localhost:22999
	UserAgent string `yaml:"userAgent,omitempty"` // primary user agent sent with every call
}

// Deadlines bounds unary supervisor calls.
type Deadlines struct {
	Long    time.Duration `yaml:"long,omitempty"`    // workspace info, tokens
	Normal  time.Duration `yaml:"normal,omitempty"`  // expose port
	Short   time.Duration `yaml:"short,omitempty"`   // quick probes
	Respond time.Duration `yaml:"respond,omitempty"` // notification responses
}

// BackoffConfig controls the pause between stream reconnect attempts.
type BackoffConfig struct {
	Interval time.Duration `yaml:"interval,omitempty"`
	Factor   float64       `yaml:"factor,omitempty"`
	Cap      time.Duration `yaml:"cap,omitempty"`
}

// MCPConfig configures the MCP tool server.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address,omitempty"`
}

// GitpodConfig overrides the server API location reported by the supervisor.
type GitpodConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
}

// BrowserConfig selects how external URLs are opened.
type BrowserConfig struct {
	Command []string `yaml:"command,omitempty"` // e.g. ["gp", "preview", "--external"]
}
