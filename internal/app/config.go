package app

import (
	"wsagent/internal/config"
)

// Config holds the application configuration
type Config struct {
	// UI mode
	NoTUI bool

	// Debug settings
	Debug bool

	// ConfigPath, if set, replaces the layered config lookup.
	ConfigPath string

	// Version is reported by the MCP server.
	Version string

	// Agent configuration, filled in by the bootstrap.
	AgentConfig *config.AgentConfig
}

// NewConfig creates a new application configuration
func NewConfig(noTUI, debug bool, configPath string) *Config {
	return &Config{
		NoTUI:      noTUI,
		Debug:      debug,
		ConfigPath: configPath,
	}
}
