package app

import (
	"context"
	"fmt"
	"os"

	"wsagent/internal/config"
	"wsagent/pkg/logging"

	"k8s.io/apimachinery/pkg/util/wait"
)

// Application is the main application structure that bootstraps and runs wsagent
type Application struct {
	config   *Config
	services *Services
}

// LoadAgentConfig fills cfg.AgentConfig and sets up CLI logging at the
// configured level.
func LoadAgentConfig(cfg *Config) error {
	logging.InitForCLI(logging.LevelInfo, os.Stderr)

	var agentCfg config.AgentConfig
	var err error
	if cfg.ConfigPath != "" {
		agentCfg, err = config.LoadConfigFromPath(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load configuration from path: %s", cfg.ConfigPath)
			return fmt.Errorf("failed to load configuration from path %s: %w", cfg.ConfigPath, err)
		}
		logging.Debug("Bootstrap", "Loaded configuration from custom path: %s", cfg.ConfigPath)
	} else {
		agentCfg, err = config.LoadConfig()
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load configuration")
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logging.Debug("Bootstrap", "Loaded configuration using layered approach")
	}
	cfg.AgentConfig = &agentCfg

	logging.InitForCLI(cfg.LogLevel(), os.Stderr)
	return nil
}

// LogLevel is debug with --debug, otherwise the configured level.
func (c *Config) LogLevel() logging.LogLevel {
	if c.Debug {
		return logging.LevelDebug
	}
	if c.AgentConfig == nil {
		return logging.LevelInfo
	}
	level, err := logging.ParseLevel(c.AgentConfig.LogLevel)
	if err != nil {
		logging.Warn("Bootstrap", "%v, using info", err)
		return logging.LevelInfo
	}
	return level
}

// Backoff is the reconnect schedule of the stream loops.
func (c *Config) Backoff() wait.Backoff {
	if c.AgentConfig == nil {
		return wait.Backoff{}
	}
	b := c.AgentConfig.Backoff
	return wait.Backoff{Duration: b.Interval, Factor: b.Factor, Cap: b.Cap}
}

// NewApplication creates and initializes a new application instance
func NewApplication(ctx context.Context, cfg *Config) (*Application, error) {
	if cfg.AgentConfig == nil {
		if err := LoadAgentConfig(cfg); err != nil {
			return nil, err
		}
	}

	services, err := InitializeServices(ctx, cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Run executes the application in the appropriate mode
func (a *Application) Run(ctx context.Context) error {
	defer a.services.Close()
	if a.config.NoTUI {
		return runCLIMode(ctx, a.config, a.services)
	}
	return runTUIMode(ctx, a.config, a.services)
}
