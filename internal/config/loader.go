package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd
var osLookupEnv = os.LookupEnv

const (
	userConfigDir    = ".config/wsagent"
	projectConfigDir = ".wsagent"
	configFileName   = "config.yaml"

	// EnvSupervisorAddr overrides supervisor.address.
	EnvSupervisorAddr = "SUPERVISOR_ADDR"
)

// LoadConfig loads the configuration by layering default, user and project
// settings, then the environment.
func LoadConfig() (AgentConfig, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// user config is optional
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else if err := applyConfigFile(userConfigPath, &config, true); err != nil {
		return AgentConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else if err := applyConfigFile(projectConfigPath, &config, true); err != nil {
		return AgentConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
	}

	applyEnv(&config)
	return config, config.Validate()
}

// LoadConfigFromPath layers a single explicit file on top of the defaults.
// Unlike the layered lookup the file must exist.
func LoadConfigFromPath(path string) (AgentConfig, error) {
	config := GetDefaultConfig()
	if err := applyConfigFile(path, &config, false); err != nil {
		return AgentConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	applyEnv(&config)
	return config, config.Validate()
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// applyConfigFile decodes the YAML file on top of config. Keys absent from
// the file keep their current value.
func applyConfigFile(path string, config *AgentConfig, optional bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, config)
}

func applyEnv(config *AgentConfig) {
	if addr, ok := osLookupEnv(EnvSupervisorAddr); ok && addr != "" {
		config.Supervisor.Address = addr
	}
}

// Validate rejects settings the agent cannot run with.
func (c AgentConfig) Validate() error {
	if c.Supervisor.Address == "" {
		return errors.New("supervisor.address must not be empty")
	}
	if c.Backoff.Interval <= 0 {
		return fmt.Errorf("backoff.interval must be positive, got %s", c.Backoff.Interval)
	}
	if c.Backoff.Factor != 0 && c.Backoff.Factor < 1 {
		return fmt.Errorf("backoff.factor must be >= 1, got %v", c.Backoff.Factor)
	}
	for name, d := range map[string]time.Duration{
		"deadlines.long":    c.Deadlines.Long,
		"deadlines.normal":  c.Deadlines.Normal,
		"deadlines.short":   c.Deadlines.Short,
		"deadlines.respond": c.Deadlines.Respond,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.MCP.Enabled && (c.MCP.Port <= 0 || c.MCP.Port > 65535) {
		return fmt.Errorf("mcp.port out of range: %d", c.MCP.Port)
	}
	return nil
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
