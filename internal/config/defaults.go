package config

import "time"

const (
	DefaultSupervisorAddress = "localhost:22999"
	DefaultUserAgent         = "wsagent"
)

// GetDefaultConfig returns the built-in configuration.
func GetDefaultConfig() AgentConfig {
	return AgentConfig{
		Supervisor: SupervisorConfig{
			Address:   DefaultSupervisorAddress,
			UserAgent: DefaultUserAgent,
		},
		Deadlines: Deadlines{
			Long:    30 * time.Second,
			Normal:  15 * time.Second,
			Short:   5 * time.Second,
			Respond: 5 * time.Second,
		},
		Backoff: BackoffConfig{
			Interval: time.Second,
			Factor:   1.0,
		},
		MCP: MCPConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    8095,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "localhost:9464",
		},
		LogLevel: "info",
	}
}
