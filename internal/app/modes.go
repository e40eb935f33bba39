package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wsagent/internal/agent"
	"wsagent/internal/exposure"
	"wsagent/internal/host"
	"wsagent/internal/mcpserver"
	"wsagent/internal/metrics"
	"wsagent/internal/notifications"
	"wsagent/internal/ports"
	"wsagent/internal/reporting"
	"wsagent/internal/tui"
	"wsagent/pkg/logging"
)

// stopTimeout bounds how long shutdown waits for the loops to settle.
const stopTimeout = 5 * time.Second

// portActions joins the host sink with the port commands for the TUI.
type portActions struct {
	exposure.ActionSink
	*ports.Commands
}

func newEngine(cfg *Config, services *Services, sink exposure.ActionSink, presenter notifications.Presenter) *agent.Engine {
	return agent.NewEngine(services.Supervisor, services.Reconciler, sink, services.Commands, presenter, agent.Options{
		Backoff:        cfg.Backoff(),
		RespondTimeout: cfg.AgentConfig.Deadlines.Respond,
		Bus:            services.Bus,
	})
}

// startAuxiliary starts the optional metrics and MCP servers. They stop
// when ctx ends.
func startAuxiliary(ctx context.Context, cfg *Config, services *Services, engine *agent.Engine) error {
	agentCfg := cfg.AgentConfig
	if agentCfg.Metrics.Enabled {
		m := metrics.New()
		m.Attach(services.Bus)
		go func() {
			if err := metrics.Serve(ctx, agentCfg.Metrics.Address, m.Router(engine.Health)); err != nil {
				logging.Error("Metrics", err, "Metrics server stopped")
			}
		}()
	}
	if agentCfg.MCP.Enabled {
		server := mcpserver.New(mcpserver.Config{
			Host:    agentCfg.MCP.Host,
			Port:    agentCfg.MCP.Port,
			Version: cfg.Version,
		}, services.Commands)
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("failed to start MCP server: %w", err)
		}
	}
	return nil
}

func stopEngine(engine *agent.Engine) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := engine.Stop(ctx); err != nil {
		logging.Error("CLI", err, "Shutdown did not complete")
	}
}

// runCLIMode executes the non-interactive command line mode
func runCLIMode(ctx context.Context, config *Config, services *Services) error {
	logging.Info("CLI", "Running in no-TUI mode.")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := host.NewSink(config.AgentConfig.Browser.Command, os.Stdout)
	engine := newEngine(config, services, sink, host.AutoDismiss{})

	services.Bus.Subscribe(reporting.FilterByType(reporting.EventTypePortsChanged), func(event reporting.Event) {
		if e, ok := event.(*reporting.PortsChangedEvent); ok && len(e.Added)+len(e.Updated)+len(e.Removed) > 0 {
			logging.Info("Ports", "%s (%s)", e.String(), ports.Summary(services.Commands.ExposedPorts()))
		}
	})

	if err := startAuxiliary(ctx, config, services, engine); err != nil {
		return err
	}
	if err := engine.Start(ctx); err != nil {
		logging.Error("CLI", err, "Failed to start")
		return err
	}
	logging.Info("CLI", "Syncing with the supervisor at %s. Press Ctrl+C to exit.", config.AgentConfig.Supervisor.Address)

	select {
	case <-ctx.Done():
	case <-engine.Done():
	}

	logging.Info("CLI", "--- Shutting down ---")
	stopEngine(engine)
	return nil
}

// runTUIMode executes the interactive terminal UI mode
func runTUIMode(ctx context.Context, config *Config, services *Services) error {
	logChan := logging.InitForTUI(config.LogLevel())
	defer logging.CloseTUIChannel()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	actions := &portActions{Commands: services.Commands}
	program := tui.NewProgram(ctx, actions, services.Reconciler.Ports())
	actions.ActionSink = host.NewSink(config.AgentConfig.Browser.Command, program.LogWriter())

	engine := newEngine(config, services, actions.ActionSink, program.Presenter())
	detach := program.Attach(services.Bus)
	defer detach()
	program.AttachLogs(logChan)

	if err := startAuxiliary(ctx, config, services, engine); err != nil {
		return err
	}
	if err := engine.Start(ctx); err != nil {
		logging.Error("TUI-Lifecycle", err, "Failed to start")
		return err
	}

	err := program.Run()
	cancel()
	stopEngine(engine)
	if err != nil {
		logging.Error("TUI-Lifecycle", err, "Error running TUI program")
		return err
	}
	logging.Info("TUI-Lifecycle", "TUI exited.")
	return nil
}
