package app

import (
	"context"
	"errors"
	"fmt"

	"wsagent/internal/config"
	"wsagent/internal/gitpodapi"
	"wsagent/internal/ports"
	"wsagent/internal/reporting"
	"wsagent/internal/supervisor"
	"wsagent/pkg/logging"

	"google.golang.org/grpc"
)

// Services holds all the initialized services and APIs
type Services struct {
	Conn       *grpc.ClientConn
	Supervisor *supervisor.Client
	Workspace  supervisor.WorkspaceInfo
	Reconciler *ports.Reconciler
	Commands   *ports.Commands
	ServerAPI  *gitpodapi.Client
	Bus        reporting.EventBus
}

// InitializeServices connects to the supervisor and builds the port
// commands. A failing workspace info call is not fatal: the agent still
// syncs ports, only visibility changes are unavailable.
func InitializeServices(ctx context.Context, cfg *Config) (*Services, error) {
	agentCfg := cfg.AgentConfig
	if agentCfg == nil {
		return nil, errors.New("agent configuration not loaded")
	}

	conn, client, err := DialSupervisor(agentCfg)
	if err != nil {
		return nil, err
	}

	s := &Services{
		Conn:       conn,
		Supervisor: client,
		Reconciler: ports.NewReconciler(),
		Bus:        reporting.NewEventBus(),
	}

	var opener ports.Opener
	info, err := client.WorkspaceInfo(ctx)
	if err != nil {
		logging.Warn("Bootstrap", "Workspace info unavailable, port visibility cannot be changed: %v", err)
	} else {
		s.Workspace = info
		s.ServerAPI = gitpodapi.NewClient(serverAPIConfig(agentCfg.Gitpod, info), client)
		opener = s.ServerAPI.Opener(info.WorkspaceID)
		logging.Info("Bootstrap", "Workspace %s (%s)", info.WorkspaceID, info.GitpodHost)
	}
	s.Commands = ports.NewCommands(s.Reconciler, client, opener)
	return s, nil
}

// DialSupervisor connects to the supervisor without fetching workspace
// details. The one-shot commands use it directly.
func DialSupervisor(agentCfg *config.AgentConfig) (*grpc.ClientConn, *supervisor.Client, error) {
	conn, err := supervisor.Dial(agentCfg.Supervisor.Address, agentCfg.Supervisor.UserAgent)
	if err != nil {
		return nil, nil, err
	}
	return conn, supervisor.NewClient(conn, deadlinesFrom(agentCfg.Deadlines)), nil
}

func serverAPIConfig(override config.GitpodConfig, info supervisor.WorkspaceInfo) gitpodapi.Config {
	endpoint := info.APIEndpoint
	if override.Endpoint != "" {
		endpoint = override.Endpoint
	}
	return gitpodapi.Config{
		Endpoint:    endpoint,
		Host:        info.APIHost,
		Origin:      info.GitpodHost,
		WorkspaceID: info.WorkspaceID,
	}
}

func deadlinesFrom(d config.Deadlines) supervisor.Deadlines {
	return supervisor.Deadlines{
		Long:    d.Long,
		Normal:  d.Normal,
		Short:   d.Short,
		Respond: d.Respond,
	}
}

// Close releases the connections.
func (s *Services) Close() error {
	var errs []error
	if s.ServerAPI != nil {
		errs = append(errs, s.ServerAPI.Close())
	}
	if s.Bus != nil {
		s.Bus.Close()
	}
	if s.Conn != nil {
		if err := s.Conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close supervisor connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
