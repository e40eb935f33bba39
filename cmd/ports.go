package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"wsagent/internal/app"

	"github.com/spf13/cobra"
)

// defaultExposeTimeout bounds how long expose waits for the URL.
const defaultExposeTimeout = 30 * time.Second

func newPortsCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "Show the workspace ports",
		Long: `Prints the ports the supervisor currently knows about.

With --watch the command keeps following the ports stream and prints one line
per change: "+" for a new port, "~" for a changed one and "-" for a port that
went away.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.NewConfig(true, debug, configPath)
			if err := app.LoadAgentConfig(cfg); err != nil {
				return err
			}
			conn, client, err := app.DialSupervisor(cfg.AgentConfig)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if watch {
				return app.WatchPorts(ctx, client, cfg.Backoff(), cmd.OutOrStdout())
			}
			return app.ListPorts(ctx, client, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow port changes until interrupted")
	return cmd
}

func newExposeCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "expose <port>",
		Short: "Print the external URL of a port, exposing it if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}

			cfg := app.NewConfig(true, debug, configPath)
			if err := app.LoadAgentConfig(cfg); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			services, err := app.InitializeServices(ctx, cfg)
			if err != nil {
				return err
			}
			defer services.Close()

			url, err := app.Expose(ctx, services, port, cfg.Backoff(), timeout)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultExposeTimeout, "How long to wait for the URL")
	return cmd
}

func parsePort(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 || n > 65535 {
		return 0, fmt.Errorf("invalid port %q: must be a number between 1 and 65535", s)
	}
	return uint32(n), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
