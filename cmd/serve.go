package cmd

import (
	"context"
	"fmt"

	"wsagent/internal/app"

	"github.com/spf13/cobra"
)

// serveNoTUI controls whether to run in CLI mode (true) or TUI mode (false).
var serveNoTUI bool

// serveCmd is the long running agent.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Sync ports and notifications with the supervisor",
	Long: `Connects to the workspace supervisor and keeps following its ports and
notification streams until interrupted. Lost streams are reopened.

1. Interactive TUI Mode (default):
   - Shows the port table, the connection state of both streams and an
     activity log.
   - Notifications appear as prompts; answer with the number of an action.

2. Non-TUI / CLI Mode (using --no-tui flag):
   - Logs port changes and exposures to the console.
   - Notifications are dismissed after being logged.
   - Useful for scripting or when a TUI is not desired.

The optional MCP and metrics servers are enabled in the configuration.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveNoTUI, debug, configPath)
	cfg.Version = rootCmd.Version

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	application, err := app.NewApplication(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveNoTUI, "no-tui", false, "Disable TUI and log to the console")
}
