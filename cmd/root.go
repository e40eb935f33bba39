package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// debug enables verbose logging for every subcommand.
var debug bool

// configPath replaces the layered config lookup when set.
var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wsagent",
	Short: "Keep a workspace's ports and notifications in sync with its supervisor",
	Long: `wsagent runs inside a cloud development workspace and mirrors the
supervisor's view of open ports and pending notifications. It shows which
ports are served and exposed, opens previews when ports come up, and lets
you change port visibility.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. unreachable supervisor)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "wsagent version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
	rootCmd.AddCommand(newPortsCmd())
	rootCmd.AddCommand(newExposeCmd())

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is ~/.config/wsagent/config.yaml layered with ./.wsagent/config.yaml)")
}
