package cli

import (
	"github.com/spf13/cobra"
)

// Version is stamped by the release build via -ldflags.
var Version = "dev"

// Shared flag values
var (
	cfgFile string
)

// SetupRootCmd configures the root command with all subcommands and flags.
func SetupRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "browserd",
		Short: "browserd - DevTools protocol server for headless browsing",
		Long: `browserd exposes a headless browser over the Chrome DevTools Protocol.

Clients connect to ws://<addr>/cdp?token=<secret> and drive pages with the
usual DevTools domains (Page, Runtime, DOM, Input, Network, Fetch, Emulation,
Target). Just type 'browserd' to start serving.`,
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.browserd/config.yaml)")

	// Add commands
	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(VersionCmd())

	return rootCmd
}
