package cmd

import (
	"os"

	"portmux/pkg/logging"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the portmux application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "portmux",
	Short: "Automate network devices over aggregated serial console lines",
	Long: `portmux drives switches and routers reached over serial console lines
aggregated on a host. Operators declare templates or macros of CLI
interactions plus verification checks, submit jobs binding them to serial
ports, and observe structured pass/fail outcomes. A live console mode
multiplexes an interactive terminal over the same ports.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

var logLevelFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level (debug, info, warn, error)")
}

// initLogging applies the --log-level flag over the configured default.
func initLogging(configured string) {
	level := configured
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	logging.Init(logging.ParseLevel(level), os.Stderr)
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "portmux version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
