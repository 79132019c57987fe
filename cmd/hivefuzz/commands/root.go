// Package commands implements the CLI commands for broker management.
package commands

import (
	"github.com/spf13/cobra"

	configcmd "github.com/tpeyrard/hivefuzz/cmd/hivefuzz/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "hivefuzz",
	Short: "hivefuzz - fuzzing campaign broker",
	Long: `hivefuzz coordinates a fleet of heterogeneous fuzzing engines attacking
the same target. Clients announce their capabilities and receive a binary
variant plus a fuzzing configuration; discovered seeds are deduplicated,
persisted and re-distributed across the fleet, and vulnerability updates
are reconciled against a static-analysis defect report until every alert
is validated.

Use "hivefuzz [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/hivefuzz/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(configcmd.Cmd)
}
