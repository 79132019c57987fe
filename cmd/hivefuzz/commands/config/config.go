// Package config implements the "config" command group.
package config

import "github.com/spf13/cobra"

// Cmd is the parent "config" command.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration utilities",
}

func init() {
	Cmd.AddCommand(schemaCmd)
}
