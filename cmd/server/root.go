package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "synapse",
	Short: "Reading-context service for an embedded document viewer",
	Long: `Synapse tracks what a reader is looking at in an embedded document viewer,
either an explicit text selection or the passage on the current page, and
streams related passages from the connections backend back to the browser.

Running without a subcommand starts the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.synapse/config.yaml)",
	)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
}
