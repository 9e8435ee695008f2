// Package cli wires the configured personas into a runnable command tree.
package cli

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ensemble",
	Short: "Ensemble - multi-persona conversational agent runtime",
	Long: `Ensemble runs a roster of conversational agent personas over a shared
persistent memory store. Personas execute tools in a bounded loop, hand
conversations off to each other, and record memories extracted from their
own replies.`,
	Version: version,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ensemble/ensemble.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// RootCmd exposes the root command for tests.
func RootCmd() *cobra.Command {
	return rootCmd
}
