// Package commands implements the mimicd CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time by main.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "mimicd",
	Short: "mimicd - real-time document synchronization server",
	Long: `mimicd is the server-side engine of a multi-user real-time document
synchronization service: it accepts WebSocket connections scoped to a
document id, orders and broadcasts transactions, and persists them durably
across a write-ahead log and periodic snapshots.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default: ./mimic.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

func configFile() string {
	return cfgFile
}
