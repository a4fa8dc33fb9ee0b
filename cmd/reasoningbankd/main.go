// Package main implements the reasoningbank CLI for operating the
// episodic memory store.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is the optional YAML config file.
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reasoningbankd",
	Short: "Episodic memory service for autonomous agents",
	Long: `reasoningbankd manages an agent's episodic memory: it retrieves the
most relevant prior strategy before a task, persists trajectories after
tasks, and consolidates finished sessions into compact summaries.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(metricsCmd)
}
