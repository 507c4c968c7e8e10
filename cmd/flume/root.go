package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flume",
	Short: "Role-based workflow orchestrator",
	Long: `Flume decomposes a task description into a workflow of role-scoped
steps (research, build, test, review, document), runs them sequentially
or concurrently as their dependencies allow, and forwards a compacted
context between steps to keep each backend call small.

Core capabilities:
- Classifies task type and complexity from the description
- Assembles a dependency graph of role steps from templates
- Runs independent steps concurrently under a parallelism ceiling
- Compacts step output into a bounded context for downstream steps
- Persists task and step state to SQLite for later inspection`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
