package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Plan compiler & runner for agent pipelines",
	Long: `Weft compiles task dependency graphs into finite, auditable state
machines and runs them against agent executors.

A plan file lists tasks with their dependencies. Weft partitions the
graph into serial chains and parallel batches, compiles the partition
into an explicit state machine with CONTINUE/ERROR transitions, and can
interpret the machine directly or emit it as JSON for inspection.

Core capabilities:
- Deterministic compilation: the same plan always yields the same machine
- Parallel fan-out with join barriers, serial chains kept strictly ordered
- Any task failure routes to a single failure state
- Machine snapshots stored and content-hashed for diffing between compiles`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
