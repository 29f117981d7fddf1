package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "anchor",
	Short: "Anchor - container and volume convergence agent",
	Long: `Anchor is a per-node agent that converges containers and data volumes
toward a desired cluster configuration: it continuously discovers what is
running locally, diffs it against the desired state, and applies the
minimal safely-ordered set of changes.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Anchor version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
}
