// Package main implements the beacon CLI.
//
// beacon runs the telemetry enrichment pipeline as a sidecar process and
// offers one-shot commands for inspecting remote config and session state.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Tests build a fresh tree per case.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "beacon",
		Short: "Client-side telemetry enrichment and filtering",
		Long: `beacon enriches spans and log records with session, screen and device
context, drops internal diagnostics before export, and keeps a remote
interaction config in sync.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/beacon/config.yaml)")

	root.AddCommand(
		newRunCmd(&configPath),
		newFetchConfigCmd(),
		newSessionCmd(&configPath),
		newVersionCmd(),
	)
	return root
}
