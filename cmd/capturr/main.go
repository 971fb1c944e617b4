package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds the daemon connection flags for client commands.
type APIFlags struct {
	URL string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	apiFlags := &APIFlags{}

	root := &cobra.Command{
		Use:   "capturr",
		Short: "Schedule-driven media capture daemon",
		Long: `Capturr records media streams on a weekly schedule: each source has
recording windows; when a window opens an ffmpeg copy-mode capture is
launched for the window's duration, supervised, retried on failure, and
the outcome is reported via webhook.

Examples:
  capturr serve --config=capturr.toml
  capturr validate --config=capturr.toml
  capturr status --api-url=http://127.0.0.1:8391/api
  capturr stop --source=Radio`,
	}

	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "capturr.toml", "path to TOML config file")

	root.AddCommand(
		createServeCommand(globalFlags),
		createValidateCommand(globalFlags),
		createStatusCommand(apiFlags),
		createStopCommand(apiFlags),
		createTestNotifyCommand(globalFlags),
	)
	return root
}
