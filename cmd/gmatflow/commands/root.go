package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// errViolations marks a strict lint failure so main can exit with a
// distinct status.
var errViolations = errors.New("scenario has error violations")

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

// ExitCode maps a command error to a process exit status: 2 for lint
// failures, 1 for everything else.
func ExitCode(err error) int {
	if errors.Is(err, errViolations) {
		return 2
	}
	return 1
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gmatflow",
		Short: "gmatflow - GMAT mission pipeline",
		Long: `gmatflow turns a plain-text mission scenario into a GMAT script, runs the
GMAT console on it and charts the propagated orbit.

Features:
  - Scenario linting with CUE and OPA/Rego policies
  - Starlark overrides for parameter sweeps
  - Local or SSH-hosted GMAT consoles
  - Trajectory, velocity, speed and radius charts
  - Run history in SQLite`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default ./gmatflow.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newTranspileCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newPlotCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
