package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/gmatflow/gmatflow/pkg/gmat"
	"github.com/gmatflow/gmatflow/pkg/pipeline"
	"github.com/gmatflow/gmatflow/pkg/stores"
)

func newRunCommand() *cobra.Command {
	var (
		scenarioPath  string
		overridesPath string
		reportPath    string
		skipEngine    bool
		remote        bool
		strict        bool
		extended      bool
		noPlots       bool
		metricsFile   string
		policyDirs    []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline on a scenario",
		Long: `Run every stage on a scenario: parse, lint, transpile, engine, load and
plot. Each run is recorded in the history database.

With --skip-engine the report from a previous run (or --report) is charted
without invoking GMAT.`,
		Example: `  # Propagate the workspace scenario
  gmatflow run

  # Fail on error-severity lint findings
  gmatflow run --strict

  # Use the configured SSH host
  gmatflow run --remote

  # Re-plot an existing report
  gmatflow run --skip-engine --report data/output/DefaultReportFile.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			tel, ctx, err := startTelemetry(cmd.Context(), cfg, "", metricsFile)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)
			logger := tel.Logger.Zerolog()

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var engine gmat.Engine
			if !skipEngine {
				engine, err = newEngine(cfg, remote, logger)
				if err != nil {
					return err
				}
			}

			policies, err := newPolicyEngine(ctx, cfg, policyDirs, logger)
			if err != nil {
				return err
			}

			p, err := newPipeline(cfg, engine, store, policies, logger)
			if err != nil {
				return err
			}

			req := baseRequest(cfg)
			if scenarioPath != "" {
				req.ScenarioPath = scenarioPath
			}
			req.OverridesPath = overridesPath
			req.ReportPath = reportPath
			req.SkipEngine = skipEngine
			req.Strict = strict || cfg.Policy.Strict
			req.Extended = extended || cfg.Transpile.Extended
			if noPlots {
				req.PlotDir = ""
			}
			req.Metadata = map[string]string{"command": "run"}
			if remote || cfg.GMAT.Remote.Enabled {
				req.Metadata["engine"] = "remote"
			}

			result, runErr := p.Run(ctx, req)
			if result == nil {
				return runErr
			}

			if jsonOutput {
				if err := printJSON(result); err != nil {
					return err
				}
			} else {
				printResult(result)
			}

			var pe *pipeline.Error
			if errors.As(runErr, &pe) && pe.Code == pipeline.ErrCodePolicy {
				return fmt.Errorf("%w: %v", errViolations, runErr)
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario file (default from config)")
	cmd.Flags().StringVar(&overridesPath, "overrides", "", "Starlark script applied to the scenario")
	cmd.Flags().StringVar(&reportPath, "report", "", "report to load (default: the engine output)")
	cmd.Flags().BoolVar(&skipEngine, "skip-engine", false, "load an existing report instead of running GMAT")
	cmd.Flags().BoolVar(&remote, "remote", false, "run GMAT on the configured SSH host")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on error-severity policy violations")
	cmd.Flags().BoolVar(&extended, "extended", false, "write the supplementary script statements")
	cmd.Flags().BoolVar(&noPlots, "no-plots", false, "skip chart rendering")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write a Prometheus textfile snapshot after the run")
	cmd.Flags().StringSliceVar(&policyDirs, "policies", nil, "extra policy directories")

	return cmd
}

func printResult(result *pipeline.Result) {
	fmt.Printf("Run %s: %s in %s\n\n", result.RunID, result.Status, result.Duration.Round(time.Millisecond))

	for _, s := range result.Stages {
		mark := "✓"
		switch s.Status {
		case stores.StageStatusFailed:
			mark = "✗"
		case stores.StageStatusSkipped:
			mark = "-"
		}
		line := fmt.Sprintf("  %s %-10s %s", mark, s.Name, s.Status)
		if s.Error != "" {
			line += ": " + s.Error
		}
		fmt.Println(line)
	}
	fmt.Println()

	printViolations(os.Stdout, result.Violations)

	if result.Mission != nil {
		fmt.Printf("\nMission: %s\n", result.Mission.Summary())
	}
	if result.Summary.Rows > 0 {
		s := result.Summary
		fmt.Printf("Report:  %s (%d rows, %.3f days)\n", result.ReportPath, s.Rows, s.ElapsedDays)
		fmt.Printf("Radius:  %.1f to %.1f km\n", s.MinRadius, s.MaxRadius)
		fmt.Printf("Speed:   %.4f to %.4f km/s\n", s.MinSpeed, s.MaxSpeed)
	}
	if len(result.Plots) > 0 {
		fmt.Printf("Charts:  %s\n", filepath.Dir(result.Plots[0]))
		for _, f := range result.Plots {
			fmt.Printf("  %s\n", filepath.Base(f))
		}
	}
}
