package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gmatflow/gmatflow/pkg/gmat"
	"github.com/gmatflow/gmatflow/pkg/pipeline"
	"github.com/gmatflow/gmatflow/pkg/telemetry"
)

// watchDelay coalesces editor save bursts into one run.
const watchDelay = 500 * time.Millisecond

func newWatchCommand() *cobra.Command {
	var (
		scenarioPath  string
		overridesPath string
		skipEngine    bool
		remote        bool
		metricsAddr   string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the pipeline whenever the scenario changes",
		Long: `Run the pipeline once, then again every time the scenario or the
overrides script is saved. Policy directories are reloaded on change too.

With --metrics-addr the Prometheus metrics are served at /metrics for as
long as the command runs.`,
		Example: `  # Watch the workspace scenario
  gmatflow watch

  # Expose metrics while iterating
  gmatflow watch --metrics-addr :9464`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			tel, ctx, err := startTelemetry(cmd.Context(), cfg, metricsAddr, "")
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)
			logger := tel.Logger.Zerolog()

			if addr, err := tel.Metrics.StartMetricsServer(ctx); err != nil {
				return err
			} else if addr != "" {
				log.Info().Str("addr", addr).Msg("Serving metrics")
			}

			// Surface lint findings as they happen; the result table only
			// prints once the run ends.
			tel.Events.Subscribe(func(e telemetry.Event) {
				log.Warn().Str("run_id", e.RunID).Msg(e.Message)
			}, telemetry.FilterByType(telemetry.EventTypePolicyViolation))

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

			policies, err := newPolicyEngine(ctx, cfg, nil, logger)
			if err != nil {
				return err
			}
			if err := policies.Watch(ctx); err != nil {
				log.Warn().Err(err).Msg("Policy hot reload disabled")
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
			req.SkipEngine = skipEngine
			req.Metadata = map[string]string{"command": "watch"}

			watched := []string{req.ScenarioPath}
			if overridesPath != "" {
				watched = append(watched, overridesPath)
			}

			return watchAndRun(ctx, p, req, watched)
		},
	}

	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario file (default from config)")
	cmd.Flags().StringVar(&overridesPath, "overrides", "", "Starlark script applied to the scenario")
	cmd.Flags().BoolVar(&skipEngine, "skip-engine", false, "re-lint and re-transpile only")
	cmd.Flags().BoolVar(&remote, "remote", false, "run GMAT on the configured SSH host")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

// watchAndRun runs req once and again after every debounced change to one
// of files, until ctx is cancelled. Runs never overlap.
func watchAndRun(ctx context.Context, p *pipeline.Pipeline, req pipeline.Request, files []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the parent directories.
	targets := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	trigger := make(chan struct{}, 1)
	trigger <- struct{}{}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			log.Info().Msg("Stopped watching")
			return nil

		case <-trigger:
			runOnce(ctx, p, req)
			log.Info().Strs("files", files).Msg("Waiting for changes")

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(event.Name)
			if !targets[abs] || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("File changed")

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDelay, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

func runOnce(ctx context.Context, p *pipeline.Pipeline, req pipeline.Request) {
	result, err := p.Run(ctx, req)
	if result == nil {
		log.Error().Err(err).Msg("Run rejected")
		return
	}
	if jsonOutput {
		if perr := printJSON(result); perr != nil {
			log.Error().Err(perr).Msg("Failed to print result")
		}
	} else {
		printResult(result)
	}
	if err != nil && !pipeline.IsCancelled(err) {
		log.Error().Err(err).Msg("Run failed; waiting for the next change")
	}
}
