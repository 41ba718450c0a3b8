package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gmatflow/gmatflow/pkg/config"
	"github.com/gmatflow/gmatflow/pkg/gmat"
	"github.com/gmatflow/gmatflow/pkg/pipeline"
	"github.com/gmatflow/gmatflow/pkg/plot"
	"github.com/gmatflow/gmatflow/pkg/policy"
	"github.com/gmatflow/gmatflow/pkg/scenario"
	"github.com/gmatflow/gmatflow/pkg/stores"
	"github.com/gmatflow/gmatflow/pkg/telemetry"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("config", configPath).
		Str("data_dir", cfg.Workspace.DataDir).
		Msg("Configuration loaded")
	return cfg, nil
}

// openStore opens and migrates the run history database.
func openStore(ctx context.Context, cfg *config.Config) (*stores.SQLiteStore, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	store, err := stores.NewSQLiteStore(cfg.StoreSettings())
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// startTelemetry builds telemetry from the config and attaches it to ctx.
func startTelemetry(ctx context.Context, cfg *config.Config, metricsAddr, metricsFile string) (*telemetry.Telemetry, context.Context, error) {
	tc := cfg.TelemetrySettings()
	if verbose {
		tc.Logging.Level = "debug"
	}
	if metricsAddr != "" {
		tc.Metrics.ListenAddress = metricsAddr
	}
	if metricsFile != "" {
		tc.Metrics.TextfilePath = metricsFile
	}

	tel, err := telemetry.NewTelemetry(tc)
	if err != nil {
		return nil, ctx, fmt.Errorf("failed to start telemetry: %w", err)
	}
	return tel, tel.WithContext(ctx), nil
}

func shutdownTelemetry(tel *telemetry.Telemetry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
}

// newEngine returns the remote runner when requested or configured, and a
// local runner on the located console otherwise.
func newEngine(cfg *config.Config, remote bool, logger zerolog.Logger) (gmat.Engine, error) {
	if remote || cfg.GMAT.Remote.Enabled {
		runner, err := gmat.NewRemoteRunner(cfg.RemoteRunnerConfig(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure remote engine: %w", err)
		}
		return runner, nil
	}

	console, err := gmat.Locate(cfg.GMAT.Console)
	if err != nil {
		return nil, err
	}
	return gmat.NewLocalRunner(console, cfg.GMAT.Timeout.Std(), logger), nil
}

// newPolicyEngine loads the built-in policies plus every configured and
// extra policy directory.
func newPolicyEngine(ctx context.Context, cfg *config.Config, extra []string, logger zerolog.Logger) (*policy.Engine, error) {
	engine, err := policy.NewEngine(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy engine: %w", err)
	}

	dirs := append(append([]string{}, cfg.Policy.Dirs...), extra...)
	if len(dirs) > 0 {
		if err := engine.LoadPolicies(ctx, dirs); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

func newPipeline(cfg *config.Config, engine gmat.Engine, store stores.Store, policies *policy.Engine, logger zerolog.Logger) (*pipeline.Pipeline, error) {
	return pipeline.New(pipeline.Config{
		Engine:        engine,
		Store:         store,
		Policies:      policies,
		EngineRetries: cfg.GMAT.Retries,
		RetryDelay:    cfg.GMAT.RetryDelay.Std(),
		Overrides:     scenario.NewOverrides(cfg.Transpile.OverridesTimeout.Std()),
		Logger:        logger,
	})
}

// baseRequest fills a pipeline request from the workspace layout.
func baseRequest(cfg *config.Config) pipeline.Request {
	return pipeline.Request{
		ScenarioPath: cfg.Workspace.Scenario,
		ScriptPath:   cfg.Workspace.Script,
		OutputDir:    cfg.Workspace.OutputDir,
		PlotDir:      cfg.Workspace.PlotDir,
		Theme:        plot.Theme(cfg.Plot.Theme),
		PlotWidth:    cfg.Plot.Width,
		PlotHeight:   cfg.Plot.Height,
		Strict:       cfg.Policy.Strict,
		Extended:     cfg.Transpile.Extended,
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printViolations(w io.Writer, violations []policy.Violation) {
	if len(violations) == 0 {
		fmt.Fprintln(w, "✓ No policy violations")
		return
	}
	fmt.Fprintf(w, "%d policy violation(s):\n", len(violations))
	for _, v := range violations {
		fmt.Fprintf(w, "  %s\n", v.String())
	}
}
