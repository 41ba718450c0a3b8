package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gmatflow/gmatflow/pkg/gmat"
	"github.com/gmatflow/gmatflow/pkg/plot"
	"github.com/gmatflow/gmatflow/pkg/policy"
	"github.com/gmatflow/gmatflow/pkg/report"
	"github.com/gmatflow/gmatflow/pkg/scenario"
	"github.com/gmatflow/gmatflow/pkg/stores"
	"github.com/gmatflow/gmatflow/pkg/telemetry"
	"github.com/gmatflow/gmatflow/pkg/transpiler"
)

// Stage names in execution order.
const (
	StageParse     = "parse"
	StageLint      = "lint"
	StageTranspile = "transpile"
	StageEngine    = "engine"
	StageLoad      = "load"
	StagePlot      = "plot"
)

// Stages lists every stage in execution order.
var Stages = []string{StageParse, StageLint, StageTranspile, StageEngine, StageLoad, StagePlot}

// Artifact kinds.
const (
	ArtifactScript = "script"
	ArtifactReport = "report"
	ArtifactPlot   = "plot"
)

// Config wires a pipeline to its collaborators.
type Config struct {
	// Engine runs scripts. It may be nil when every request skips the engine.
	Engine gmat.Engine

	// Store records runs, stages, events and artifacts. Nil disables
	// persistence.
	Store stores.Store

	// Policies lints missions. Nil uses the built-in policies.
	Policies *policy.Engine

	// Schema validates scenario values. Nil uses the built-in schema.
	Schema *scenario.Schema

	// Overrides evaluates Starlark override scripts. Nil uses a default
	// evaluator.
	Overrides *scenario.Overrides

	// EngineRetries is how many times a transient engine failure is retried.
	EngineRetries int

	// RetryDelay is the base delay of the exponential retry backoff.
	RetryDelay time.Duration

	Logger zerolog.Logger
}

// Request describes one pipeline run.
type Request struct {
	// ScenarioPath is the scenario file to read.
	ScenarioPath string

	// OverridesPath is an optional Starlark script applied after parsing.
	OverridesPath string

	// ScriptPath is where the generated script is written.
	ScriptPath string

	// OutputDir receives the engine report.
	OutputDir string

	// ReportPath is the report to load. It defaults to the report file in
	// OutputDir and must already exist when SkipEngine is set.
	ReportPath string

	// PlotDir receives the charts. Empty skips the plot stage.
	PlotDir    string
	Theme      plot.Theme
	PlotWidth  int
	PlotHeight int

	SkipEngine bool

	// Strict fails the run on error-severity lint violations.
	Strict bool

	// Extended enables the supplementary script statements.
	Extended bool

	// Metadata is stored with the run.
	Metadata map[string]string
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Name     string             `json:"name" yaml:"name"`
	Status   stores.StageStatus `json:"status" yaml:"status"`
	Duration time.Duration      `json:"duration" yaml:"duration"`
	Error    string             `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result is the outcome of a run.
type Result struct {
	RunID      string              `json:"run_id" yaml:"run_id"`
	Status     stores.RunStatus    `json:"status" yaml:"status"`
	ScriptPath string              `json:"script_path" yaml:"script_path"`
	ReportPath string              `json:"report_path,omitempty" yaml:"report_path,omitempty"`
	Plots      []string            `json:"plots,omitempty" yaml:"plots,omitempty"`
	Mission    *transpiler.Mission `json:"mission,omitempty" yaml:"-"`
	Summary    report.Summary      `json:"summary" yaml:"summary"`
	Violations []policy.Violation  `json:"violations" yaml:"violations"`
	Stages     []StageResult       `json:"stages" yaml:"stages"`
	Duration   time.Duration       `json:"duration" yaml:"duration"`
}

// Pipeline runs scenarios through parse, lint, transpile, engine, load and
// plot.
type Pipeline struct {
	engine        gmat.Engine
	store         stores.Store
	policies      *policy.Engine
	schema        *scenario.Schema
	overrides     *scenario.Overrides
	engineRetries int
	retryDelay    time.Duration
	logger        zerolog.Logger
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	p := &Pipeline{
		engine:        cfg.Engine,
		store:         cfg.Store,
		policies:      cfg.Policies,
		schema:        cfg.Schema,
		overrides:     cfg.Overrides,
		engineRetries: cfg.EngineRetries,
		retryDelay:    cfg.RetryDelay,
		logger:        cfg.Logger.With().Str("component", "pipeline").Logger(),
	}

	if p.policies == nil {
		eng, err := policy.NewEngine(cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create policy engine: %w", err)
		}
		p.policies = eng
	}
	if p.schema == nil {
		schema, err := scenario.NewSchema()
		if err != nil {
			return nil, fmt.Errorf("failed to compile scenario schema: %w", err)
		}
		p.schema = schema
	}
	if p.overrides == nil {
		p.overrides = scenario.NewOverrides(0)
	}
	if p.retryDelay <= 0 {
		p.retryDelay = time.Second
	}

	return p, nil
}

// run carries state between stages.
type run struct {
	id      string
	req     Request
	result  *Result
	sc      *scenario.Scenario
	mission *transpiler.Mission
	table   *report.Table
}

func (r *Request) validate(hasEngine bool) error {
	if r.ScenarioPath == "" {
		return errors.New("scenario path is required")
	}
	if r.ScriptPath == "" {
		return errors.New("script path is required")
	}
	if r.OutputDir == "" && r.ReportPath == "" {
		return errors.New("output directory or report path is required")
	}
	if !r.SkipEngine && !hasEngine {
		return errors.New("no engine configured; skip the engine stage or configure a console")
	}
	return nil
}

// Run executes every stage in order and stops at the first failure. The
// returned Result is populated up to the failing stage; failures are
// *Error values.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(p.engine != nil); err != nil {
		return nil, NewPermanentError("invalid request", err).WithCode(ErrCodeValidation)
	}
	if req.ReportPath == "" {
		req.ReportPath = filepath.Join(req.OutputDir, gmat.ReportFileName)
	}

	r := &run{
		id:  uuid.New().String(),
		req: req,
		result: &Result{
			ScriptPath: req.ScriptPath,
			Violations: []policy.Violation{},
		},
	}
	r.result.RunID = r.id

	logger := p.logger.With().Str("run_id", r.id).Logger()
	started := time.Now()

	ctx = telemetry.WithRunContext(ctx, r.id, req.ScenarioPath)
	p.createRun(ctx, r, started)

	logger.Info().Str("scenario", req.ScenarioPath).Msg("Run started")

	stages := []struct {
		name string
		fn   func(context.Context, *run) (bool, error)
	}{
		{StageParse, p.parse},
		{StageLint, p.lint},
		{StageTranspile, p.transpile},
		{StageEngine, p.runEngine},
		{StageLoad, p.load},
		{StagePlot, p.plot},
	}

	var runErr *Error
	for seq, st := range stages {
		if err := ctx.Err(); err != nil {
			runErr = Classify(st.name, err)
			break
		}
		if err := p.runStage(ctx, r, seq, st.name, st.fn); err != nil {
			runErr = Classify(st.name, err)
			break
		}
	}

	r.result.Duration = time.Since(started)

	status := stores.RunStatusCompleted
	var errMsg *string
	var endErr error
	if runErr != nil {
		status = stores.RunStatusFailed
		if runErr.Class == ErrorClassCancelled {
			status = stores.RunStatusCancelled
		}
		msg := runErr.Error()
		errMsg = &msg
		endErr = runErr

		if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
			tel.Metrics.RecordError(string(runErr.Class), runErr.Code)
		}
		logger.Error().Err(runErr).
			Str("class", string(runErr.Class)).
			Str("code", runErr.Code).
			Msg("Run failed")
	} else {
		logger.Info().
			Dur("duration", r.result.Duration).
			Int("violations", len(r.result.Violations)).
			Msg("Run completed")
	}
	r.result.Status = status

	if p.store != nil {
		if err := p.store.UpdateRunStatus(context.WithoutCancel(ctx), r.id, status, errMsg); err != nil {
			logger.Warn().Err(err).Msg("Failed to record run status")
		}
	}
	telemetry.EndRunContext(ctx, r.id, string(status), endErr)

	if runErr != nil {
		return r.result, runErr
	}
	return r.result, nil
}

func (p *Pipeline) createRun(ctx context.Context, r *run, started time.Time) {
	if p.store == nil {
		return
	}

	meta := map[string]interface{}{
		"strict":      r.req.Strict,
		"extended":    r.req.Extended,
		"skip_engine": r.req.SkipEngine,
		"script_path": r.req.ScriptPath,
	}
	if r.req.OverridesPath != "" {
		meta["overrides"] = r.req.OverridesPath
	}
	for k, v := range r.req.Metadata {
		meta[k] = v
	}
	data, err := json.Marshal(meta)
	if err != nil {
		data = []byte("{}")
	}

	if err := p.store.CreateRun(context.WithoutCancel(ctx), &stores.Run{
		ID:           r.id,
		ScenarioPath: r.req.ScenarioPath,
		Status:       stores.RunStatusRunning,
		StartedAt:    started,
		Metadata:     string(data),
	}); err != nil {
		p.logger.Warn().Err(err).Str("run_id", r.id).Msg("Failed to record run")
	}
}

// runStage executes fn as stage name. fn reports false when the stage was
// skipped.
func (p *Pipeline) runStage(ctx context.Context, r *run, seq int, name string, fn func(context.Context, *run) (bool, error)) error {
	stageCtx := telemetry.WithStageContext(ctx, r.id, name)
	persistCtx := context.WithoutCancel(ctx)
	started := time.Now()

	stageID := uuid.New().String()
	if p.store != nil {
		if err := p.store.CreateStage(persistCtx, &stores.Stage{
			ID:        stageID,
			RunID:     r.id,
			Name:      name,
			Seq:       seq,
			Status:    stores.StageStatusRunning,
			StartedAt: started,
		}); err != nil {
			p.logger.Warn().Err(err).Str("stage", name).Msg("Failed to record stage")
			stageID = ""
		}
	}

	ran, err := fn(stageCtx, r)
	duration := time.Since(started)

	status := stores.StageStatusCompleted
	switch {
	case err != nil:
		status = stores.StageStatusFailed
	case !ran:
		status = stores.StageStatusSkipped
	}

	telemetry.EndStageContext(stageCtx, r.id, name, string(status), err)

	sr := StageResult{Name: name, Status: status, Duration: duration}
	var errMsg *string
	if err != nil {
		msg := err.Error()
		sr.Error = msg
		errMsg = &msg
	}
	r.result.Stages = append(r.result.Stages, sr)

	if p.store != nil && stageID != "" {
		if ferr := p.store.FinishStage(persistCtx, stageID, status, duration, errMsg); ferr != nil {
			p.logger.Warn().Err(ferr).Str("stage", name).Msg("Failed to finish stage")
		}
		level := stores.EventLevelInfo
		message := fmt.Sprintf("Stage %s %s in %s", name, status, duration.Round(time.Millisecond))
		if err != nil {
			level = stores.EventLevelError
			message = fmt.Sprintf("Stage %s failed: %v", name, err)
		}
		p.appendEvent(persistCtx, r.id, name, level, message, nil)
	}

	p.logger.Debug().
		Str("run_id", r.id).
		Str("stage", name).
		Str("status", string(status)).
		Dur("duration", duration).
		Msg("Stage finished")

	return err
}

func (p *Pipeline) appendEvent(ctx context.Context, runID, stage string, level stores.EventLevel, message string, details map[string]interface{}) {
	event := &stores.Event{
		RunID:   &runID,
		Stage:   &stage,
		Level:   level,
		Message: message,
	}
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			s := string(data)
			event.Details = &s
		}
	}
	if err := p.store.AppendEvent(ctx, event); err != nil {
		p.logger.Warn().Err(err).Str("stage", stage).Msg("Failed to append event")
	}
}

func (p *Pipeline) parse(ctx context.Context, r *run) (bool, error) {
	sc, err := scenario.ParseFile(r.req.ScenarioPath)
	if err != nil {
		return true, err
	}

	if r.req.OverridesPath != "" {
		sc, err = p.overrides.ApplyFile(ctx, r.req.OverridesPath, sc)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return true, err
			}
			return true, NewPermanentError("overrides failed", err).WithCode(ErrCodeOverrides)
		}
	}

	r.sc = sc
	return true, nil
}

func (p *Pipeline) lint(ctx context.Context, r *run) (bool, error) {
	opts := transpiler.Options{Extended: r.req.Extended}
	r.mission = transpiler.Resolve(r.sc, opts)
	r.result.Mission = r.mission

	lint, err := p.policies.Evaluate(ctx, policy.NewInput(r.sc, r.mission, p.schema.Validate(r.sc)))
	if err != nil {
		return true, err
	}
	r.result.Violations = lint.Violations

	tel := telemetry.FromTelemetryContext(ctx)
	for _, v := range lint.Violations {
		if tel != nil {
			tel.Metrics.RecordViolation(string(v.Severity))
			_ = tel.Events.PublishPolicyViolation(r.id, v.Policy, string(v.Severity), v.Message)
		}
		if p.store != nil {
			p.appendEvent(context.WithoutCancel(ctx), r.id, StageLint, eventLevel(v.Severity), v.String(), map[string]interface{}{
				"policy":   v.Policy,
				"severity": v.Severity,
				"field":    v.Field,
			})
		}
	}
	for _, w := range lint.Warnings {
		p.logger.Warn().Str("run_id", r.id).Msg(w)
	}

	if r.req.Strict && lint.HasErrors() {
		return true, NewPermanentError(
			fmt.Sprintf("scenario has %d error violation(s)", lint.Count(policy.SeverityError)+lint.Count(policy.SeverityCritical)),
			nil,
		).WithCode(ErrCodePolicy)
	}
	return true, nil
}

func eventLevel(s policy.Severity) stores.EventLevel {
	switch {
	case s.Blocking():
		return stores.EventLevelError
	case s == policy.SeverityInfo:
		return stores.EventLevelInfo
	default:
		return stores.EventLevelWarning
	}
}

func (p *Pipeline) transpile(ctx context.Context, r *run) (bool, error) {
	m, err := transpiler.WriteScript(r.req.ScriptPath, r.sc, transpiler.Options{Extended: r.req.Extended})
	if err != nil {
		return true, err
	}
	r.mission = m
	r.result.Mission = m

	p.logger.Info().
		Str("run_id", r.id).
		Str("script", r.req.ScriptPath).
		Str("mission", m.Summary()).
		Msg("Script written")

	p.recordArtifact(ctx, r, StageTranspile, ArtifactScript, r.req.ScriptPath)
	return true, nil
}

func (p *Pipeline) runEngine(ctx context.Context, r *run) (bool, error) {
	if r.req.SkipEngine {
		return false, nil
	}

	var lastErr error
	for attempt := 0; attempt <= p.engineRetries; attempt++ {
		reportPath, err := p.engine.Run(ctx, r.req.ScriptPath, r.req.OutputDir)
		if err == nil {
			r.req.ReportPath = reportPath
			r.result.ReportPath = reportPath
			p.recordArtifact(ctx, r, StageEngine, ArtifactReport, reportPath)
			return true, nil
		}

		lastErr = Classify(StageEngine, err)
		if !IsRetryable(lastErr) || attempt >= p.engineRetries {
			break
		}

		delay := p.backoff(attempt)
		p.logger.Warn().Err(err).
			Str("run_id", r.id).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Engine failed, retrying")
		if p.store != nil {
			p.appendEvent(context.WithoutCancel(ctx), r.id, StageEngine, stores.EventLevelWarning,
				fmt.Sprintf("Retrying after failure (attempt %d/%d)", attempt+1, p.engineRetries+1), nil)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}

	return true, lastErr
}

// backoff doubles the base delay on each attempt, capped at one minute.
func (p *Pipeline) backoff(attempt int) time.Duration {
	delay := p.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
	if delay > time.Minute {
		delay = time.Minute
	}
	return delay
}

func (p *Pipeline) load(ctx context.Context, r *run) (bool, error) {
	table, err := report.Load(r.req.ReportPath)
	if err != nil {
		return true, err
	}
	r.table = table
	r.result.ReportPath = r.req.ReportPath
	r.result.Summary = table.Summarize()

	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		tel.Metrics.SetReportRows(table.Len())
	}
	if r.req.SkipEngine {
		p.recordArtifact(ctx, r, StageLoad, ArtifactReport, r.req.ReportPath)
	}

	p.logger.Info().
		Str("run_id", r.id).
		Int("rows", r.result.Summary.Rows).
		Float64("elapsed_days", r.result.Summary.ElapsedDays).
		Msg("Report loaded")
	return true, nil
}

func (p *Pipeline) plot(ctx context.Context, r *run) (bool, error) {
	if r.req.PlotDir == "" {
		return false, nil
	}

	renderer, err := plot.New(plot.Config{
		Dir:    r.req.PlotDir,
		Theme:  r.req.Theme,
		Width:  r.req.PlotWidth,
		Height: r.req.PlotHeight,
	}, p.logger)
	if err != nil {
		return true, NewPermanentError("invalid plot settings", err).WithCode(ErrCodeValidation)
	}

	burnTimes := scenario.ScanBurnTimes(strings.NewReader(r.sc.String()))
	files, err := renderer.RenderAll(ctx, r.table, burnTimes)
	if err != nil {
		return true, err
	}
	r.result.Plots = files

	for _, f := range files {
		p.recordArtifact(ctx, r, StagePlot, ArtifactPlot, f)
	}
	return true, nil
}

func (p *Pipeline) recordArtifact(ctx context.Context, r *run, stage, kind, path string) {
	if p.store == nil {
		return
	}

	sum, size, err := fingerprint(path)
	if err != nil {
		p.logger.Warn().Err(err).Str("path", path).Msg("Failed to fingerprint artifact")
		return
	}

	if err := p.store.RecordArtifact(context.WithoutCancel(ctx), &stores.Artifact{
		ID:     uuid.New().String(),
		RunID:  r.id,
		Stage:  stage,
		Kind:   kind,
		Path:   path,
		SHA256: sum,
		Size:   size,
	}); err != nil {
		p.logger.Warn().Err(err).Str("path", path).Msg("Failed to record artifact")
	}
}

// fingerprint returns the hex SHA-256 and size of a file.
func fingerprint(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
