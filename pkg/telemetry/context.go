package telemetry

import (
	"context"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles logging, tracing, metrics and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a telemetry instance from configuration.
func NewTelemetry(cfg *Config, extra ...sdktrace.TracerProviderOption) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	return newTelemetry(cfg, logger, extra...)
}

// NewTelemetryWithLogger creates a telemetry instance that logs through logger.
func NewTelemetryWithLogger(cfg *Config, logger *Logger, extra ...sdktrace.TracerProviderOption) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newTelemetry(cfg, logger, extra...)
}

func newTelemetry(cfg *Config, logger *Logger, extra ...sdktrace.TracerProviderOption) (*Telemetry, error) {
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, extra...)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: NewMetrics(cfg.Metrics),
		Events:  NewEventPublisher(cfg.Events),
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown delivers pending events, flushes spans and writes the metrics
// textfile when one is configured.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}
	if err := t.Tracer.Shutdown(ctx); err != nil {
		return err
	}
	return t.Metrics.WriteTextfile(t.Config.Metrics.TextfilePath)
}

// spanKey holds the span and timer of the innermost run or stage.
type spanKey struct{ kind string }

type spanState struct {
	span  trace.Span
	timer *Timer
}

var (
	runKey   = spanKey{"run"}
	stageKey = spanKey{"stage"}
)

// WithRunContext starts a run span, counts the run and attaches a logger
// carrying run_id.
func WithRunContext(ctx context.Context, runID, scenario string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	spanCtx, span := tel.Tracer.StartRunSpan(ctx, runID, scenario)

	logger := tel.Logger.WithRunID(runID)
	if span.SpanContext().IsValid() {
		logger = logger.WithField("trace_id", span.SpanContext().TraceID().String())
	}
	spanCtx = logger.WithContext(spanCtx)

	tel.Metrics.RecordRunStarted()
	_ = tel.Events.PublishRunStarted(runID, scenario)

	return context.WithValue(spanCtx, runKey, &spanState{span: span, timer: NewTimer()})
}

// EndRunContext closes the run span and records its outcome.
func EndRunContext(ctx context.Context, runID, status string, err error) time.Duration {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return 0
	}

	var duration time.Duration
	if st, ok := ctx.Value(runKey).(*spanState); ok {
		duration = st.timer.Duration()
		st.span.SetAttributes(AttrRunStatus.String(status))
		endSpan(st.span, err)
	}

	tel.Metrics.RecordRunCompleted(status, duration)
	if err != nil {
		_ = tel.Events.PublishRunFailed(runID, err.Error())
	} else {
		_ = tel.Events.PublishRunCompleted(runID, duration)
	}
	return duration
}

// WithStageContext starts a stage span under the current run and attaches
// a logger carrying the stage name.
func WithStageContext(ctx context.Context, runID, stage string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	spanCtx, span := tel.Tracer.StartStageSpan(ctx, runID, stage)
	spanCtx = FromContext(ctx).WithStage(stage).WithContext(spanCtx)

	_ = tel.Events.PublishStage(runID, stage, "started", "Stage "+stage+" started")

	return context.WithValue(spanCtx, stageKey, &spanState{span: span, timer: NewTimer()})
}

// EndStageContext closes the stage span and records its outcome. It
// returns the stage duration.
func EndStageContext(ctx context.Context, runID, stage, status string, err error) time.Duration {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return 0
	}

	var duration time.Duration
	if st, ok := ctx.Value(stageKey).(*spanState); ok {
		duration = st.timer.Duration()
		endSpan(st.span, err)
	}

	tel.Metrics.RecordStage(stage, status, duration)

	message := "Stage " + stage + " " + status
	if err != nil {
		message += ": " + err.Error()
	}
	_ = tel.Events.PublishStage(runID, stage, status, message)
	return duration
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	span.End()
}
