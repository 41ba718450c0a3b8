// Package telemetry instruments pipeline runs.
//
// It combines four pieces:
//
//   - Logger wraps zerolog and carries run_id and stage fields through the
//     context.
//   - Tracer creates one OpenTelemetry span per run and one per stage. Spans
//     go to stdout, an OTLP collector, or nowhere.
//   - Metrics keeps Prometheus counters and histograms in a private
//     registry. They can be served over HTTP or written as a
//     node_exporter textfile.
//   - EventPublisher fans run and stage events out to subscribers.
//
// A typical run is bracketed like this:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = telemetry.WithRunContext(tel.WithContext(ctx), runID, scenarioPath)
//	stageCtx := telemetry.WithStageContext(ctx, runID, "engine")
//	err = runEngine(stageCtx)
//	telemetry.EndStageContext(stageCtx, runID, "engine", status, err)
//	telemetry.EndRunContext(ctx, runID, status, err)
package telemetry
