// Package observability wires OpenTelemetry tracing and metrics for flowkit.
//
// Tracing and metrics are off unless Config.Enabled is set; in that case the
// otel global providers stay no-op and every instrument below is free.
//
//	shutdown, err := observability.Init(ctx, cfg.Observability)
//	defer shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter(observability.InstrumentationName))
//	ctx, span := observability.StartSpan(ctx, observability.SpanNode("transform"))
//	defer span.End()
//	metrics.ItemProcessed(ctx, "chunker", "transform")
package observability
