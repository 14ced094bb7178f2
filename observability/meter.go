package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// initMeter installs an OTLP/HTTP meter provider as the otel global.
func initMeter(ctx context.Context, cfg Config) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.MetricInterval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.MetricInterval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the engine's instruments.
type Metrics struct {
	itemsRead      metric.Int64Counter
	itemsProcessed metric.Int64Counter
	itemsWritten   metric.Int64Counter
	checkpoints    metric.Int64Counter
	retries        metric.Int64Counter
	errorTotal     metric.Int64Counter
	nodeDuration   metric.Float64Histogram
	runsActive     metric.Int64UpDownCounter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.itemsRead, "items.read", "Items read from sources"},
		{&m.itemsProcessed, "items.processed", "Items handled by transform and switch nodes"},
		{&m.itemsWritten, "items.written", "Items durably written by sinks"},
		{&m.checkpoints, "checkpoint.advanced", "Checkpoint advances per source"},
		{&m.retries, "retries.total", "Retried provider calls"},
		{&m.errorTotal, "errors.total", "Node failures by class"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}

	m.nodeDuration, err = meter.Float64Histogram("node.duration",
		metric.WithDescription("Duration of one node invocation in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating node.duration histogram: %w", err)
	}
	m.runsActive, err = meter.Int64UpDownCounter("runs.active",
		metric.WithDescription("Runs currently executing"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating runs.active counter: %w", err)
	}
	return &m, nil
}

func nodeAttrs(nodeID, kind string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("node_id", nodeID),
		attribute.String("node_kind", kind),
	)
}

// ItemsRead counts items pulled from a source.
func (m *Metrics) ItemsRead(ctx context.Context, nodeID string, n int) {
	m.itemsRead.Add(ctx, int64(n), nodeAttrs(nodeID, "source"))
}

// ItemProcessed counts one input handled by a transform or switch.
func (m *Metrics) ItemProcessed(ctx context.Context, nodeID, kind string) {
	m.itemsProcessed.Add(ctx, 1, nodeAttrs(nodeID, kind))
}

// ItemsWritten counts items written by a sink.
func (m *Metrics) ItemsWritten(ctx context.Context, nodeID string, n int) {
	m.itemsWritten.Add(ctx, int64(n), nodeAttrs(nodeID, "sink"))
}

// CheckpointAdvanced counts a checkpoint report for a source.
func (m *Metrics) CheckpointAdvanced(ctx context.Context, nodeID string) {
	m.checkpoints.Add(ctx, 1, nodeAttrs(nodeID, "source"))
}

// Retried counts a retried provider call.
func (m *Metrics) Retried(ctx context.Context, nodeID, kind string) {
	m.retries.Add(ctx, 1, nodeAttrs(nodeID, kind))
}

// Error counts a node failure.
func (m *Metrics) Error(ctx context.Context, nodeID, kind, class string) {
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node_id", nodeID),
		attribute.String("node_kind", kind),
		attribute.String("class", class),
	))
}

// NodeDuration records how long one invocation took.
func (m *Metrics) NodeDuration(ctx context.Context, nodeID, kind string, d time.Duration) {
	m.nodeDuration.Record(ctx, d.Seconds(), nodeAttrs(nodeID, kind))
}

// RunStarted and RunFinished track the number of executing runs.
func (m *Metrics) RunStarted(ctx context.Context)  { m.runsActive.Add(ctx, 1) }
func (m *Metrics) RunFinished(ctx context.Context) { m.runsActive.Add(ctx, -1) }
