package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of every instrument.
const MeterName = "aaf"

// MetricsRecorder records executor metrics.
// Use NewMetricsRecorder for OpenTelemetry or NoopMetrics when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records one node execution. failureKind is empty
	// when the node succeeded.
	RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, failureKind string)

	// RecordRun records a halted run.
	RecordRun(ctx context.Context, graph, haltReason, errorKind string, duration time.Duration)

	// RecordCheckpoint records a saved checkpoint.
	RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64)
}

type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeFailures   metric.Int64Counter
	runs           metric.Int64Counter
	runLatency     metric.Float64Histogram
	checkpointSize metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.Meter(MeterName))
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	m := &otelMetrics{}
	var err error

	if m.nodeExecutions, err = meter.Int64Counter("aaf.node.executions",
		metric.WithDescription("Number of node executions"),
	); err != nil {
		return nil, err
	}
	if m.nodeLatency, err = meter.Float64Histogram("aaf.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.nodeFailures, err = meter.Int64Counter("aaf.node.failures",
		metric.WithDescription("Number of failures recorded at a node"),
	); err != nil {
		return nil, err
	}
	if m.runs, err = meter.Int64Counter("aaf.run.count",
		metric.WithDescription("Number of workflow runs by halt reason"),
	); err != nil {
		return nil, err
	}
	if m.runLatency, err = meter.Float64Histogram("aaf.run.latency_ms",
		metric.WithDescription("Workflow run latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.checkpointSize, err = meter.Int64Histogram("aaf.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a recorder backed by the global OpenTelemetry
// meter provider, or NoopMetrics if the instruments cannot be created.
// Instruments are created once per process, so configure the provider with
// otel.SetMeterProvider before the first call.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderFromProvider returns a recorder with its own
// instruments on mp. Use it when a process runs several meter providers,
// or in tests.
func NewMetricsRecorderFromProvider(mp metric.MeterProvider) (MetricsRecorder, error) {
	return newOtelMetrics(mp.Meter(MeterName))
}

func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, failureKind string) {
	attrs := metric.WithAttributes(attribute.String("node_id", nodeID))
	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if failureKind != "" {
		m.nodeFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("node_id", nodeID),
			attribute.String("kind", failureKind),
		))
	}
}

func (m *otelMetrics) RecordRun(ctx context.Context, graph, haltReason, errorKind string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("graph", graph),
		attribute.String("halt_reason", haltReason),
	}
	if errorKind != "" {
		attrs = append(attrs, attribute.String("error_kind", errorKind))
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.runLatency.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(attrs...))
}

func (m *otelMetrics) RecordCheckpoint(ctx context.Context, nodeID string, sizeBytes int64) {
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.String("node_id", nodeID)))
}
