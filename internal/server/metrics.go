package server

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/swar00pduthks/Aaf/pkg/aaf"
	"github.com/swar00pduthks/Aaf/pkg/aaf/event"
)

const namespace = "aafd"

// Metrics are the Prometheus collectors of the service.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	runsInFlight prometheus.Gauge
	nodes        *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg, or on a fresh registry
// when reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of workflow runs by halt reason",
		}, []string{"workflow", "halt_reason", "error_kind"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}, []string{"workflow"}),
		runsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_runs_in_flight",
			Help:      "Number of workflow runs executing",
		}),
		nodes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node executions by outcome",
		}, []string{"node_id", "outcome"}),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRun records a halted run.
func (m *Metrics) RecordRun(workflow string, final aaf.State, duration time.Duration) {
	kind := ""
	if f := final.Failure(); f != nil {
		kind = string(f.Kind)
	}
	m.runs.WithLabelValues(workflow, string(final.Halt()), kind).Inc()
	m.runDuration.WithLabelValues(workflow).Observe(duration.Seconds())
}

// HandleEvent counts node executions from executor events. It implements
// event.Handler.
func (m *Metrics) HandleEvent(_ context.Context, evt event.Event) error {
	switch p := evt.Data().(type) {
	case aaf.NodeCompleted:
		m.nodes.WithLabelValues(p.NodeID, "completed").Inc()
	case aaf.NodeFailed:
		m.nodes.WithLabelValues(p.NodeID, "failed").Inc()
	}
	return nil
}
