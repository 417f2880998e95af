package aaf

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/swar00pduthks/Aaf/pkg/aaf/event"
	"github.com/swar00pduthks/Aaf/pkg/aaf/observability"
	"github.com/swar00pduthks/Aaf/pkg/aaf/statestore"
)

const (
	// DefaultMaxIterations is the iteration cap of a graph that does not
	// set its own.
	DefaultMaxIterations = 100

	// MaxIterationsLimit is the largest accepted iteration cap.
	MaxIterationsLimit = 100000
)

// runConfig holds configuration for one execution.
type runConfig struct {
	maxIterations int
	timeout       time.Duration
	deadline      time.Time
	runID         string

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	checkpoints *statestore.Manager
	sequence    int

	bus event.Bus
}

func (cg *CompiledGraph) runConfig(opts []RunOption) runConfig {
	cfg := runConfig{
		maxIterations: cg.maxIterations,
		metrics:       observability.NoopMetrics{},
		spans:         observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// RunOption configures a single execution.
type RunOption func(*runConfig)

func validateMaxIterations(n int) {
	if n <= 0 {
		panic("aaf: max iterations must be > 0")
	}
	if n > MaxIterationsLimit {
		panic(fmt.Sprintf("aaf: max iterations exceeds limit (%d)", MaxIterationsLimit))
	}
}

// WithMaxIterations overrides the graph's iteration cap for this run.
// When the cap is reached the run halts with reason iteration_cap and no
// error key.
//
// Panics if n is not within [1, MaxIterationsLimit].
func WithMaxIterations(n int) RunOption {
	validateMaxIterations(n)
	return func(c *runConfig) {
		c.maxIterations = n
	}
}

// WithTimeout bounds the run. When it expires the run halts with a
// Timeout failure at the pending node. Nodes observe the deadline through
// their Context.
func WithTimeout(d time.Duration) RunOption {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// WithDeadline bounds the run by an absolute time. Combined with
// WithTimeout, whichever expires first halts the run.
func WithDeadline(t time.Time) RunOption {
	return func(c *runConfig) {
		c.deadline = t
	}
}

// WithRunID sets the run identifier used for logs, checkpoints and
// events. Defaults to the Context's run id or a new UUID.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithObservabilityLogger enables run and node lifecycle logging.
// A nil logger disables it (the default).
func WithObservabilityLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics through the global meter
// provider.
func WithMetrics(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithMetricsRecorder sets a specific metrics recorder.
func WithMetricsRecorder(r observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if r != nil {
			c.metrics = r
		}
	}
}

// WithTracing enables OpenTelemetry spans for the run and every node.
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithSpanManager sets a specific span manager, for example one built
// with observability.NewSpanManagerFromProvider.
func WithSpanManager(sm observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if sm != nil {
			c.spans = sm
		}
	}
}

// WithCheckpointing saves a checkpoint after every executed node and the
// final state as workflow state under the run id. Checkpoint failures are
// logged and never fail the run.
func WithCheckpointing(m *statestore.Manager) RunOption {
	return func(c *runConfig) {
		c.checkpoints = m
	}
}

// WithEventBus publishes run lifecycle events to bus.
func WithEventBus(bus event.Bus) RunOption {
	return func(c *runConfig) {
		c.bus = bus
	}
}
