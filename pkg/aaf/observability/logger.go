// Package observability carries the run-level telemetry of the workflow
// executor: structured logging through slog, metrics and tracing through
// OpenTelemetry.
//
// Everything is opt-in. The logging helpers accept a nil logger and do
// nothing, and NoopMetrics / NoopSpanManager stand in when metrics or
// tracing are disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger returns logger with run_id, node_id and iteration fields.
// A nil logger stays nil.
func EnrichLogger(logger *slog.Logger, runID, nodeID string, iteration int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("node_id", nodeID),
		slog.Int("iteration", iteration),
	)
}

// LogRunStart logs the start of a run.
func LogRunStart(logger *slog.Logger, runID, graph, entry string) {
	if logger == nil {
		return
	}
	logger.Info("workflow run starting",
		slog.String("run_id", runID),
		slog.String("graph", graph),
		slog.String("entry", entry),
	)
}

// LogRunHalted logs a run that stopped without a failure.
func LogRunHalted(logger *slog.Logger, runID, reason, finalNode string, nodeCount int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("workflow run completed",
		slog.String("run_id", runID),
		slog.String("halt_reason", reason),
		slog.String("final_node", finalNode),
		slog.Int("nodes_executed", nodeCount),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogRunFailed logs a run that halted with a recorded failure.
func LogRunFailed(logger *slog.Logger, runID, kind, message, failedNode string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("workflow run failed",
		slog.String("run_id", runID),
		slog.String("error_kind", kind),
		slog.String("error", message),
		slog.String("failed_node", failedNode),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogIterationCap logs a run stopped by the iteration cap.
func LogIterationCap(logger *slog.Logger, runID string, limit int, pendingNode string) {
	if logger == nil {
		return
	}
	logger.Warn("iteration cap reached",
		slog.String("run_id", runID),
		slog.Int("max_iterations", limit),
		slog.String("pending_node", pendingNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string, iteration int) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
		slog.Int("iteration", iteration),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeFailed logs a failure recorded at a node.
func LogNodeFailed(logger *slog.Logger, nodeID, kind, message string) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error_kind", kind),
		slog.String("error", message),
	)
}

// LogRoute logs a routing decision.
func LogRoute(logger *slog.Logger, from, to string) {
	if logger == nil {
		return
	}
	logger.Debug("routed",
		slog.String("from", from),
		slog.String("to", to),
	)
}

// LogCheckpoint logs a saved checkpoint.
func LogCheckpoint(logger *slog.Logger, nodeID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("node_id", nodeID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs a checkpoint failure. These never fail the run.
func LogCheckpointError(logger *slog.Logger, nodeID, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("node_id", nodeID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation returns a function reporting the elapsed time in
// milliseconds since TimedOperation was called.
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
