package aaf

import (
	"context"

	"github.com/swar00pduthks/Aaf/pkg/aaf/event"
)

// Event types published with WithEventBus.
const (
	EventRunStarted    = "aaf.run.started"
	EventNodeCompleted = "aaf.node.completed"
	EventNodeFailed    = "aaf.node.failed"
	EventRunHalted     = "aaf.run.halted"
)

// EventSource is the source of every executor event.
const EventSource = "aaf"

// RunStarted is the payload of EventRunStarted.
type RunStarted struct {
	RunID string `json:"run_id"`
	Graph string `json:"graph"`
	Entry string `json:"entry"`
}

// NodeCompleted is the payload of EventNodeCompleted.
type NodeCompleted struct {
	RunID      string  `json:"run_id"`
	NodeID     string  `json:"node_id"`
	Iteration  int     `json:"iteration"`
	DurationMs float64 `json:"duration_ms"`
}

// NodeFailed is the payload of EventNodeFailed.
type NodeFailed struct {
	RunID      string    `json:"run_id"`
	NodeID     string    `json:"node_id"`
	Iteration  int       `json:"iteration"`
	Kind       ErrorKind `json:"error_kind"`
	Error      string    `json:"error"`
	DurationMs float64   `json:"duration_ms"`
}

// RunHalted is the payload of EventRunHalted.
type RunHalted struct {
	RunID      string     `json:"run_id"`
	Graph      string     `json:"graph"`
	Reason     HaltReason `json:"halt_reason"`
	FinalNode  string     `json:"final_node"`
	Visited    []string   `json:"visited_nodes"`
	Kind       ErrorKind  `json:"error_kind,omitempty"`
	Error      string     `json:"error,omitempty"`
	FailedNode string     `json:"failed_node,omitempty"`
	DurationMs float64    `json:"duration_ms"`
}

// publish sends payload to the configured bus. Publishing never affects
// the run; failures are logged.
func (cg *CompiledGraph) publish(ec *executionContext, cfg *runConfig, eventType string, payload any) {
	if cfg.bus == nil {
		return
	}
	evt := event.New(eventType, EventSource, payload, event.WithCorrelationID(ec.runID))
	if err := cfg.bus.Publish(context.WithoutCancel(ec.Context), evt); err != nil && cfg.logger != nil {
		cfg.logger.Warn("event publish failed",
			"run_id", ec.runID,
			"event_type", eventType,
			"error", err.Error())
	}
}
