package aaf

import (
	"context"
	"encoding/json"

	"github.com/swar00pduthks/Aaf/pkg/aaf/observability"
	"github.com/swar00pduthks/Aaf/pkg/aaf/statestore"
)

// checkpoint saves the state after nodeID ran. Failures are logged and
// never fail the run.
func (cg *CompiledGraph) checkpoint(ec *executionContext, cfg *runConfig, nodeID, prevNodeID string, st State, next string, iterations int) {
	if cfg.checkpoints == nil {
		return
	}
	stateBytes, err := json.Marshal(st)
	if err != nil {
		observability.LogCheckpointError(cfg.logger, nodeID, "marshal",
			&CheckpointError{NodeID: nodeID, Op: "marshal", Err: err})
		return
	}

	cfg.sequence++
	cp := statestore.NewCheckpoint(ec.runID, nodeID, cfg.sequence, stateBytes, next)
	cp.Graph = cg.name
	cp.Iteration = iterations
	cp.PrevNodeID = prevNodeID

	ctx := context.WithoutCancel(ec.Context)
	size, err := cfg.checkpoints.SaveCheckpoint(ctx, cp)
	if err != nil {
		observability.LogCheckpointError(cfg.logger, nodeID, "save",
			&CheckpointError{NodeID: nodeID, Op: "save", Err: err})
		return
	}
	observability.LogCheckpoint(cfg.logger, nodeID, size)
	cfg.metrics.RecordCheckpoint(ctx, nodeID, int64(size))
}
