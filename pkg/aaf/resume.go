package aaf

import (
	"context"
	"errors"
	"fmt"

	"github.com/swar00pduthks/Aaf/pkg/aaf/statestore"
)

// Resume continues a checkpointed run from the node after its latest
// checkpoint. The run keeps its id, visited nodes and iteration count,
// and continues checkpointing into m.
//
//	// the process crashed after node B
//	final, err := compiled.Resume(ctx, manager, "run-123")
//
// Errors are returned only when the run cannot be restarted; once it
// restarts, failures are reported as with Invoke.
func (cg *CompiledGraph) Resume(ctx context.Context, m *statestore.Manager, runID string, opts ...RunOption) (State, error) {
	cp, err := m.LatestCheckpoint(ctx, runID)
	if errors.Is(err, statestore.ErrNotFound) {
		return State{}, fmt.Errorf("%w: %s", ErrNoCheckpoints, runID)
	}
	if err != nil {
		return State{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp.RunID != runID {
		return State{}, fmt.Errorf("%w: %s (latest checkpoint belongs to %s)", ErrNoCheckpoints, runID, cp.RunID)
	}

	if cp.Version != statestore.CheckpointVersion {
		return State{}, fmt.Errorf("%w: got %d, expected %d",
			ErrCheckpointVersionMismatch, cp.Version, statestore.CheckpointVersion)
	}

	var st State
	if err := st.UnmarshalJSON(cp.State); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrDeserializeState, err)
	}

	if cp.NextNode == cg.terminal {
		st.failure = nil
		st.halt = HaltTerminal
		return st, nil
	}
	if _, ok := cg.nodes[cp.NextNode]; !ok {
		return st, fmt.Errorf("%w: %s", ErrInvalidResumeNode, cp.NextNode)
	}

	cfg := cg.runConfig(opts)
	cfg.runID = runID
	cfg.checkpoints = m
	cfg.sequence = cp.Sequence

	st.halt = ""
	st.failure = nil
	final := cg.run(ctx, st, cp.NextNode, cp.Iteration, &cfg)
	return final, final.Err()
}
