package statestore

import (
	"encoding/json"
	"time"
)

// CheckpointVersion is the current checkpoint format version.
// Increment on breaking changes to Checkpoint.
const CheckpointVersion = 1

// Checkpoint is the snapshot saved after a node executes. It carries
// everything needed to continue the run from the next node.
type Checkpoint struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	Graph     string    `json:"graph,omitempty"`
	NodeID    string    `json:"node_id"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	// State is the serialized state after NodeID ran.
	State json.RawMessage `json:"state"`
	// NextNode is the node the run continues with.
	NextNode string `json:"next_node"`
	// Iteration is the number of nodes executed so far.
	Iteration  int    `json:"iteration"`
	PrevNodeID string `json:"prev_node_id,omitempty"`
}

// NewCheckpoint creates a checkpoint. state must already be JSON.
func NewCheckpoint(runID, nodeID string, sequence int, state []byte, nextNode string) *Checkpoint {
	return &Checkpoint{
		Version:   CheckpointVersion,
		RunID:     runID,
		NodeID:    nodeID,
		Sequence:  sequence,
		Timestamp: time.Now().UTC(),
		State:     state,
		NextNode:  nextNode,
	}
}

// Marshal serializes the checkpoint.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalCheckpoint decodes a checkpoint.
func UnmarshalCheckpoint(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
