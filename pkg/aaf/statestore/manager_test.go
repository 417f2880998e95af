package statestore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_WorkflowState(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryBackend())

	require.NoError(t, m.SaveWorkflowState(ctx, "run-1", map[string]any{"step": 1}))
	require.NoError(t, m.SaveWorkflowState(ctx, "run-2", map[string]any{"step": 2}))

	var got map[string]any
	require.NoError(t, m.LoadWorkflowState(ctx, "run-1", &got))
	assert.EqualValues(t, 1, got["step"])

	ids, err := m.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1", "run-2"}, ids)

	err = m.LoadWorkflowState(ctx, "missing", &got)
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := m.HasWorkflowState(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.HasWorkflowState(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_NodeState(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	m := NewManager(backend)

	require.NoError(t, m.SaveNodeState(ctx, "run-1", "classify", map[string]string{"intent": "sql"}))

	var got map[string]string
	require.NoError(t, m.LoadNodeState(ctx, "run-1", "classify", &got))
	assert.Equal(t, "sql", got["intent"])

	ok, err := backend.Exists(ctx, "node:run-1:classify")
	require.NoError(t, err)
	assert.True(t, ok)

	ids, err := m.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "node state is not a workflow")
}

func TestManager_TTL(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	clock := newFakeClock()
	backend.now = clock.Now
	m := NewManager(backend, WithTTL(time.Minute))
	assert.Equal(t, time.Minute, m.TTL())

	require.NoError(t, m.SaveWorkflowState(ctx, "run-1", map[string]any{}))
	clock.Advance(time.Hour)

	var got map[string]any
	assert.ErrorIs(t, m.LoadWorkflowState(ctx, "run-1", &got), ErrNotFound)
}

func TestManager_Checkpoints(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryBackend())

	_, err := m.LatestCheckpoint(ctx, "run-1")
	assert.ErrorIs(t, err, ErrNotFound)

	for i, node := range []string{"A", "B", "C"} {
		cp := NewCheckpoint("run-1", node, i+1, json.RawMessage(`{}`), "next")
		cp.Iteration = i + 1
		size, err := m.SaveCheckpoint(ctx, cp)
		require.NoError(t, err)
		assert.Positive(t, size)
	}
	_, err = m.SaveCheckpoint(ctx, NewCheckpoint("run-2", "X", 1, json.RawMessage(`{}`), "END"))
	require.NoError(t, err)

	cps, err := m.ListCheckpoints(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cps, 3)
	assert.Equal(t, "A", cps[0].NodeID)
	assert.Equal(t, "C", cps[2].NodeID)

	latest, err := m.LatestCheckpoint(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "C", latest.NodeID)
	assert.Equal(t, 3, latest.Sequence)
	assert.Equal(t, CheckpointVersion, latest.Version)
}

func TestManager_DeleteRun(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	m := NewManager(backend)

	require.NoError(t, m.SaveWorkflowState(ctx, "run-1", map[string]any{}))
	require.NoError(t, m.SaveNodeState(ctx, "run-1", "A", map[string]any{}))
	_, err := m.SaveCheckpoint(ctx, NewCheckpoint("run-1", "A", 1, json.RawMessage(`{}`), "B"))
	require.NoError(t, err)
	require.NoError(t, m.SaveWorkflowState(ctx, "run-2", map[string]any{}))

	require.NoError(t, m.DeleteRun(ctx, "run-1"))

	keys, err := backend.List(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"workflow:run-2"}, keys)
}

func TestManager_RunIDsDoNotOverlap(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	m := NewManager(backend)

	_, err := m.SaveCheckpoint(ctx, NewCheckpoint("a", "A", 1, json.RawMessage(`{}`), "B"))
	require.NoError(t, err)
	_, err = m.SaveCheckpoint(ctx, NewCheckpoint("c", "C", 1, json.RawMessage(`{}`), "D"))
	require.NoError(t, err)
	require.NoError(t, m.SaveNodeState(ctx, "c", "C", map[string]any{}))

	// A checkpoint stored under run a's key namespace but recorded for
	// another run is not returned for a.
	data, err := NewCheckpoint("a-b", "X", 7, json.RawMessage(`{}`), "Y").Marshal()
	require.NoError(t, err)
	require.NoError(t, backend.Save(ctx, "checkpoint:a:00000007", data, 0))

	latest, err := m.LatestCheckpoint(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", latest.RunID)
	assert.Equal(t, "A", latest.NodeID)

	for _, id := range []string{"*", "a:b", "?", "[ac]", `a\`, ""} {
		_, err := m.SaveCheckpoint(ctx, NewCheckpoint(id, "X", 1, json.RawMessage(`{}`), "Y"))
		assert.ErrorIs(t, err, ErrInvalidRunID, id)
		assert.ErrorIs(t, m.DeleteRun(ctx, id), ErrInvalidRunID, id)
		_, err = m.ListCheckpoints(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidRunID, id)
		assert.ErrorIs(t, m.SaveWorkflowState(ctx, id, map[string]any{}), ErrInvalidRunID, id)
	}

	cps, err := m.ListCheckpoints(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, cps, 1)
	ok, err := backend.Exists(ctx, "node:c:C")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidateRunID(t *testing.T) {
	assert.NoError(t, ValidateRunID("run-1"))
	assert.NoError(t, ValidateRunID("3f2b1c9e-0d4a-4e8f-9b7a-1c2d3e4f5a6b"))
	assert.ErrorIs(t, ValidateRunID("run:1"), ErrInvalidRunID)
	assert.ErrorIs(t, ValidateRunID("run*"), ErrInvalidRunID)
	assert.ErrorIs(t, ValidateRunID(""), ErrInvalidRunID)
}

func TestManager_SaveUnencodable(t *testing.T) {
	m := NewManager(NewMemoryBackend())
	err := m.SaveWorkflowState(context.Background(), "run-1", map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	cp := NewCheckpoint("run-1", "A", 4, json.RawMessage(`{"x":1}`), "B")
	cp.PrevNodeID = "start"
	data, err := cp.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalCheckpoint(data)
	require.NoError(t, err)
	assert.Equal(t, "B", got.NextNode)
	assert.Equal(t, "start", got.PrevNodeID)
	assert.JSONEq(t, `{"x":1}`, string(got.State))

	_, err = UnmarshalCheckpoint([]byte("{"))
	assert.Error(t, err)
}
