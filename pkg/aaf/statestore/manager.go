package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Key namespaces used by Manager.
const (
	workflowPrefix   = "workflow:"
	nodePrefix       = "node:"
	checkpointPrefix = "checkpoint:"
)

// Manager stores workflow state, per-node state and checkpoints on a
// Backend. Values are JSON encoded.
//
//	m := statestore.NewManager(statestore.NewMemoryBackend(), statestore.WithTTL(time.Hour))
//	_ = m.SaveWorkflowState(ctx, "run-1", finalState)
type Manager struct {
	backend Backend
	ttl     time.Duration
	logger  *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTTL sets the expiry applied to every value the Manager writes.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithManagerLogger sets the logger for debug output.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager over backend.
func NewManager(backend Backend, opts ...ManagerOption) *Manager {
	m := &Manager{backend: backend, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Backend returns the underlying backend.
func (m *Manager) Backend() Backend { return m.backend }

// TTL returns the expiry applied to written values.
func (m *Manager) TTL() time.Duration { return m.ttl }

func (m *Manager) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := m.backend.Save(ctx, key, data, m.ttl); err != nil {
		return err
	}
	m.logger.Debug("state saved", slog.String("key", key), slog.Int("size_bytes", len(data)))
	return nil
}

func (m *Manager) load(ctx context.Context, key string, into any) error {
	data, err := m.backend.Load(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SaveWorkflowState stores the state of a whole workflow run.
func (m *Manager) SaveWorkflowState(ctx context.Context, workflowID string, state any) error {
	if err := ValidateRunID(workflowID); err != nil {
		return err
	}
	return m.save(ctx, workflowPrefix+workflowID, state)
}

// LoadWorkflowState decodes the stored workflow state into into. Returns
// ErrNotFound when absent.
func (m *Manager) LoadWorkflowState(ctx context.Context, workflowID string, into any) error {
	if err := ValidateRunID(workflowID); err != nil {
		return err
	}
	return m.load(ctx, workflowPrefix+workflowID, into)
}

// HasWorkflowState reports whether state is stored for workflowID.
func (m *Manager) HasWorkflowState(ctx context.Context, workflowID string) (bool, error) {
	if err := ValidateRunID(workflowID); err != nil {
		return false, err
	}
	return m.backend.Exists(ctx, workflowPrefix+workflowID)
}

// SaveNodeState stores state scoped to one node of a workflow run.
func (m *Manager) SaveNodeState(ctx context.Context, workflowID, nodeID string, state any) error {
	if err := ValidateRunID(workflowID); err != nil {
		return err
	}
	return m.save(ctx, nodePrefix+workflowID+":"+nodeID, state)
}

// LoadNodeState decodes node-scoped state into into.
func (m *Manager) LoadNodeState(ctx context.Context, workflowID, nodeID string, into any) error {
	if err := ValidateRunID(workflowID); err != nil {
		return err
	}
	return m.load(ctx, nodePrefix+workflowID+":"+nodeID, into)
}

// ListWorkflows returns the ids of workflows with stored state, sorted.
func (m *Manager) ListWorkflows(ctx context.Context) ([]string, error) {
	keys, err := m.backend.List(ctx, workflowPrefix+"*")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, workflowPrefix))
	}
	return ids, nil
}

func checkpointKey(runID string, sequence int) string {
	return fmt.Sprintf("%s%s:%08d", checkpointPrefix, runID, sequence)
}

// SaveCheckpoint stores cp under its run and sequence and returns its
// encoded size.
func (m *Manager) SaveCheckpoint(ctx context.Context, cp *Checkpoint) (int, error) {
	if cp == nil {
		return 0, errors.New("nil checkpoint")
	}
	if err := ValidateRunID(cp.RunID); err != nil {
		return 0, err
	}
	data, err := cp.Marshal()
	if err != nil {
		return 0, fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := m.backend.Save(ctx, checkpointKey(cp.RunID, cp.Sequence), data, m.ttl); err != nil {
		return 0, err
	}
	return len(data), nil
}

// ListCheckpoints returns every checkpoint of a run ordered by sequence.
// Checkpoints recorded under another run id are skipped.
func (m *Manager) ListCheckpoints(ctx context.Context, runID string) ([]*Checkpoint, error) {
	if err := ValidateRunID(runID); err != nil {
		return nil, err
	}
	keys, err := m.backend.List(ctx, checkpointPrefix+runID+":*")
	if err != nil {
		return nil, err
	}
	out := make([]*Checkpoint, 0, len(keys))
	for _, k := range keys {
		data, err := m.backend.Load(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		cp, err := UnmarshalCheckpoint(data)
		if err != nil {
			return nil, fmt.Errorf("decode checkpoint %s: %w", k, err)
		}
		if cp.RunID != runID {
			m.logger.Warn("checkpoint run id mismatch", slog.String("key", k), slog.String("run_id", cp.RunID))
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

// LatestCheckpoint returns the checkpoint with the highest sequence, or
// ErrNotFound.
func (m *Manager) LatestCheckpoint(ctx context.Context, runID string) (*Checkpoint, error) {
	cps, err := m.ListCheckpoints(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(cps) == 0 {
		return nil, ErrNotFound
	}
	latest := cps[0]
	for _, cp := range cps[1:] {
		if cp.Sequence > latest.Sequence {
			latest = cp
		}
	}
	return latest, nil
}

// DeleteRun removes the workflow state, node state and checkpoints of a
// run.
func (m *Manager) DeleteRun(ctx context.Context, runID string) error {
	if err := ValidateRunID(runID); err != nil {
		return err
	}
	var errs []error
	if err := m.backend.Delete(ctx, workflowPrefix+runID); err != nil {
		errs = append(errs, err)
	}
	for _, pattern := range []string{nodePrefix + runID + ":*", checkpointPrefix + runID + ":*"} {
		keys, err := m.backend.List(ctx, pattern)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, k := range keys {
			if err := m.backend.Delete(ctx, k); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes the backend.
func (m *Manager) Close() error {
	return m.backend.Close()
}
