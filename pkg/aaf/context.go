package aaf

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Context is handed to node and routing functions. It extends
// context.Context (carrying the run deadline) with run metadata.
type Context interface {
	context.Context

	// Logger returns a logger enriched with run and node fields.
	// Never nil; defaults to slog.Default().
	Logger() *slog.Logger

	// RunID returns the identifier of the current run.
	RunID() string

	// NodeID returns the node being executed or routed from.
	NodeID() string

	// Iteration returns the zero-based position of the current node in
	// the run.
	Iteration() int
}

type executionContext struct {
	context.Context

	logger    *slog.Logger
	runID     string
	nodeID    string
	iteration int
}

func (c *executionContext) Logger() *slog.Logger { return c.logger }
func (c *executionContext) RunID() string        { return c.runID }
func (c *executionContext) NodeID() string       { return c.nodeID }
func (c *executionContext) Iteration() int       { return c.iteration }

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger handed to nodes.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContextRunID sets the run identifier. If not set, a UUID is
// generated. WithRunID on Execute takes precedence.
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// NewContext wraps a standard context. It is useful for calling
// Node.Execute or a RouterFunc directly, for example in tests.
//
//	ctx := aaf.NewContext(context.Background(), aaf.WithContextRunID("run-1"))
//	next := node.Execute(ctx, aaf.StateOf("intent", "sql"))
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.New().String(),
	}
	for _, opt := range opts {
		opt(ec)
	}
	return ec
}

// asExecutionContext reuses metadata from ctx when it is already a
// Context, and otherwise wraps it.
func asExecutionContext(ctx context.Context) *executionContext {
	if ec, ok := ctx.(*executionContext); ok {
		return ec
	}
	if c, ok := ctx.(Context); ok {
		return &executionContext{
			Context: c,
			logger:  c.Logger(),
			runID:   c.RunID(),
		}
	}
	return NewContext(ctx).(*executionContext)
}

// derive returns a copy bound to a new parent context.
func (c *executionContext) derive(parent context.Context) *executionContext {
	next := *c
	next.Context = parent
	return &next
}

// forNode returns a context describing nodeID at the given iteration.
func (c *executionContext) forNode(nodeID string, iteration int) *executionContext {
	return &executionContext{
		Context:   c.Context,
		logger:    c.logger.With("run_id", c.runID, "node_id", nodeID, "iteration", iteration),
		runID:     c.runID,
		nodeID:    nodeID,
		iteration: iteration,
	}
}
