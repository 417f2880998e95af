package aaf

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for graph construction. Compile joins every violation it
// finds, so callers should match with errors.Is.
var (
	// ErrNoEntryPoint indicates SetEntry was not called before Compile.
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrEntryNotFound indicates the entry point is not a registered node.
	ErrEntryNotFound = errors.New("entry point node not found")

	// ErrNodeNotFound indicates a route references an unregistered node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidRoute indicates a malformed routing rule.
	ErrInvalidRoute = errors.New("invalid route")

	// ErrDuplicateRoute indicates more than one rule for the same source node.
	ErrDuplicateRoute = errors.New("duplicate route")

	// ErrInvalidTerminal indicates an empty terminal marker.
	ErrInvalidTerminal = errors.New("invalid terminal marker")

	// ErrTerminalCollision indicates a registered node shares the terminal marker's id.
	ErrTerminalCollision = errors.New("terminal marker collides with a registered node")
)

// Sentinel errors raised inside nodes and routing.
var (
	// ErrReservedKey indicates a node wrote a key with a leading underscore.
	ErrReservedKey = errors.New("reserved state key")

	// ErrEmptyTarget indicates a routing function returned an empty node id.
	ErrEmptyTarget = errors.New("router returned empty node id")

	// ErrUnknownTarget indicates routing produced an id that is neither a
	// registered node nor the terminal marker.
	ErrUnknownTarget = errors.New("unknown node")
)

// Sentinel errors for checkpointing and resume.
var (
	// ErrNoCheckpoints indicates no checkpoint exists for the run.
	ErrNoCheckpoints = errors.New("no checkpoints found for run")

	// ErrInvalidResumeNode indicates the checkpoint's next node is not part of the graph.
	ErrInvalidResumeNode = errors.New("invalid resume node")

	// ErrCheckpointVersionMismatch indicates the checkpoint format is incompatible.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")

	// ErrDeserializeState indicates checkpointed state could not be decoded.
	ErrDeserializeState = errors.New("failed to deserialize state")
)

// ErrorKind classifies the failure recorded in a halting state.
type ErrorKind string

// Error kinds written to the error_kind key.
const (
	KindNodeFailure            ErrorKind = "NodeFailure"
	KindRoutingKeyMissing      ErrorKind = "RoutingKeyMissing"
	KindRoutingFunctionFailure ErrorKind = "RoutingFunctionFailure"
	KindUnknownTarget          ErrorKind = "UnknownTarget"
	KindIterationCapReached    ErrorKind = "IterationCapReached"
	KindTimeout                ErrorKind = "Timeout"
	KindCancelled              ErrorKind = "Cancelled"
)

// Sentinels matched by Failure.Is, one per ErrorKind.
var (
	ErrNodeFailure            = errors.New("node failure")
	ErrRoutingKeyMissing      = errors.New("routing key missing")
	ErrRoutingFunctionFailure = errors.New("routing function failure")
	ErrIterationCapReached    = errors.New("iteration cap reached")
	ErrTimeout                = errors.New("run timed out")
	ErrCancelled              = errors.New("run cancelled")
)

// Sentinel returns the error that errors.Is matches for this kind.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindNodeFailure:
		return ErrNodeFailure
	case KindRoutingKeyMissing:
		return ErrRoutingKeyMissing
	case KindRoutingFunctionFailure:
		return ErrRoutingFunctionFailure
	case KindUnknownTarget:
		return ErrUnknownTarget
	case KindIterationCapReached:
		return ErrIterationCapReached
	case KindTimeout:
		return ErrTimeout
	case KindCancelled:
		return ErrCancelled
	}
	return nil
}

// Failure is the fatal condition carried by a halting state. It is what
// the error, failed_node and error_kind keys serialize.
type Failure struct {
	// Kind classifies the failure.
	Kind ErrorKind
	// Message is the stringified reason, stored under the error key.
	Message string
	// Node is the node at which the failure was recorded.
	Node string

	cause error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Node == "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("%s at %s: %s", f.Kind, f.Node, f.Message)
}

// Unwrap returns the underlying cause, if one was captured.
func (f *Failure) Unwrap() error {
	return f.cause
}

// Is reports whether target is the sentinel for this failure's kind.
func (f *Failure) Is(target error) bool {
	s := f.Kind.Sentinel()
	return s != nil && target == s
}

func newFailure(kind ErrorKind, node string, cause error) *Failure {
	return &Failure{Kind: kind, Message: failureMessage(cause), Node: node, cause: cause}
}

// failureMessage strips executor wrapping so the error key holds the
// reason the user code reported.
func failureMessage(err error) string {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) && nodeErr.Err != nil {
		return nodeErr.Err.Error()
	}
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return fmt.Sprintf("panic: %v", panicErr.Value)
	}
	var routeErr *RouteError
	if errors.As(err, &routeErr) && routeErr.Err != nil {
		return routeErr.Err.Error()
	}
	return err.Error()
}

func contextFailureKind(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindCancelled
}

// NodeError wraps an error returned by a node function.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Op is the operation that failed ("execute" or "merge").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised by a node or routing function.
type PanicError struct {
	// NodeID is the node whose function (or route) panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// RouteError describes a routing resolution failure.
type RouteError struct {
	// From is the node whose rule was being resolved.
	From string
	// Target is the id the rule produced, if any.
	Target string
	// Kind is the failure classification.
	Kind ErrorKind
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RouteError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("route from %s to %q: %v", e.From, e.Target, e.Err)
	}
	return fmt.Sprintf("route from %s: %v", e.From, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RouteError) Unwrap() error {
	return e.Err
}

// CheckpointError wraps a failure to persist a checkpoint. Checkpoint
// failures are logged, never turned into run failures.
type CheckpointError struct {
	// NodeID is the node after which checkpointing failed.
	NodeID string
	// Op is the operation that failed ("marshal" or "save").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s at node %s: %v", e.Op, e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}
