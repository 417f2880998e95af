package aaf

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"
)

// NodeFunc is the signature of a node's processing function.
//
// The returned value is merged onto a copy of the input state:
//   - Update, State or any map with string keys: shallow-merged, returned
//     keys win
//   - nil: no change
//   - anything else: stored under the "result" key
//
// A non-nil error (or a panic) becomes a NodeFailure in the state rather
// than propagating to the caller.
//
// Example:
//
//	func classify(ctx aaf.Context, s aaf.State) (any, error) {
//	    if strings.Contains(s.String("message", ""), "SELECT") {
//	        return aaf.Update{"intent": "sql"}, nil
//	    }
//	    return aaf.Update{"intent": "search"}, nil
//	}
type NodeFunc func(ctx Context, s State) (any, error)

// Node is a named processing step wrapping a NodeFunc.
type Node struct {
	id          string
	description string
	fn          NodeFunc
}

// NodeOption configures a Node.
type NodeOption func(*Node)

// WithDescription sets the node's human-readable description.
func WithDescription(desc string) NodeOption {
	return func(n *Node) {
		n.description = desc
	}
}

// NewNode creates a node.
//
// Panics if:
//   - id is empty
//   - id contains whitespace
//   - id starts with an underscore
//   - fn is nil
func NewNode(id string, fn NodeFunc, opts ...NodeOption) *Node {
	if id == "" {
		panic("aaf: node ID cannot be empty")
	}
	if strings.ContainsAny(id, " \t\n\r") {
		panic("aaf: node ID cannot contain whitespace")
	}
	if strings.HasPrefix(id, "_") {
		panic("aaf: node ID cannot start with an underscore")
	}
	if fn == nil {
		panic("aaf: node function cannot be nil")
	}
	n := &Node{id: id, fn: fn, description: "Node: " + id}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ID returns the node identifier.
func (n *Node) ID() string { return n.id }

// Description returns the node description.
func (n *Node) Description() string { return n.description }

// Invoke runs the node function against s and returns the merged state.
// Function errors come back as *NodeError and panics as *PanicError, with
// s returned unchanged. A result that writes the error key returns the
// merged state together with its *Failure.
func (n *Node) Invoke(ctx Context, s State) (result State, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = s
			err = &PanicError{
				NodeID: n.id,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	out, err := n.fn(ctx, s)
	if err != nil {
		return s, &NodeError{NodeID: n.id, Op: "execute", Err: err}
	}

	var merged State
	switch v := out.(type) {
	case nil:
		return s, nil
	case Update:
		merged, err = s.applyFragment(n.id, sortedKeys(v), v, false)
	case map[string]any:
		merged, err = s.applyFragment(n.id, sortedKeys(v), v, false)
	case State:
		merged, err = s.applyFragment(n.id, v.keys, v.values, true)
		if err == nil && v.failure != nil && merged.failure == nil {
			f := *v.failure
			f.Kind = KindNodeFailure
			if f.Node == "" {
				f.Node = n.id
			}
			merged.failure = &f
		}
	default:
		if m, ok := stringKeyedMap(v); ok {
			merged, err = s.applyFragment(n.id, sortedKeys(m), m, false)
		} else {
			merged = s.With(KeyResult, v)
		}
	}
	if err != nil {
		return s, &NodeError{NodeID: n.id, Op: "merge", Err: err}
	}
	if merged.failure != nil && s.failure == nil {
		return merged, merged.failure
	}
	return merged, nil
}

// stringKeyedMap copies a map whose key kind is string, such as
// map[string]string, into a map[string]any.
func stringKeyedMap(v any) (map[string]any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// Execute runs the node and never fails: any error becomes a copy of s
// carrying error, failed_node and error_kind.
func (n *Node) Execute(ctx Context, s State) State {
	next, err := n.Invoke(ctx, s)
	if err == nil {
		return next
	}
	if _, recorded := err.(*Failure); recorded {
		return next
	}
	return s.withFailure(newFailure(KindNodeFailure, n.id, err))
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	return fmt.Sprintf("Node(%s)", n.id)
}
