package aaf

import (
	"context"
	"errors"
)

// InputFunc builds the initial state of a run from caller input.
type InputFunc[In any] func(ctx context.Context, in In) (State, error)

// Workflow pairs a compiled graph with the function that turns typed
// input into its initial state.
//
//	chat := aaf.NewWorkflow(compiled, func(_ context.Context, msg string) (aaf.State, error) {
//	    return aaf.StateOf("message", msg), nil
//	})
//	final, err := chat.Run(ctx, "show me last week's orders")
type Workflow[In any] struct {
	graph *CompiledGraph
	input InputFunc[In]
	opts  []RunOption
}

// NewWorkflow creates a workflow. opts apply to every run, before any
// options passed to Run.
//
// Panics if graph or input is nil.
func NewWorkflow[In any](graph *CompiledGraph, input InputFunc[In], opts ...RunOption) *Workflow[In] {
	if graph == nil {
		panic("aaf: workflow graph cannot be nil")
	}
	if input == nil {
		panic("aaf: workflow input function cannot be nil")
	}
	return &Workflow[In]{graph: graph, input: input, opts: opts}
}

// Run builds the initial state from in and executes the graph. An input
// error is returned as is, without starting a run.
func (w *Workflow[In]) Run(ctx context.Context, in In, opts ...RunOption) (State, error) {
	initial, err := w.input(ctx, in)
	if err != nil {
		return State{}, err
	}
	all := make([]RunOption, 0, len(w.opts)+len(opts))
	all = append(all, w.opts...)
	all = append(all, opts...)
	return w.graph.Invoke(ctx, initial, all...)
}

// Graph returns the compiled graph.
func (w *Workflow[In]) Graph() *CompiledGraph {
	return w.graph
}

// ErrNilInput is returned by MapInput for a nil map.
var ErrNilInput = errors.New("nil workflow input")

// MapInput uses a map as the initial state.
func MapInput(_ context.Context, in map[string]any) (State, error) {
	if in == nil {
		return State{}, ErrNilInput
	}
	return NewState(in), nil
}

// KeyInput stores the input under key.
func KeyInput[In any](key string) InputFunc[In] {
	return func(_ context.Context, in In) (State, error) {
		return StateOf(key, in), nil
	}
}
