package aaf

import (
	"fmt"
	"sync"
)

// Graph is a mutable builder for a workflow graph. Nodes come from a
// Registry; the builder only records the entry point, routing table,
// terminal marker and iteration cap.
//
// Graph is not meant to be shared while building. Call Compile to obtain
// an immutable CompiledGraph that is safe for concurrent use.
//
// Example:
//
//	reg := aaf.NewRegistry()
//	reg.RegisterFunc("A", classify)
//	reg.RegisterFunc("B", answerSQL)
//	reg.RegisterFunc("C", answerSearch)
//
//	compiled, err := aaf.NewGraph(reg).
//	    SetEntry("A").
//	    AddSwitch("A", "intent", map[any]string{"x": "B", "y": "C"}).
//	    AddEdge("B", aaf.END).
//	    AddEdge("C", aaf.END).
//	    Compile()
type Graph struct {
	mu            sync.RWMutex
	registry      *Registry
	name          string
	entry         string
	terminal      string
	maxIterations int
	routes        map[string]Route
	errs          []error
}

// NewGraph creates a builder resolving nodes against reg. A nil reg uses
// the process-wide Default registry.
func NewGraph(reg *Registry) *Graph {
	if reg == nil {
		reg = defaultRegistry
	}
	return &Graph{
		registry:      reg,
		name:          "workflow",
		terminal:      END,
		maxIterations: DefaultMaxIterations,
		routes:        make(map[string]Route),
	}
}

// SetName sets the name used in logs, spans, metrics and events.
func (g *Graph) SetName(name string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	if name != "" {
		g.name = name
	}
	return g
}

// SetEntry designates the start node. Validated at Compile.
func (g *Graph) SetEntry(id string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entry = id
	return g
}

// SetTerminal replaces the terminal marker (default END).
func (g *Graph) SetTerminal(marker string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.terminal = marker
	return g
}

// SetMaxIterations sets the graph's iteration cap. Runs may override it
// with WithMaxIterations.
//
// Panics if n is not within [1, MaxIterationsLimit].
func (g *Graph) SetMaxIterations(n int) *Graph {
	validateMaxIterations(n)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maxIterations = n
	return g
}

// AddEdge adds a Static route from one node to another (or the terminal).
func (g *Graph) AddEdge(from, to string) *Graph {
	return g.AddRoute(from, To(to))
}

// AddSwitch adds a Switch route dispatching on state[key].
func (g *Graph) AddSwitch(from, key string, cases map[any]string) *Graph {
	return g.AddRoute(from, When(key, cases))
}

// AddRouter adds a Func route.
//
// Panics if fn is nil.
func (g *Graph) AddRouter(from string, fn RouterFunc) *Graph {
	if fn == nil {
		panic("aaf: router function cannot be nil")
	}
	return g.AddRoute(from, Compute(fn))
}

// AddRoute adds an arbitrary rule. A node may have only one rule; a second
// one is reported by Compile.
func (g *Graph) AddRoute(from string, r Route) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.routes[from]; exists {
		g.errs = append(g.errs, fmt.Errorf("%w: node %s", ErrDuplicateRoute, from))
		return g
	}
	g.routes[from] = r
	return g
}

// AddRoutes adds every rule in routes.
func (g *Graph) AddRoutes(routes Routes) *Graph {
	for from, r := range routes {
		g.AddRoute(from, r)
	}
	return g
}

// New builds and compiles a graph in one call.
//
//	compiled, err := aaf.New(reg, "A", aaf.Routes{
//	    "A": aaf.When("intent", map[any]string{"x": "B", "y": "C"}),
//	    "B": aaf.To(aaf.END),
//	    "C": aaf.To(aaf.END),
//	})
func New(reg *Registry, start string, routes Routes, opts ...GraphOption) (*CompiledGraph, error) {
	g := NewGraph(reg).SetEntry(start).AddRoutes(routes)
	for _, opt := range opts {
		opt(g)
	}
	return g.Compile()
}

// GraphOption configures a graph built with New.
type GraphOption func(*Graph)

// WithName sets the graph name.
func WithName(name string) GraphOption {
	return func(g *Graph) { g.SetName(name) }
}

// WithTerminal sets the terminal marker.
func WithTerminal(marker string) GraphOption {
	return func(g *Graph) { g.SetTerminal(marker) }
}

// WithDefaultMaxIterations sets the graph's iteration cap.
//
// Panics if n is not within [1, MaxIterationsLimit].
func WithDefaultMaxIterations(n int) GraphOption {
	validateMaxIterations(n)
	return func(g *Graph) { g.SetMaxIterations(n) }
}
