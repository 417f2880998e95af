package aaf

import (
	"github.com/swar00pduthks/Aaf/pkg/aaf/registry"
)

// Registry maps node ids to nodes. It is the arena a compiled graph
// resolves node ids against. Registration is last-write-wins and safe for
// concurrent use; List reports ids in first-registration order.
type Registry struct {
	nodes *registry.Registry[string, *Node]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{nodes: registry.New[string, *Node]()}
}

// Register inserts or replaces the node under its id.
func (r *Registry) Register(n *Node) {
	if n == nil {
		panic("aaf: cannot register nil node")
	}
	r.nodes.Register(n.id, n)
}

// RegisterFunc creates a node and registers it.
func (r *Registry) RegisterFunc(id string, fn NodeFunc, opts ...NodeOption) *Node {
	n := NewNode(id, fn, opts...)
	r.Register(n)
	return n
}

// Get returns the node registered under id.
func (r *Registry) Get(id string) (*Node, bool) {
	return r.nodes.Get(id)
}

// MustGet returns the node registered under id, panicking if absent.
func (r *Registry) MustGet(id string) *Node {
	n, ok := r.nodes.Get(id)
	if !ok {
		panic("aaf: node not registered: " + id)
	}
	return n
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	return r.nodes.Has(id)
}

// List returns registered ids in first-registration order.
func (r *Registry) List() []string {
	return r.nodes.Keys()
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	return r.nodes.Len()
}

// Clone returns an independent registry holding the same nodes.
func (r *Registry) Clone() *Registry {
	out := NewRegistry()
	r.nodes.Range(func(id string, n *Node) bool {
		out.nodes.Register(id, n)
		return true
	})
	return out
}

func (r *Registry) snapshot() map[string]*Node {
	return r.nodes.Snapshot()
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by Declare.
func Default() *Registry {
	return defaultRegistry
}

// Declare registers a node in the process-wide registry, typically from a
// package-level var:
//
//	var parseIntent = aaf.Declare("parse_intent", parseIntentFunc,
//	    aaf.WithDescription("classify the user message"))
func Declare(id string, fn NodeFunc, opts ...NodeOption) *Node {
	return defaultRegistry.RegisterFunc(id, fn, opts...)
}

// Lookup returns a node from the process-wide registry.
func Lookup(id string) (*Node, bool) {
	return defaultRegistry.Get(id)
}

// Declared returns the ids in the process-wide registry.
func Declared() []string {
	return defaultRegistry.List()
}
