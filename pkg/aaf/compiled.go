package aaf

import "sort"

// CompiledGraph is an immutable, executable workflow graph created by
// Graph.Compile. It is safe for concurrent Execute calls; runs never
// modify it.
type CompiledGraph struct {
	name          string
	entry         string
	terminal      string
	maxIterations int

	// nodes is the registry snapshot taken at compile time.
	nodes  map[string]*Node
	routes map[string]Route
	// edges holds statically known targets per source.
	edges map[string][]string
}

// Name returns the graph name.
func (cg *CompiledGraph) Name() string { return cg.name }

// EntryPoint returns the start node id.
func (cg *CompiledGraph) EntryPoint() string { return cg.entry }

// Terminal returns the terminal marker.
func (cg *CompiledGraph) Terminal() string { return cg.terminal }

// MaxIterations returns the graph's default iteration cap.
func (cg *CompiledGraph) MaxIterations() int { return cg.maxIterations }

// NodeIDs returns the ids that participate in the routing table (entry,
// route sources and static targets), sorted.
func (cg *CompiledGraph) NodeIDs() []string {
	return cg.participants()
}

// HasNode reports whether id resolves to a node in this graph's snapshot.
func (cg *CompiledGraph) HasNode(id string) bool {
	_, ok := cg.nodes[id]
	return ok
}

// Node returns the node for id from the snapshot.
func (cg *CompiledGraph) Node(id string) (*Node, bool) {
	n, ok := cg.nodes[id]
	return n, ok
}

// Route returns the rule for a source node.
func (cg *CompiledGraph) Route(id string) (Route, bool) {
	r, ok := cg.routes[id]
	return r, ok
}

// Successors returns the statically known targets of id (Static and
// Switch rules), which may include the terminal marker. Func rules report
// none.
func (cg *CompiledGraph) Successors(id string) []string {
	targets := cg.edges[id]
	if len(targets) == 0 {
		return nil
	}
	out := make([]string, len(targets))
	copy(out, targets)
	return out
}

// IsDynamic reports whether id routes through a Func rule.
func (cg *CompiledGraph) IsDynamic(id string) bool {
	_, ok := cg.routes[id].(Func)
	return ok
}

func (cg *CompiledGraph) participants() []string {
	set := map[string]bool{cg.entry: true}
	for from, targets := range cg.edges {
		set[from] = true
		for _, to := range targets {
			if to != cg.terminal {
				set[to] = true
			}
		}
	}
	for from := range cg.routes {
		set[from] = true
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
