package aaf

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Compile validates the graph and returns an immutable CompiledGraph.
// Every violation found is joined into the returned error.
//
// Validation checks:
//  1. Entry point is set and registered
//  2. Terminal marker is non-empty and not a registered node id
//  3. Every route source is registered
//  4. Every rule is well formed
//  5. Every Static and Switch target is registered or the terminal
//
// Cycles are allowed; the iteration cap bounds them at run time. Nodes
// that appear in the routing table but cannot be reached from the entry
// are logged as warnings.
//
// The compiled graph snapshots the registry, so Func routes may target any
// node registered before Compile was called.
func (g *Graph) Compile() (*CompiledGraph, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := g.registry.snapshot()
	errs := append([]error(nil), g.errs...)

	if g.entry == "" {
		errs = append(errs, ErrNoEntryPoint)
	} else if _, ok := nodes[g.entry]; !ok {
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entry))
	}

	if g.terminal == "" {
		errs = append(errs, ErrInvalidTerminal)
	} else if _, ok := nodes[g.terminal]; ok {
		errs = append(errs, fmt.Errorf("%w: %s", ErrTerminalCollision, g.terminal))
	}

	sources := make([]string, 0, len(g.routes))
	for from := range g.routes {
		sources = append(sources, from)
	}
	sort.Strings(sources)

	routes := make(map[string]Route, len(g.routes))
	edges := make(map[string][]string, len(g.routes))
	for _, from := range sources {
		rule := g.routes[from]
		if _, ok := nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("%w: route source '%s' does not exist", ErrNodeNotFound, from))
		}
		targets, err := validateRoute(from, rule)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, to := range targets {
			if to == g.terminal {
				continue
			}
			if _, ok := nodes[to]; !ok {
				errs = append(errs, fmt.Errorf("%w: route target '%s' from '%s' does not exist", ErrNodeNotFound, to, from))
			}
		}
		if sw, ok := rule.(Switch); ok {
			rule = normalizeSwitch(sw)
		}
		routes[from] = rule
		edges[from] = targets
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	cg := &CompiledGraph{
		name:          g.name,
		entry:         g.entry,
		terminal:      g.terminal,
		maxIterations: g.maxIterations,
		nodes:         nodes,
		routes:        routes,
		edges:         edges,
	}
	cg.warnUnreachable()
	return cg, nil
}

// warnUnreachable logs routed nodes that cannot be reached from the
// entry. Func routes may reach any node, so their presence on a reachable
// path disables the check.
func (cg *CompiledGraph) warnUnreachable() {
	reachable := map[string]bool{cg.entry: true}
	queue := []string{cg.entry}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if _, dynamic := cg.routes[current].(Func); dynamic {
			return
		}
		for _, next := range cg.edges[current] {
			if next != cg.terminal && !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, id := range cg.participants() {
		if !reachable[id] {
			slog.Warn("node is unreachable from entry",
				slog.String("graph", cg.name),
				slog.String("node_id", id))
		}
	}
}
