/*
Package aaf executes workflow graphs: named processing steps (nodes)
connected by a routing table, driven from a start node until the run
reaches a terminal marker, fails, or hits its iteration cap.

# Overview

A run threads a State through the graph. Each node receives the state,
returns a fragment that is shallow-merged onto a copy of it, and the
routing rule of that node picks the next one. Failures never escape as Go
errors from Execute; they are recorded in the state under the error,
failed_node and error_kind keys so callers and downstream tooling can
inspect them.

Alongside user keys the executor maintains _visited_nodes (every node
executed, in order) and _final_node (the last node executed).

# Basic Usage

Register nodes, describe routes, compile and execute:

	reg := aaf.NewRegistry()
	reg.RegisterFunc("A", func(ctx aaf.Context, s aaf.State) (any, error) {
	    return aaf.Update{"seen_a": true}, nil
	})
	reg.RegisterFunc("B", answerSQL)
	reg.RegisterFunc("C", answerSearch)

	compiled, err := aaf.New(reg, "A", aaf.Routes{
	    "A": aaf.When("intent", map[any]string{"x": "B", "y": "C"}),
	    "B": aaf.To(aaf.END),
	    "C": aaf.To(aaf.END),
	})
	if err != nil {
	    log.Fatal(err)
	}

	final := compiled.Execute(ctx, aaf.StateOf("intent", "x"))
	fmt.Println(final.Visited())   // [A B]
	fmt.Println(final.FinalNode()) // B

# Routing

Three rule kinds exist:
  - Static (To) always routes to one target
  - Switch (When, Match) looks up state[key] in a case map
  - Func (Compute) calls a RouterFunc

A node without a rule is an implicit terminal. A Switch whose key is
missing or has no matching case halts the run with RoutingKeyMissing; a
failing or panicking RouterFunc halts it with RoutingFunctionFailure; a
target that is neither a node nor the terminal halts it with
UnknownTarget.

# Limits

Every run is bounded by an iteration cap (DefaultMaxIterations unless the
graph or the run overrides it). Reaching the cap is a soft stop: the state
is returned with _halt_reason "iteration_cap" and no error key. A run may
also be bounded by WithTimeout or WithDeadline; expiry records a Timeout
failure at the node that was about to run.

# Observability

Logging, metrics and tracing are opt-in per run:

	final := compiled.Execute(ctx, initial,
	    aaf.WithObservabilityLogger(slog.Default()),
	    aaf.WithMetrics(true),
	    aaf.WithTracing(true),
	)

# Checkpointing

With WithCheckpointing the executor saves a checkpoint after every node
and the halting state when the run ends. Resume continues an interrupted
run from its latest checkpoint.
*/
package aaf
