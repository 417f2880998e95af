package aaf

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/swar00pduthks/Aaf/pkg/aaf/observability"
)

// Execute runs the graph from its entry point and returns the halting
// state. It never returns an error: node failures, routing failures,
// unknown targets and deadline expiry are recorded in the state under the
// error, failed_node and error_kind keys. Use Invoke or State.Err to get
// them as a Go error.
//
// The run halts when, checked in this order after each node:
//  1. the state carries a failure
//  2. the node has no routing rule
//  3. routing fails or names an unknown node
//  4. routing reaches the terminal marker
//  5. the iteration cap is reached (no error key is written)
//
// Visited nodes, final node and halt reason present in initial are
// discarded. An error key in initial is kept: the entry node runs and the
// run halts with that failure. initial itself is never modified, so
// concurrent runs of the same graph are independent.
//
// Example:
//
//	final := compiled.Execute(ctx, aaf.StateOf("intent", "x"))
//	fmt.Println(final.Visited(), final.FinalNode()) // [A B] B
func (cg *CompiledGraph) Execute(ctx context.Context, initial State, opts ...RunOption) State {
	cfg := cg.runConfig(opts)
	st := initial.clone()
	st.resetRun()
	return cg.run(ctx, st, cg.entry, 0, &cfg)
}

// Invoke is Execute returning the recorded failure as an error. A run
// stopped by the iteration cap reports ErrIterationCapReached.
func (cg *CompiledGraph) Invoke(ctx context.Context, initial State, opts ...RunOption) (State, error) {
	final := cg.Execute(ctx, initial, opts...)
	return final, final.Err()
}

// run drives the loop from start. iterations is the number of nodes
// already executed, non-zero when resuming.
func (cg *CompiledGraph) run(ctx context.Context, st State, start string, iterations int, cfg *runConfig) (final State) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Timeout and deadline both apply; the earlier one wins.
	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}
	if !cfg.deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, cfg.deadline)
		defer cancel()
	}

	ec := asExecutionContext(ctx)
	if cfg.runID != "" {
		ec = ec.derive(ec.Context)
		ec.runID = cfg.runID
	}
	cfg.runID = ec.runID
	runID := ec.runID

	done := observability.TimedOperation()
	runCtx, runSpan := cfg.spans.StartRunSpan(ec.Context, cg.name, runID)
	ec = ec.derive(runCtx)
	defer func() {
		cfg.spans.EndSpanWithError(runSpan, final.Err())
	}()

	observability.LogRunStart(cfg.logger, runID, cg.name, start)
	cg.publish(ec, cfg, EventRunStarted, RunStarted{
		RunID: runID,
		Graph: cg.name,
		Entry: start,
	})

	current := start
	prev := ""
	for {
		if iterations >= cfg.maxIterations {
			st.halt = HaltIterationCap
			observability.LogIterationCap(cfg.logger, runID, cfg.maxIterations, current)
			break
		}

		if err := ec.Err(); err != nil {
			st = st.withFailure(newFailure(contextFailureKind(err), current, err))
			st.halt = HaltError
			break
		}

		node := cg.nodes[current]
		st = cg.step(ec, cfg, node, st, iterations)
		st.final = current
		iterations++

		if st.failure != nil {
			if st.failure.Kind == KindNodeFailure && st.failure.Node == current {
				if err := ec.Err(); err != nil {
					st.failure.Kind = contextFailureKind(err)
				}
			}
			st.halt = HaltError
			break
		}

		rule, ok := cg.routes[current]
		if !ok {
			st.halt = HaltNoRoute
			break
		}

		next, err := resolve(ec.forNode(current, iterations-1), current, rule, st)
		if err == nil && next != cg.terminal {
			if _, known := cg.nodes[next]; !known {
				err = &RouteError{
					From:   current,
					Target: next,
					Kind:   KindUnknownTarget,
					Err:    fmt.Errorf("%w: %s", ErrUnknownTarget, next),
				}
			}
		}
		if err != nil {
			st = st.withFailure(routeFailure(current, err))
			st.halt = HaltError
			observability.LogNodeFailed(cfg.logger, current, string(st.failure.Kind), st.failure.Message)
			break
		}
		observability.LogRoute(cfg.logger, current, next)
		cfg.spans.AddSpanEvent(runCtx, "routed",
			attribute.String("from", current),
			attribute.String("to", next))

		cg.checkpoint(ec, cfg, current, prev, st, next, iterations)

		if next == cg.terminal {
			st.halt = HaltTerminal
			break
		}
		prev = current
		current = next
	}

	cg.finish(ec, cfg, st, done)
	return st
}

// step executes one node with tracing, metrics, logging and events.
func (cg *CompiledGraph) step(ec *executionContext, cfg *runConfig, node *Node, st State, iteration int) State {
	id := node.ID()
	spanCtx, span := cfg.spans.StartNodeSpan(ec.Context, id, iteration)
	nodeCtx := ec.derive(spanCtx).forNode(id, iteration)
	logger := observability.EnrichLogger(cfg.logger, ec.runID, id, iteration)

	observability.LogNodeStart(logger, id, iteration)
	start := time.Now()

	st.visited = append(slices.Clip(st.visited), id)
	next := node.Execute(nodeCtx, st)

	duration := time.Since(start)
	kind := ""
	var spanErr error
	if next.failure != nil && st.failure == nil {
		kind = string(next.failure.Kind)
		spanErr = next.failure
	}
	cfg.metrics.RecordNodeExecution(spanCtx, id, duration, kind)
	cfg.spans.EndSpanWithError(span, spanErr)

	durationMs := float64(duration.Microseconds()) / 1000
	if spanErr != nil {
		observability.LogNodeFailed(logger, id, kind, next.failure.Message)
		cg.publish(ec, cfg, EventNodeFailed, NodeFailed{
			RunID:      ec.runID,
			NodeID:     id,
			Iteration:  iteration,
			Kind:       next.failure.Kind,
			Error:      next.failure.Message,
			DurationMs: durationMs,
		})
		return next
	}
	observability.LogNodeComplete(logger, id, durationMs)
	cg.publish(ec, cfg, EventNodeCompleted, NodeCompleted{
		RunID:      ec.runID,
		NodeID:     id,
		Iteration:  iteration,
		DurationMs: durationMs,
	})
	return next
}

// finish records run-level metrics, logs and events, and persists the
// halting state when checkpointing.
func (cg *CompiledGraph) finish(ec *executionContext, cfg *runConfig, st State, done func() float64) {
	durationMs := done()
	duration := time.Duration(durationMs * float64(time.Millisecond))

	kind := ""
	if st.failure != nil {
		kind = string(st.failure.Kind)
		observability.LogRunFailed(cfg.logger, ec.runID, kind, st.failure.Message, st.failure.Node, durationMs)
	} else {
		observability.LogRunHalted(cfg.logger, ec.runID, string(st.halt), st.final, len(st.visited), durationMs)
	}
	cfg.metrics.RecordRun(context.WithoutCancel(ec.Context), cg.name, string(st.halt), kind, duration)

	if cfg.checkpoints != nil {
		saveCtx := context.WithoutCancel(ec.Context)
		if err := cfg.checkpoints.SaveWorkflowState(saveCtx, ec.runID, st); err != nil {
			observability.LogCheckpointError(cfg.logger, st.final, "save_state",
				&CheckpointError{NodeID: st.final, Op: "save_state", Err: err})
		}
	}

	halted := RunHalted{
		RunID:      ec.runID,
		Graph:      cg.name,
		Reason:     st.halt,
		FinalNode:  st.final,
		Visited:    st.Visited(),
		DurationMs: durationMs,
	}
	if st.failure != nil {
		halted.Kind = st.failure.Kind
		halted.Error = st.failure.Message
		halted.FailedNode = st.failure.Node
	}
	cg.publish(ec, cfg, EventRunHalted, halted)
}
