package aaf

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_IntentRouting(t *testing.T) {
	cg := intentGraph(t)

	tests := []struct {
		intent  string
		visited []string
		final   string
	}{
		{"x", []string{"A", "B"}, "B"},
		{"y", []string{"A", "C"}, "C"},
	}
	for _, tt := range tests {
		t.Run(tt.intent, func(t *testing.T) {
			final, err := cg.Invoke(context.Background(), StateOf("intent", tt.intent))
			require.NoError(t, err)
			assert.Equal(t, tt.visited, final.Visited())
			assert.Equal(t, tt.final, final.FinalNode())
			assert.Equal(t, HaltTerminal, final.Halt())
			assert.False(t, final.Failed())
			assert.Equal(t, tt.intent, final.String("intent", ""))
		})
	}
}

func TestExecute_RoutingKeyMissing(t *testing.T) {
	cg := intentGraph(t)

	final := cg.Execute(context.Background(), StateOf("message", "hi"))
	require.True(t, final.Failed())
	assert.Equal(t, KindRoutingKeyMissing, final.Failure().Kind)
	assert.Equal(t, "A", final.Failure().Node)
	assert.Contains(t, final.Failure().Message, "intent")
	assert.Equal(t, []string{"A"}, final.Visited())
	assert.Equal(t, "A", final.FinalNode())
	assert.Equal(t, HaltError, final.Halt())

	m := final.Map()
	assert.Equal(t, "A", m[KeyFailedNode])
	assert.Equal(t, "RoutingKeyMissing", m[KeyErrorKind])
}

func TestExecute_UnmatchedCase(t *testing.T) {
	cg := intentGraph(t)
	final := cg.Execute(context.Background(), StateOf("intent", "z"))
	require.True(t, final.Failed())
	assert.Equal(t, KindRoutingKeyMissing, final.Failure().Kind)
}

func TestExecute_NoRouteHalts(t *testing.T) {
	reg := registryOf(map[string]NodeFunc{"B": set("done", true)}, "A", "B")
	cg, err := New(reg, "A", Routes{"A": To("B")})
	require.NoError(t, err)

	final, err := cg.Invoke(context.Background(), State{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, final.Visited())
	assert.Equal(t, "B", final.FinalNode())
	assert.Equal(t, HaltNoRoute, final.Halt())
	assert.True(t, final.Bool("done", false))
}

func TestExecute_NodeFailureHaltsImmediately(t *testing.T) {
	tr := &tracker{}
	reg := registryOf(map[string]NodeFunc{
		"A": failWith(errBoom),
		"B": tr.node("B"),
	}, "A", "B")
	cg, err := New(reg, "A", Routes{"A": To("B"), "B": To(END)})
	require.NoError(t, err)

	final, err := cg.Invoke(context.Background(), StateOf("k", 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNodeFailure)
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, tr.seen(), "B must not run")
	assert.Equal(t, []string{"A"}, final.Visited())
	assert.Equal(t, "A", final.FinalNode())
	assert.Equal(t, "boom", final.Failure().Message)
	assert.Equal(t, 1, final.Int("k", 0), "input keys survive")
}

func TestExecute_NodePanic(t *testing.T) {
	reg := registryOf(map[string]NodeFunc{"B": panicWith("kaboom")}, "A", "B")
	cg, err := New(reg, "A", Routes{"A": To("B"), "B": To(END)})
	require.NoError(t, err)

	final := cg.Execute(context.Background(), State{})
	require.True(t, final.Failed())
	assert.Equal(t, KindNodeFailure, final.Failure().Kind)
	assert.Equal(t, "B", final.Failure().Node)
	assert.Equal(t, "panic: kaboom", final.Failure().Message)
	assert.Equal(t, []string{"A", "B"}, final.Visited())
}

func TestExecute_ErrorKeyFromNode(t *testing.T) {
	reg := registryOf(map[string]NodeFunc{"A": set(KeyError, "invalid query")}, "A", "B")
	cg, err := New(reg, "A", Routes{"A": To("B"), "B": To(END)})
	require.NoError(t, err)

	final := cg.Execute(context.Background(), State{})
	require.True(t, final.Failed())
	assert.Equal(t, "invalid query", final.Failure().Message)
	assert.Equal(t, "A", final.Failure().Node)
	assert.Equal(t, []string{"A"}, final.Visited())
}

func TestExecute_IterationCap(t *testing.T) {
	reg := registryOf(map[string]NodeFunc{"A": counter}, "A")
	cg, err := New(reg, "A", Routes{"A": To("A")}, WithDefaultMaxIterations(5))
	require.NoError(t, err)

	final, err := cg.Invoke(context.Background(), State{})
	assert.ErrorIs(t, err, ErrIterationCapReached)
	assert.Equal(t, []string{"A", "A", "A", "A", "A"}, final.Visited())
	assert.Equal(t, "A", final.FinalNode())
	assert.Equal(t, HaltIterationCap, final.Halt())
	assert.False(t, final.Failed(), "no error key on cap")
	assert.NotContains(t, final.Map(), KeyError)
	assert.Equal(t, 5, final.Int("count", 0))

	t.Run("run option overrides", func(t *testing.T) {
		final := cg.Execute(context.Background(), State{}, WithMaxIterations(2))
		assert.Len(t, final.Visited(), 2)
		assert.Equal(t, HaltIterationCap, final.Halt())
	})

	t.Run("invalid cap panics", func(t *testing.T) {
		assert.Panics(t, func() { WithMaxIterations(0) })
	})
}

func TestExecute_LoopUntilCondition(t *testing.T) {
	reg := registryOf(map[string]NodeFunc{"inc": counter}, "inc", "done")
	cg, err := New(reg, "inc", Routes{
		"inc": Compute(func(_ Context, s State) (string, error) {
			if s.Int("count", 0) >= 3 {
				return "done", nil
			}
			return "inc", nil
		}),
		"done": To(END),
	})
	require.NoError(t, err)

	final, err := cg.Invoke(context.Background(), State{})
	require.NoError(t, err)
	assert.Equal(t, []string{"inc", "inc", "inc", "done"}, final.Visited())
	assert.Equal(t, 3, final.Int("count", 0))
}

func TestExecute_UnknownTarget(t *testing.T) {
	reg := registryOf(nil, "A")
	cg, err := New(reg, "A", Routes{
		"A": Compute(func(Context, State) (string, error) { return "ghost", nil }),
	})
	require.NoError(t, err)

	final, err := cg.Invoke(context.Background(), State{})
	assert.ErrorIs(t, err, ErrUnknownTarget)
	require.True(t, final.Failed())
	assert.Equal(t, KindUnknownTarget, final.Failure().Kind)
	assert.Equal(t, "A", final.Failure().Node)
	assert.Contains(t, final.Failure().Message, "ghost")

	var re *RouteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "ghost", re.Target)
}

func TestExecute_RoutingFunctionFailure(t *testing.T) {
	reg := registryOf(nil, "A", "B")
	cg, err := New(reg, "A", Routes{
		"A": Compute(func(Context, State) (string, error) { return "", errors.New("cannot decide") }),
	})
	require.NoError(t, err)

	final := cg.Execute(context.Background(), State{})
	require.True(t, final.Failed())
	assert.Equal(t, KindRoutingFunctionFailure, final.Failure().Kind)
	assert.Equal(t, "cannot decide", final.Failure().Message)
	assert.Equal(t, "A", final.Failure().Node)
}

func TestExecute_Timeout(t *testing.T) {
	t.Run("node observes deadline", func(t *testing.T) {
		blocking := func(ctx Context, _ State) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		reg := registryOf(map[string]NodeFunc{"A": blocking}, "A")
		cg, err := New(reg, "A", Routes{"A": To(END)})
		require.NoError(t, err)

		final, err := cg.Invoke(context.Background(), State{}, WithTimeout(20*time.Millisecond))
		assert.ErrorIs(t, err, ErrTimeout)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, KindTimeout, final.Failure().Kind)
		assert.Equal(t, "A", final.Failure().Node)
	})

	t.Run("expires between nodes", func(t *testing.T) {
		slow := func(Context, State) (any, error) {
			time.Sleep(30 * time.Millisecond)
			return nil, nil
		}
		tr := &tracker{}
		reg := registryOf(map[string]NodeFunc{"A": slow, "B": tr.node("B")}, "A", "B")
		cg, err := New(reg, "A", Routes{"A": To("B"), "B": To(END)})
		require.NoError(t, err)

		final := cg.Execute(context.Background(), State{}, WithDeadline(time.Now().Add(10*time.Millisecond)))
		require.True(t, final.Failed())
		assert.Equal(t, KindTimeout, final.Failure().Kind)
		assert.Equal(t, "B", final.Failure().Node, "failure recorded at the pending node")
		assert.Equal(t, []string{"A"}, final.Visited())
		assert.Equal(t, "A", final.FinalNode())
		assert.Empty(t, tr.seen())
	})

	t.Run("timeout and deadline combine", func(t *testing.T) {
		blocking := func(ctx Context, _ State) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		reg := registryOf(map[string]NodeFunc{"A": blocking}, "A")
		cg, err := New(reg, "A", Routes{"A": To(END)})
		require.NoError(t, err)

		for name, opts := range map[string][]RunOption{
			"deadline earlier": {WithTimeout(time.Hour), WithDeadline(time.Now().Add(20 * time.Millisecond))},
			"timeout earlier":  {WithDeadline(time.Now().Add(time.Hour)), WithTimeout(20 * time.Millisecond)},
		} {
			start := time.Now()
			_, err := cg.Invoke(context.Background(), State{}, opts...)
			assert.ErrorIs(t, err, ErrTimeout, name)
			assert.Less(t, time.Since(start), 10*time.Second, name)
		}
	})
}

func TestExecute_Cancelled(t *testing.T) {
	cg := intentGraph(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	final, err := cg.Invoke(ctx, StateOf("intent", "x"))
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, "A", final.Failure().Node)
	assert.Empty(t, final.Visited())
}

func TestExecute_InitialStateUntouched(t *testing.T) {
	cg := intentGraph(t)
	initial := StateOf("intent", "x")
	initial.visited = []string{"stale"}
	initial.final = "stale"
	initial.halt = HaltError

	final := cg.Execute(context.Background(), initial)
	assert.Equal(t, []string{"A", "B"}, final.Visited(), "stale bookkeeping discarded")
	assert.Equal(t, HaltTerminal, final.Halt())
	assert.False(t, final.Failed())

	assert.Equal(t, []string{"stale"}, initial.Visited())
	assert.Equal(t, HaltError, initial.Halt())
}

func TestExecute_FailedNodeWithoutError(t *testing.T) {
	reg := registryOf(map[string]NodeFunc{"A": set(KeyFailedNode, "legacy")}, "A", "B")
	cg, err := New(reg, "A", Routes{"A": To("B"), "B": To(END)})
	require.NoError(t, err)

	final := cg.Execute(context.Background(), State{})
	require.True(t, final.Failed())
	assert.Equal(t, "A", final.Failure().Node)
	assert.Contains(t, final.Failure().Message, KeyFailedNode)
	assert.ErrorIs(t, final.Err(), ErrReservedKey)
	assert.Equal(t, []string{"A"}, final.Visited())
}

func TestExecute_CarriedError(t *testing.T) {
	cg := intentGraph(t)

	final, err := cg.Invoke(context.Background(), StateOf("error", "upstream failed", "intent", "x"))
	require.Error(t, err)
	assert.Equal(t, []string{"A"}, final.Visited(), "entry node runs, then the run halts")
	assert.Equal(t, "A", final.FinalNode())
	assert.Equal(t, HaltError, final.Halt())
	assert.Equal(t, "upstream failed", final.Failure().Message)
	assert.Equal(t, "upstream failed", final.Map()[KeyError])
}

func TestExecute_NodeContext(t *testing.T) {
	type seen struct {
		node      string
		iteration int
		runID     string
	}
	var mu sync.Mutex
	var got []seen
	record := func(ctx Context, _ State) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, seen{ctx.NodeID(), ctx.Iteration(), ctx.RunID()})
		return nil, nil
	}
	reg := registryOf(map[string]NodeFunc{"A": record, "B": record}, "A", "B")
	cg, err := New(reg, "A", Routes{"A": To("B"), "B": To(END)})
	require.NoError(t, err)

	cg.Execute(context.Background(), State{}, WithRunID("run-42"))
	assert.Equal(t, []seen{{"A", 0, "run-42"}, {"B", 1, "run-42"}}, got)

	got = nil
	cg.Execute(NewContext(context.Background(), WithContextRunID("from-ctx")), State{})
	require.Len(t, got, 2)
	assert.Equal(t, "from-ctx", got[0].runID)
}

func TestExecute_ConcurrentRuns(t *testing.T) {
	reg := registryOf(map[string]NodeFunc{
		"A": func(_ Context, s State) (any, error) {
			return Update{"seen": s.Int("n", -1)}, nil
		},
	}, "A", "B", "C")
	cg, err := New(reg, "A", Routes{
		"A": Compute(func(_ Context, s State) (string, error) {
			if s.Int("n", 0)%2 == 0 {
				return "B", nil
			}
			return "C", nil
		}),
		"B": To(END),
		"C": To(END),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			final, err := cg.Invoke(context.Background(), StateOf("n", i))
			assert.NoError(t, err)
			assert.Equal(t, i, final.Int("seen", -1))
			want := "C"
			if i%2 == 0 {
				want = "B"
			}
			assert.Equal(t, []string{"A", want}, final.Visited(), fmt.Sprintf("run %d", i))
		}(i)
	}
	wg.Wait()
}

func TestExecute_NilContext(t *testing.T) {
	cg := intentGraph(t)
	final := cg.Execute(nil, StateOf("intent", "y"))
	assert.Equal(t, "C", final.FinalNode())
}
