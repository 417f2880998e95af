package aaf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// chain builds n0 -> n1 -> ... -> n(k-1) -> END. fns override nodes by index.
func chain(rt *rapid.T, k int, fns map[int]NodeFunc) *CompiledGraph {
	reg := NewRegistry()
	routes := Routes{}
	for i := 0; i < k; i++ {
		id := fmt.Sprintf("n%d", i)
		fn := NodeFunc(counter)
		if f, ok := fns[i]; ok {
			fn = f
		}
		reg.RegisterFunc(id, fn)
		if i == k-1 {
			routes[id] = To(END)
		} else {
			routes[id] = To(fmt.Sprintf("n%d", i+1))
		}
	}
	cg, err := New(reg, "n0", routes)
	require.NoError(rt, err)
	return cg
}

func TestProperty_StaticChain_VisitsEveryNodeInOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		k := rapid.IntRange(1, 30).Draw(rt, "k")
		cg := chain(rt, k, nil)

		final, err := cg.Invoke(context.Background(), State{})
		require.NoError(rt, err)

		visited := final.Visited()
		require.Len(rt, visited, k)
		for i, id := range visited {
			assert.Equal(rt, fmt.Sprintf("n%d", i), id)
		}
		assert.Equal(rt, visited[k-1], final.FinalNode())
		assert.Equal(rt, k, final.Int("count", 0))
		assert.Equal(rt, HaltTerminal, final.Halt())
	})
}

func TestProperty_SelfLoop_StopsAtCap(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.IntRange(1, 200).Draw(rt, "limit")
		reg := registryOf(map[string]NodeFunc{"A": counter}, "A")
		cg, err := New(reg, "A", Routes{"A": To("A")})
		require.NoError(rt, err)

		final := cg.Execute(context.Background(), State{}, WithMaxIterations(limit))
		assert.Len(rt, final.Visited(), limit)
		assert.Equal(rt, limit, final.Int("count", 0))
		assert.Equal(rt, HaltIterationCap, final.Halt())
		assert.False(rt, final.Failed())
		assert.True(rt, errors.Is(final.Err(), ErrIterationCapReached))
	})
}

func TestProperty_FailureHaltsAtFailingNode(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		k := rapid.IntRange(1, 20).Draw(rt, "k")
		at := rapid.IntRange(0, k-1).Draw(rt, "at")
		cg := chain(rt, k, map[int]NodeFunc{at: failWith(errBoom)})

		final := cg.Execute(context.Background(), State{})
		require.True(rt, final.Failed())
		assert.Len(rt, final.Visited(), at+1)
		assert.Equal(rt, fmt.Sprintf("n%d", at), final.Failure().Node)
		assert.Equal(rt, final.Failure().Node, final.FinalNode())
		assert.Equal(rt, at, final.Int("count", 0), "nodes before the failure ran")
	})
}

func TestProperty_SwitchFollowsStateValue(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "cases")
		reg := NewRegistry()
		reg.RegisterFunc("route", noop)
		cases := make(map[any]string, n)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("t%d", i)
			reg.RegisterFunc(id, noop)
			cases[i] = id
		}
		cg, err := New(reg, "route", Routes{"route": When("pick", cases)})
		require.NoError(rt, err)

		pick := rapid.IntRange(0, n-1).Draw(rt, "pick")
		var value any = pick
		if rapid.Bool().Draw(rt, "asFloat") {
			value = float64(pick)
		}

		final := cg.Execute(context.Background(), StateOf("pick", value))
		assert.Equal(rt, []string{"route", fmt.Sprintf("t%d", pick)}, final.Visited())
		assert.Equal(rt, HaltNoRoute, final.Halt())
	})
}

func TestProperty_ExecutionIsDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(rt, "limit")
		target := rapid.IntRange(0, 60).Draw(rt, "target")
		reg := registryOf(map[string]NodeFunc{"inc": counter}, "inc", "done")
		cg, err := New(reg, "inc", Routes{
			"inc": Compute(func(_ Context, s State) (string, error) {
				if s.Int("count", 0) >= target {
					return "done", nil
				}
				return "inc", nil
			}),
			"done": To(END),
		})
		require.NoError(rt, err)

		first := cg.Execute(context.Background(), State{}, WithMaxIterations(limit))
		second := cg.Execute(context.Background(), State{}, WithMaxIterations(limit))
		assert.Equal(rt, first.Visited(), second.Visited())
		assert.Equal(rt, first.Halt(), second.Halt())
		assert.LessOrEqual(rt, len(first.Visited()), limit)
	})
}

func TestProperty_StateJSONKeepsBookkeeping(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		k := rapid.IntRange(1, 10).Draw(rt, "k")
		cg := chain(rt, k, nil)
		final := cg.Execute(context.Background(), StateOf("label", rapid.String().Draw(rt, "label")))

		data, err := json.Marshal(final)
		require.NoError(rt, err)
		var decoded State
		require.NoError(rt, json.Unmarshal(data, &decoded))

		assert.Equal(rt, final.Visited(), decoded.Visited())
		assert.Equal(rt, final.FinalNode(), decoded.FinalNode())
		assert.Equal(rt, final.Halt(), decoded.Halt())
		assert.Equal(rt, final.String("label", ""), decoded.String("label", ""))
		assert.Equal(rt, final.Keys(), decoded.Keys())
	})
}
