package aaf

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// set returns a node function writing the given key/value pairs.
func set(kv ...any) NodeFunc {
	u := Update{}
	for i := 0; i+1 < len(kv); i += 2 {
		u[kv[i].(string)] = kv[i+1]
	}
	return func(Context, State) (any, error) {
		return u, nil
	}
}

// noop leaves the state unchanged.
func noop(Context, State) (any, error) {
	return nil, nil
}

// failWith returns a node function failing with err.
func failWith(err error) NodeFunc {
	return func(Context, State) (any, error) {
		return nil, err
	}
}

// panicWith returns a node function panicking with v.
func panicWith(v any) NodeFunc {
	return func(Context, State) (any, error) {
		panic(v)
	}
}

// counter increments the "count" key.
func counter(_ Context, s State) (any, error) {
	return Update{"count": s.Int("count", 0) + 1}, nil
}

// tracker records executed node ids across goroutines.
type tracker struct {
	mu  sync.Mutex
	ids []string
}

func (tr *tracker) node(id string) NodeFunc {
	return func(Context, State) (any, error) {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		tr.ids = append(tr.ids, id)
		return nil, nil
	}
}

func (tr *tracker) seen() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.ids...)
}

// registryOf registers every id with noop unless fns overrides it.
func registryOf(fns map[string]NodeFunc, ids ...string) *Registry {
	reg := NewRegistry()
	for _, id := range ids {
		fn := NodeFunc(noop)
		if f, ok := fns[id]; ok {
			fn = f
		}
		reg.RegisterFunc(id, fn)
	}
	return reg
}

// intentGraph is the A -> {x: B, y: C} graph with B and C routing to END.
func intentGraph(t *testing.T) *CompiledGraph {
	t.Helper()
	reg := registryOf(nil, "A", "B", "C")
	cg, err := New(reg, "A", Routes{
		"A": When("intent", map[any]string{"x": "B", "y": "C"}),
		"B": To(END),
		"C": To(END),
	})
	require.NoError(t, err)
	return cg
}

func testCtx() Context {
	return NewContext(context.Background(), WithContextRunID("test-run"))
}

var errBoom = errors.New("boom")
