package aaf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRoute(t *testing.T) {
	tests := []struct {
		name    string
		route   Route
		targets []string
		wantErr bool
	}{
		{"static", To("B"), []string{"B"}, false},
		{"static empty", To(""), nil, true},
		{"switch", When("k", map[any]string{"x": "C", "y": "B", "z": "B"}), []string{"B", "C"}, false},
		{"switch empty key", When("", map[any]string{"x": "B"}), nil, true},
		{"switch no cases", When("k", nil), nil, true},
		{"switch empty target", When("k", map[any]string{"x": ""}), nil, true},
		{"func", Compute(func(Context, State) (string, error) { return "B", nil }), nil, false},
		{"func nil", Func{}, nil, true},
		{"nil", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targets, err := validateRoute("A", tt.route)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRoute)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.targets, targets)
		})
	}
}

func TestMatch(t *testing.T) {
	sw := Match("intent", map[string]string{"sql": "B"})
	assert.Equal(t, "intent", sw.Key)
	assert.Equal(t, "B", sw.Cases["sql"])
}

func TestResolve_Static(t *testing.T) {
	next, err := resolve(testCtx(), "A", To("B"), State{})
	require.NoError(t, err)
	assert.Equal(t, "B", next)
}

func TestResolve_Switch(t *testing.T) {
	rule := normalizeSwitch(When("v", map[any]string{
		"x":  "B",
		1:    "C",
		true: "D",
		nil:  "E",
		2.5:  "F",
	}))

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "x", "B"},
		{"int", 1, "C"},
		{"int64", int64(1), "C"},
		{"whole float", 1.0, "C"},
		{"bool", true, "D"},
		{"nil", nil, "E"},
		{"fractional float", 2.5, "F"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := resolve(testCtx(), "A", rule, StateOf("v", tt.value))
			require.NoError(t, err)
			assert.Equal(t, tt.want, next)
		})
	}

	t.Run("missing key", func(t *testing.T) {
		_, err := resolve(testCtx(), "A", rule, StateOf("other", 1))
		var re *RouteError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, KindRoutingKeyMissing, re.Kind)
		assert.Equal(t, "A", re.From)
		assert.ErrorIs(t, err, ErrRoutingKeyMissing)
	})

	t.Run("value without case", func(t *testing.T) {
		_, err := resolve(testCtx(), "A", rule, StateOf("v", "zzz"))
		assert.ErrorIs(t, err, ErrRoutingKeyMissing)
	})

	t.Run("unhashable value", func(t *testing.T) {
		_, err := resolve(testCtx(), "A", rule, StateOf("v", []any{"x"}))
		assert.ErrorIs(t, err, ErrRoutingKeyMissing)
	})
}

func TestResolve_Func(t *testing.T) {
	t.Run("target", func(t *testing.T) {
		var seen Context
		rule := Compute(func(ctx Context, s State) (string, error) {
			seen = ctx
			return s.String("next", ""), nil
		})
		next, err := resolve(testCtx(), "A", rule, StateOf("next", "C"))
		require.NoError(t, err)
		assert.Equal(t, "C", next)
		assert.Equal(t, "test-run", seen.RunID())
	})

	t.Run("error", func(t *testing.T) {
		rule := Compute(func(Context, State) (string, error) { return "", errBoom })
		_, err := resolve(testCtx(), "A", rule, State{})
		var re *RouteError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, KindRoutingFunctionFailure, re.Kind)
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("panic", func(t *testing.T) {
		rule := Compute(func(Context, State) (string, error) { panic("router exploded") })
		_, err := resolve(testCtx(), "A", rule, State{})
		var re *RouteError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, KindRoutingFunctionFailure, re.Kind)
		var pe *PanicError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "router exploded", pe.Value)
	})

	t.Run("empty target", func(t *testing.T) {
		rule := Compute(func(Context, State) (string, error) { return "", nil })
		_, err := resolve(testCtx(), "A", rule, State{})
		var re *RouteError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, KindUnknownTarget, re.Kind)
		assert.True(t, errors.Is(err, ErrEmptyTarget))
	})
}

func TestRouteFailure(t *testing.T) {
	f := routeFailure("A", &RouteError{From: "A", Kind: KindRoutingKeyMissing, Err: errors.New("no case for k=v")})
	assert.Equal(t, KindRoutingKeyMissing, f.Kind)
	assert.Equal(t, "A", f.Node)
	assert.Equal(t, "no case for k=v", f.Message)

	f = routeFailure("A", errBoom)
	assert.Equal(t, KindRoutingFunctionFailure, f.Kind)
}
