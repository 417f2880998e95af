package aaf

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"

	"github.com/swar00pduthks/Aaf/pkg/aaf/config"
)

// END is the default terminal marker.
const END = "END"

// RouterFunc computes the next node id from the state of the node that
// just ran. Returning an error halts the run with a
// RoutingFunctionFailure.
type RouterFunc func(ctx Context, s State) (string, error)

// Route is a routing rule. The set of implementations is closed: Static,
// Switch and Func.
type Route interface {
	isRoute()
}

// Static always routes to Target.
type Static struct {
	Target string
}

// Switch routes on the value of state[Key], looking it up in Cases by
// exact match. Integer and whole float values are normalized, so 1,
// int64(1) and 1.0 select the same case.
type Switch struct {
	Key   string
	Cases map[any]string
}

// Func routes to whatever Fn returns.
type Func struct {
	Fn RouterFunc
}

func (Static) isRoute() {}
func (Switch) isRoute() {}
func (Func) isRoute()   {}

// Routes maps a source node id to its rule. A node without an entry is an
// implicit terminal.
type Routes map[string]Route

// To returns a Static route.
func To(target string) Static {
	return Static{Target: target}
}

// When returns a Switch route.
//
//	aaf.When("intent", map[any]string{"x": "B", "y": "C"})
func When(key string, cases map[any]string) Switch {
	return Switch{Key: key, Cases: cases}
}

// Match returns a Switch route with string case values.
func Match(key string, cases map[string]string) Switch {
	m := make(map[any]string, len(cases))
	for k, v := range cases {
		m[k] = v
	}
	return Switch{Key: key, Cases: m}
}

// Compute returns a Func route.
func Compute(fn RouterFunc) Func {
	return Func{Fn: fn}
}

// validateRoute checks a rule's shape and returns its statically known
// targets.
func validateRoute(from string, r Route) ([]string, error) {
	switch rule := r.(type) {
	case Static:
		if rule.Target == "" {
			return nil, fmt.Errorf("%w: static route from %s has empty target", ErrInvalidRoute, from)
		}
		return []string{rule.Target}, nil
	case Switch:
		if rule.Key == "" {
			return nil, fmt.Errorf("%w: switch route from %s has empty key", ErrInvalidRoute, from)
		}
		if len(rule.Cases) == 0 {
			return nil, fmt.Errorf("%w: switch route from %s has no cases", ErrInvalidRoute, from)
		}
		targets := make([]string, 0, len(rule.Cases))
		seen := make(map[string]bool, len(rule.Cases))
		for k, target := range rule.Cases {
			if target == "" {
				return nil, fmt.Errorf("%w: switch route from %s has empty target for case %v", ErrInvalidRoute, from, k)
			}
			if !seen[target] {
				seen[target] = true
				targets = append(targets, target)
			}
		}
		sort.Strings(targets)
		return targets, nil
	case Func:
		if rule.Fn == nil {
			return nil, fmt.Errorf("%w: function route from %s has nil function", ErrInvalidRoute, from)
		}
		return nil, nil
	case nil:
		return nil, fmt.Errorf("%w: nil route from %s", ErrInvalidRoute, from)
	default:
		return nil, fmt.Errorf("%w: unsupported route type %T from %s", ErrInvalidRoute, r, from)
	}
}

// normalizeSwitch rewrites case keys into their lookup form.
func normalizeSwitch(sw Switch) Switch {
	cases := make(map[any]string, len(sw.Cases))
	for k, v := range sw.Cases {
		if nk, ok := caseKey(k); ok {
			cases[nk] = v
		}
	}
	return Switch{Key: sw.Key, Cases: cases}
}

// caseKey maps a state value to its Switch lookup key. Values that cannot
// be map keys report false.
func caseKey(v any) (any, bool) {
	if v == nil {
		return nil, true
	}
	switch v.(type) {
	case string, bool:
		return v, true
	}
	if i, ok := config.AsInt64(v); ok {
		return i, true
	}
	if f, ok := config.AsFloat64(v); ok {
		return f, true
	}
	if !reflect.TypeOf(v).Comparable() {
		return nil, false
	}
	return v, true
}

// resolve applies rule to s. The returned id has not been checked against
// the graph; the caller does that.
func resolve(ctx Context, from string, rule Route, s State) (next string, err error) {
	switch r := rule.(type) {
	case Static:
		return r.Target, nil

	case Switch:
		v, ok := s.Get(r.Key)
		if !ok {
			return "", &RouteError{
				From: from,
				Kind: KindRoutingKeyMissing,
				Err:  fmt.Errorf("%w: key %q not in state", ErrRoutingKeyMissing, r.Key),
			}
		}
		k, ok := caseKey(v)
		if !ok {
			return "", &RouteError{
				From: from,
				Kind: KindRoutingKeyMissing,
				Err:  fmt.Errorf("%w: value of %q is not a valid case (%T)", ErrRoutingKeyMissing, r.Key, v),
			}
		}
		target, ok := r.Cases[k]
		if !ok {
			return "", &RouteError{
				From: from,
				Kind: KindRoutingKeyMissing,
				Err:  fmt.Errorf("%w: no case for %s=%v", ErrRoutingKeyMissing, r.Key, v),
			}
		}
		return target, nil

	case Func:
		defer func() {
			if p := recover(); p != nil {
				next = ""
				err = &RouteError{
					From: from,
					Kind: KindRoutingFunctionFailure,
					Err: &PanicError{
						NodeID: from,
						Value:  p,
						Stack:  string(debug.Stack()),
					},
				}
			}
		}()
		target, ferr := r.Fn(ctx, s)
		if ferr != nil {
			return "", &RouteError{From: from, Kind: KindRoutingFunctionFailure, Err: ferr}
		}
		if target == "" {
			return "", &RouteError{From: from, Kind: KindUnknownTarget, Err: ErrEmptyTarget}
		}
		return target, nil
	}
	return "", &RouteError{From: from, Kind: KindRoutingFunctionFailure, Err: fmt.Errorf("%w: %T", ErrInvalidRoute, rule)}
}

// routeFailure converts a resolution error into the state failure.
func routeFailure(from string, err error) *Failure {
	var re *RouteError
	if errors.As(err, &re) {
		return newFailure(re.Kind, from, err)
	}
	return newFailure(KindRoutingFunctionFailure, from, err)
}
