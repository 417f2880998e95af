package expr

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/swar00pduthks/Aaf/pkg/aaf/config"
)

// Compare applies a built-in operator to two values.
func Compare(left, right any, op string) (bool, error) {
	switch op {
	case "==":
		return Equal(left, right), nil
	case "!=":
		return !Equal(left, right), nil
	case "<", ">", "<=", ">=":
		c, err := order(left, right)
		if err != nil {
			return false, err
		}
		switch op {
		case "<":
			return c < 0, nil
		case ">":
			return c > 0, nil
		case "<=":
			return c <= 0, nil
		}
		return c >= 0, nil
	case "contains":
		return Contains(left, right), nil
	}
	return false, fmt.Errorf("unknown operator: %s", op)
}

// Equal compares numbers numerically and everything else by its printed
// value, so 1 == 1.0 and 'true' == true.
func Equal(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if l, ok := number(left); ok {
		if r, ok := number(right); ok {
			return l == r
		}
	}
	return fmt.Sprint(left) == fmt.Sprint(right)
}

func order(left, right any) (int, error) {
	if l, ok := number(left); ok {
		if r, ok := number(right); ok {
			switch {
			case l < r:
				return -1, nil
			case l > r:
				return 1, nil
			}
			return 0, nil
		}
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		return strings.Compare(ls, rs), nil
	}
	return 0, fmt.Errorf("cannot order %T and %T", left, right)
}

// Contains reports whether container holds item: a substring of a
// string, an element of a slice or a key of a map.
func Contains(container, item any) bool {
	switch c := container.(type) {
	case nil:
		return false
	case string:
		return strings.Contains(c, fmt.Sprint(item))
	case []any:
		for _, v := range c {
			if Equal(v, item) {
				return true
			}
		}
		return false
	case []string:
		s := fmt.Sprint(item)
		for _, v := range c {
			if v == s {
				return true
			}
		}
		return false
	case map[string]any:
		_, ok := c[fmt.Sprint(item)]
		return ok
	}
	rv := reflect.ValueOf(container)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if Equal(rv.Index(i).Interface(), item) {
				return true
			}
		}
	}
	return false
}

// Lookup resolves a dotted path in vars. Missing segments yield nil.
func Lookup(vars map[string]any, path []string) any {
	var cur any = vars
	for _, part := range path {
		switch m := cur.(type) {
		case map[string]any:
			cur = m[part]
		case config.Values:
			cur = m[part]
		case map[string]string:
			v, ok := m[part]
			if !ok {
				return nil
			}
			cur = v
		default:
			return nil
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

// IsTruthy reports whether v counts as true.
func IsTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	}
	if f, ok := number(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	}
	return true
}

func number(v any) (float64, bool) {
	if _, isString := v.(string); isString {
		return 0, false
	}
	return config.AsFloat64(v)
}
