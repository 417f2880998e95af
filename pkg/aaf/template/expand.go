package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/swar00pduthks/Aaf/pkg/aaf/expr"
)

// pattern matches, in order: an escaped dollar, ${dotted.path} and $name.
var pattern = regexp.MustCompile(`\$\$|\$\{([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z0-9_]+)*)\}|\$([a-zA-Z_][a-zA-Z0-9_]*)`)

// Expander expands variable patterns in strings.
type Expander struct {
	missingAction MissingAction
	dollarStyle   bool
}

// NewExpander creates an Expander. Defaults: MissingKeep, dollar style on.
func NewExpander(opts ...Option) *Expander {
	e := &Expander{
		missingAction: MissingKeep,
		dollarStyle:   true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand replaces every placeholder in s with its value from vars.
// An error is returned only under MissingError.
func (e *Expander) Expand(s string, vars map[string]any) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}

	var missing []string
	out := pattern.ReplaceAllStringFunc(s, func(match string) string {
		if match == "$$" {
			return "$"
		}
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			if !e.dollarStyle {
				return match
			}
			name = match[1:]
		}

		if v := expr.Lookup(vars, strings.Split(name, ".")); v != nil {
			return format(v)
		}
		if _, present := vars[name]; present {
			return ""
		}
		switch e.missingAction {
		case MissingEmpty:
			return ""
		case MissingError:
			missing = append(missing, name)
		}
		return match
	})

	if len(missing) > 0 {
		return out, &UndefinedVariableError{Names: missing}
	}
	return out, nil
}

// MustExpand is Expand that panics on error.
func (e *Expander) MustExpand(s string, vars map[string]any) string {
	out, err := e.Expand(s, vars)
	if err != nil {
		panic(fmt.Sprintf("template: %v", err))
	}
	return out
}

// ExpandMap expands every string value of m, recursing into nested maps
// and slices. Other values are copied as is.
func (e *Expander) ExpandMap(m map[string]any, vars map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		expanded, err := e.expandValue(v, vars)
		if err != nil {
			return nil, err
		}
		out[k] = expanded
	}
	return out, nil
}

func (e *Expander) expandValue(v any, vars map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		return e.Expand(val, vars)
	case map[string]any:
		return e.ExpandMap(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			expanded, err := e.expandValue(item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	}
	return v, nil
}

// Variables returns the names referenced by s, in order of first use.
func Variables(s string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range pattern.FindAllStringSubmatch(s, -1) {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func format(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case map[string]any, []any, []string:
		if data, err := json.Marshal(val); err == nil {
			return string(data)
		}
	}
	return fmt.Sprint(v)
}

// UndefinedVariableError is returned under MissingError.
type UndefinedVariableError struct {
	// Names lists the undefined variables in order of appearance.
	Names []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return "undefined variable: " + e.Names[0]
	}
	return "undefined variables: " + strings.Join(e.Names, ", ")
}

var defaultExpander = NewExpander()

// Expand expands s with the default expander, keeping missing
// placeholders.
func Expand(s string, vars map[string]any) string {
	out, _ := defaultExpander.Expand(s, vars)
	return out
}
