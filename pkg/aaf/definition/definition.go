package definition

import (
	"errors"
	"fmt"
	"strconv"
)

// Node kinds built by Build.
const (
	KindRegistered = ""
	KindSet        = "set"
	KindTemplate   = "template"
	KindLLM        = "llm"
)

// ErrInvalidDefinition is wrapped by every Validate failure.
var ErrInvalidDefinition = errors.New("invalid definition")

// Definition is a declarative workflow graph.
type Definition struct {
	Name          string `yaml:"name" json:"name"`
	Description   string `yaml:"description,omitempty" json:"description,omitempty"`
	Entry         string `yaml:"entry" json:"entry"`
	Terminal      string `yaml:"terminal,omitempty" json:"terminal,omitempty"`
	MaxIterations int    `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`

	Nodes  []NodeSpec  `yaml:"nodes" json:"nodes"`
	Routes []RouteSpec `yaml:"routes" json:"routes"`
}

// NodeSpec declares one node. Fields other than ID and Kind apply to the
// built-in kinds only.
type NodeSpec struct {
	ID          string `yaml:"id" json:"id"`
	Kind        string `yaml:"kind,omitempty" json:"kind,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// set
	Values map[string]any `yaml:"values,omitempty" json:"values,omitempty"`

	// template
	Template string `yaml:"template,omitempty" json:"template,omitempty"`

	// llm
	Prompt      string  `yaml:"prompt,omitempty" json:"prompt,omitempty"`
	System      string  `yaml:"system,omitempty" json:"system,omitempty"`
	Model       string  `yaml:"model,omitempty" json:"model,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	UsageKey    string  `yaml:"usage_key,omitempty" json:"usage_key,omitempty"`

	// template and llm
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
	// Missing is keep, empty or error.
	Missing string `yaml:"missing,omitempty" json:"missing,omitempty"`
}

// RouteSpec declares the rule leaving From. Exactly one of Next, Switch
// or Branches is set.
type RouteSpec struct {
	From string `yaml:"from" json:"from"`

	Next string `yaml:"next,omitempty" json:"next,omitempty"`

	Switch string            `yaml:"switch,omitempty" json:"switch,omitempty"`
	Cases  map[string]string `yaml:"cases,omitempty" json:"cases,omitempty"`

	Branches []Branch `yaml:"branches,omitempty" json:"branches,omitempty"`
}

// Branch is one arm of a conditional route. An empty When always matches.
type Branch struct {
	When string `yaml:"when,omitempty" json:"when,omitempty"`
	To   string `yaml:"to" json:"to"`
}

// Validate checks the definition's shape. Whether node ids and targets
// resolve is checked by Build.
func (d *Definition) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidDefinition}, args...)...))
	}

	if d.Entry == "" {
		add("entry is required")
	}
	if d.MaxIterations < 0 {
		add("max_iterations must be >= 0")
	}

	seen := make(map[string]bool, len(d.Nodes))
	for i, n := range d.Nodes {
		if n.ID == "" {
			add("nodes[%d]: id is required", i)
			continue
		}
		if seen[n.ID] {
			add("duplicate node %s", n.ID)
		}
		seen[n.ID] = true

		switch n.Kind {
		case KindRegistered, KindSet:
		case KindTemplate:
			if n.Template == "" {
				add("node %s: template is required", n.ID)
			}
		case KindLLM:
			if n.Prompt == "" {
				add("node %s: prompt is required", n.ID)
			}
		default:
			add("node %s: unknown kind %q", n.ID, n.Kind)
		}
		if n.Missing != "" && (n.Kind == KindTemplate || n.Kind == KindLLM || n.Kind == KindSet) {
			if _, ok := parseMissing(n.Missing); !ok {
				add("node %s: unknown missing action %q", n.ID, n.Missing)
			}
		}
	}

	routed := make(map[string]bool, len(d.Routes))
	for i, r := range d.Routes {
		if r.From == "" {
			add("routes[%d]: from is required", i)
			continue
		}
		if routed[r.From] {
			add("duplicate route from %s", r.From)
		}
		routed[r.From] = true

		forms := 0
		if r.Next != "" {
			forms++
		}
		if r.Switch != "" || len(r.Cases) > 0 {
			forms++
			if r.Switch == "" {
				add("route from %s: cases without switch key", r.From)
			}
			if len(r.Cases) == 0 {
				add("route from %s: switch without cases", r.From)
			}
		}
		if len(r.Branches) > 0 {
			forms++
			for j, b := range r.Branches {
				if b.To == "" {
					add("route from %s: branches[%d]: to is required", r.From, j)
				}
				if b.When == "" && j != len(r.Branches)-1 {
					add("route from %s: branches[%d]: only the last branch may omit when", r.From, j)
				}
			}
		}
		if forms != 1 {
			add("route from %s: exactly one of next, switch or branches is required", r.From)
		}
	}
	return errors.Join(errs...)
}

// caseKeys returns the lookup keys for a case written as text. A case
// that reads as a bool or number also matches that typed state value.
func caseKeys(raw string) []any {
	keys := []any{raw}
	switch raw {
	case "true":
		keys = append(keys, true)
	case "false":
		keys = append(keys, false)
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		keys = append(keys, i)
	} else if f, err := strconv.ParseFloat(raw, 64); err == nil {
		keys = append(keys, f)
	}
	return keys
}
