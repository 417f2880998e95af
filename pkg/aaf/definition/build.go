package definition

import (
	"errors"
	"fmt"

	"github.com/swar00pduthks/Aaf/pkg/aaf"
	"github.com/swar00pduthks/Aaf/pkg/aaf/expr"
	"github.com/swar00pduthks/Aaf/pkg/aaf/llm"
	"github.com/swar00pduthks/Aaf/pkg/aaf/template"
)

// DefaultOutputKey is where template nodes write when no output is named.
const DefaultOutputKey = "response"

// Build errors.
var (
	ErrUnknownNode     = errors.New("node not registered")
	ErrNodeConflict    = errors.New("built-in node shadows a registered node")
	ErrNoLLMClient     = errors.New("llm node requires an llm client")
	ErrNoBranchMatched = errors.New("no branch matched")
)

// BuildOptions supplies collaborators for built-in node kinds.
type BuildOptions struct {
	// LLM serves llm nodes. Required only when the definition has one.
	LLM llm.Client
	// Evaluator compiles branch conditions. Default expr.New().
	Evaluator *expr.Evaluator
}

// Build compiles def into a graph. Nodes without a kind are taken from
// reg (aaf.Default() when nil); only the nodes def lists are part of the
// graph.
func Build(def *Definition, reg *aaf.Registry, opts BuildOptions) (*aaf.CompiledGraph, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil definition", ErrInvalidDefinition)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = aaf.Default()
	}
	if opts.Evaluator == nil {
		opts.Evaluator = expr.New()
	}

	var errs []error
	scoped := aaf.NewRegistry()
	for _, spec := range def.Nodes {
		node, err := buildNode(spec, reg, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		scoped.Register(node)
	}

	terminal := def.Terminal
	if terminal == "" {
		terminal = aaf.END
	}

	g := aaf.NewGraph(scoped).SetEntry(def.Entry).SetTerminal(terminal)
	if def.Name != "" {
		g.SetName(def.Name)
	}
	if def.MaxIterations > 0 {
		if def.MaxIterations > aaf.MaxIterationsLimit {
			errs = append(errs, fmt.Errorf("%w: max_iterations exceeds %d", ErrInvalidDefinition, aaf.MaxIterationsLimit))
		} else {
			g.SetMaxIterations(def.MaxIterations)
		}
	}

	for _, r := range def.Routes {
		rule, err := buildRoute(r, scoped, terminal, opts.Evaluator)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		g.AddRoute(r.From, rule)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return g.Compile()
}

func buildNode(spec NodeSpec, reg *aaf.Registry, opts BuildOptions) (*aaf.Node, error) {
	registered, exists := reg.Get(spec.ID)
	if spec.Kind == KindRegistered {
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, spec.ID)
		}
		return registered, nil
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrNodeConflict, spec.ID)
	}

	var nodeOpts []aaf.NodeOption
	if spec.Description != "" {
		nodeOpts = append(nodeOpts, aaf.WithDescription(spec.Description))
	}
	missing, _ := parseMissing(spec.Missing)

	switch spec.Kind {
	case KindSet:
		return aaf.NewNode(spec.ID, setNode(spec.Values, missing), nodeOpts...), nil
	case KindTemplate:
		output := spec.Output
		if output == "" {
			output = DefaultOutputKey
		}
		return aaf.NewNode(spec.ID, templateNode(spec.Template, output, missing), nodeOpts...), nil
	case KindLLM:
		if opts.LLM == nil {
			return nil, fmt.Errorf("%w: node %s", ErrNoLLMClient, spec.ID)
		}
		return aaf.NewNode(spec.ID, llm.NewNodeFunc(opts.LLM, llm.NodeConfig{
			Prompt:      spec.Prompt,
			System:      spec.System,
			OutputKey:   spec.Output,
			UsageKey:    spec.UsageKey,
			Model:       spec.Model,
			MaxTokens:   spec.MaxTokens,
			Temperature: spec.Temperature,
			Missing:     &missing,
		}), nodeOpts...), nil
	default:
		return nil, fmt.Errorf("%w: node %s: unknown kind %q", ErrInvalidDefinition, spec.ID, spec.Kind)
	}
}

// parseMissing defaults to template.MissingError.
func parseMissing(s string) (template.MissingAction, bool) {
	if s == "" {
		return template.MissingError, true
	}
	return template.ParseMissingAction(s)
}

func setNode(values map[string]any, missing template.MissingAction) aaf.NodeFunc {
	exp := template.NewExpander(template.WithMissingAction(missing))
	return func(_ aaf.Context, s aaf.State) (any, error) {
		out, err := exp.ExpandMap(values, s.Values())
		if err != nil {
			return nil, err
		}
		return aaf.Update(out), nil
	}
}

func templateNode(tmpl, output string, missing template.MissingAction) aaf.NodeFunc {
	exp := template.NewExpander(template.WithMissingAction(missing))
	return func(_ aaf.Context, s aaf.State) (any, error) {
		text, err := exp.Expand(tmpl, s.Values())
		if err != nil {
			return nil, err
		}
		return aaf.Update{output: text}, nil
	}
}

func buildRoute(r RouteSpec, nodes *aaf.Registry, terminal string, ev *expr.Evaluator) (aaf.Route, error) {
	switch {
	case r.Next != "":
		return aaf.To(r.Next), nil

	case r.Switch != "":
		cases := make(map[any]string, len(r.Cases))
		for raw, target := range r.Cases {
			for _, k := range caseKeys(raw) {
				cases[k] = target
			}
		}
		return aaf.When(r.Switch, cases), nil

	default:
		return buildBranches(r, nodes, terminal, ev)
	}
}

type branch struct {
	cond *expr.Program
	to   string
}

// buildBranches compiles conditions up front and checks targets, since a
// function route's targets are invisible to Compile.
func buildBranches(r RouteSpec, nodes *aaf.Registry, terminal string, ev *expr.Evaluator) (aaf.Route, error) {
	var errs []error
	arms := make([]branch, 0, len(r.Branches))
	for i, b := range r.Branches {
		if b.To != terminal && !nodes.Has(b.To) {
			errs = append(errs, fmt.Errorf("%w: route from %s: branches[%d] target %s does not exist",
				aaf.ErrNodeNotFound, r.From, i, b.To))
		}
		arm := branch{to: b.To}
		if b.When != "" {
			prog, err := ev.Compile(b.When)
			if err != nil {
				errs = append(errs, fmt.Errorf("route from %s: branches[%d]: %w", r.From, i, err))
				continue
			}
			arm.cond = prog
		}
		arms = append(arms, arm)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	from := r.From
	return aaf.Compute(func(_ aaf.Context, s aaf.State) (string, error) {
		vars := s.Values()
		for _, arm := range arms {
			if arm.cond == nil {
				return arm.to, nil
			}
			ok, err := arm.cond.Eval(vars)
			if err != nil {
				return "", err
			}
			if ok {
				return arm.to, nil
			}
		}
		return "", fmt.Errorf("%w: from %s", ErrNoBranchMatched, from)
	}), nil
}
