package definition

import (
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

type hclDefinition struct {
	Name          string      `hcl:"name,optional"`
	Description   string      `hcl:"description,optional"`
	Entry         string      `hcl:"entry"`
	Terminal      string      `hcl:"terminal,optional"`
	MaxIterations int         `hcl:"max_iterations,optional"`
	Nodes         []*hclNode  `hcl:"node,block"`
	Routes        []*hclRoute `hcl:"route,block"`
}

type hclNode struct {
	ID          string     `hcl:"id,label"`
	Kind        string     `hcl:"kind,optional"`
	Description string     `hcl:"description,optional"`
	Values      *cty.Value `hcl:"values,optional"`
	Template    string     `hcl:"template,optional"`
	Prompt      string     `hcl:"prompt,optional"`
	System      string     `hcl:"system,optional"`
	Model       string     `hcl:"model,optional"`
	MaxTokens   int        `hcl:"max_tokens,optional"`
	Temperature float64    `hcl:"temperature,optional"`
	UsageKey    string     `hcl:"usage_key,optional"`
	Output      string     `hcl:"output,optional"`
	Missing     string     `hcl:"missing,optional"`
}

type hclRoute struct {
	From     string            `hcl:"from,label"`
	Next     string            `hcl:"next,optional"`
	Switch   string            `hcl:"switch,optional"`
	Cases    map[string]string `hcl:"cases,optional"`
	Branches []*hclBranch      `hcl:"branch,block"`
}

type hclBranch struct {
	When string `hcl:"when,optional"`
	To   string `hcl:"to"`
}

func parseHCL(data []byte, filename string) (*Definition, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse hcl definition %s: %s", filename, diags.Error())
	}

	var raw hclDefinition
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("decode hcl definition %s: %s", filename, diags.Error())
	}

	def := &Definition{
		Name:          raw.Name,
		Description:   raw.Description,
		Entry:         raw.Entry,
		Terminal:      raw.Terminal,
		MaxIterations: raw.MaxIterations,
	}
	for _, n := range raw.Nodes {
		spec := NodeSpec{
			ID:          n.ID,
			Kind:        n.Kind,
			Description: n.Description,
			Template:    n.Template,
			Prompt:      n.Prompt,
			System:      n.System,
			Model:       n.Model,
			MaxTokens:   n.MaxTokens,
			Temperature: n.Temperature,
			UsageKey:    n.UsageKey,
			Output:      n.Output,
			Missing:     n.Missing,
		}
		if n.Values != nil {
			v, err := ctyToGo(*n.Values)
			if err != nil {
				return nil, fmt.Errorf("node %s values: %w", n.ID, err)
			}
			m, ok := v.(map[string]any)
			if !ok && v != nil {
				return nil, fmt.Errorf("node %s values: expected an object, got %s", n.ID, n.Values.Type().FriendlyName())
			}
			spec.Values = m
		}
		def.Nodes = append(def.Nodes, spec)
	}
	for _, r := range raw.Routes {
		spec := RouteSpec{
			From:   r.From,
			Next:   r.Next,
			Switch: r.Switch,
			Cases:  r.Cases,
		}
		for _, b := range r.Branches {
			spec.Branches = append(spec.Branches, Branch{When: b.When, To: b.To})
		}
		def.Routes = append(def.Routes, spec)
	}
	return def, nil
}

// ctyToGo converts a cty value into plain Go values. Whole numbers become
// int64, other numbers float64.
func ctyToGo(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty == cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			gv, err := ctyToGo(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = gv
		}
		return out, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			gv, err := ctyToGo(v)
			if err != nil {
				return nil, err
			}
			out = append(out, gv)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
