package llm

import (
	"errors"
	"fmt"

	"github.com/swar00pduthks/Aaf/pkg/aaf"
	"github.com/swar00pduthks/Aaf/pkg/aaf/template"
)

// DefaultOutputKey is where NewNodeFunc stores the reply.
const DefaultOutputKey = "response"

// ErrEmptyPrompt is returned when a rendered prompt is blank.
var ErrEmptyPrompt = errors.New("llm: empty prompt")

// NodeConfig describes an LLM node.
type NodeConfig struct {
	// Prompt is the user message template, expanded against the state.
	Prompt string
	// System is the system prompt template.
	System string
	// OutputKey receives the reply. Default DefaultOutputKey.
	OutputKey string
	// UsageKey, if set, receives the token usage as a map.
	UsageKey string

	Model       string
	MaxTokens   int
	Temperature float64

	// Missing controls placeholders without a state value. Default
	// template.MissingError, so a typo in a prompt fails the node.
	Missing *template.MissingAction
}

// NewNodeFunc returns a node function that renders cfg.Prompt from the
// state, calls client and stores the reply under cfg.OutputKey. Client
// errors become node failures.
//
//	reg.RegisterFunc("generate_sql", llm.NewNodeFunc(client, llm.NodeConfig{
//	    System:    "You translate questions into SQL.",
//	    Prompt:    "Question: ${message}",
//	    OutputKey: "sql",
//	}))
func NewNodeFunc(client Client, cfg NodeConfig) aaf.NodeFunc {
	if client == nil {
		panic("llm: client cannot be nil")
	}
	if cfg.OutputKey == "" {
		cfg.OutputKey = DefaultOutputKey
	}
	missing := template.MissingError
	if cfg.Missing != nil {
		missing = *cfg.Missing
	}
	exp := template.NewExpander(template.WithMissingAction(missing))

	return func(ctx aaf.Context, s aaf.State) (any, error) {
		vars := s.Values()
		prompt, err := exp.Expand(cfg.Prompt, vars)
		if err != nil {
			return nil, fmt.Errorf("render prompt: %w", err)
		}
		if prompt == "" {
			return nil, ErrEmptyPrompt
		}
		system, err := exp.Expand(cfg.System, vars)
		if err != nil {
			return nil, fmt.Errorf("render system prompt: %w", err)
		}

		req := CompletionRequest{
			SystemPrompt: system,
			Messages:     []Message{{Role: RoleUser, Content: prompt}},
			Model:        cfg.Model,
			MaxTokens:    cfg.MaxTokens,
			Temperature:  cfg.Temperature,
		}
		resp, err := client.Complete(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("completion: %w", err)
		}

		ctx.Logger().Debug("llm completion",
			"model", resp.Model,
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
			"duration_ms", resp.Duration.Milliseconds())

		out := aaf.Update{cfg.OutputKey: resp.Content}
		if cfg.UsageKey != "" {
			out[cfg.UsageKey] = map[string]any{
				"input_tokens":  resp.Usage.InputTokens,
				"output_tokens": resp.Usage.OutputTokens,
				"total_tokens":  resp.Usage.TotalTokens,
				"model":         resp.Model,
			}
		}
		return out, nil
	}
}
