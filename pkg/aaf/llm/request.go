// Package llm adapts language model calls into workflow nodes.
//
// A Client completes a request; NewNodeFunc turns a Client and a prompt
// template into an aaf.NodeFunc that renders the prompt from state and
// stores the reply under an output key. MockClient is a scripted Client
// for tests and examples.
package llm

import (
	"errors"
	"strings"
	"time"
)

// CompletionRequest configures a completion call.
type CompletionRequest struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`

	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`

	// Options carries provider-specific settings.
	Options map[string]any `json:"options,omitempty"`
}

// Message is a conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Role identifies the message sender.
type Role string

// Standard message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// CompletionResponse is the output of a completion call.
type CompletionResponse struct {
	Content      string        `json:"content"`
	Usage        TokenUsage    `json:"usage"`
	Model        string        `json:"model"`
	FinishReason string        `json:"finish_reason"`
	Duration     time.Duration `json:"duration"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// LastUserMessage returns the content of the last user turn.
func (r CompletionRequest) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// ErrInvalidModel is returned by ParseModel for a malformed model string.
var ErrInvalidModel = errors.New("invalid model string")

// DefaultProvider is assumed when a model string names no provider.
const DefaultProvider = "openai"

// ParseModel splits "provider:model" (for example "anthropic:claude-sonnet")
// into its parts. A bare model name uses DefaultProvider.
func ParseModel(s string) (provider, model string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", ErrInvalidModel
	}
	provider, model, found := strings.Cut(s, ":")
	if !found {
		return DefaultProvider, s, nil
	}
	if provider == "" || model == "" {
		return "", "", ErrInvalidModel
	}
	return strings.ToLower(provider), model, nil
}
