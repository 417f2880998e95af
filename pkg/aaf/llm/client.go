package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Client completes requests against a language model.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

// Complete implements Client.
func (f ClientFunc) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return f(ctx, req)
}

// MockClient is a scripted Client. Without responses it echoes the last
// user message. It is safe for concurrent use.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	next      int
	err       error
	handler   func(CompletionRequest) (string, error)
	delay     time.Duration
	calls     []CompletionRequest
}

// NewMockClient creates a mock returning response on every call. An empty
// response makes it echo the prompt.
func NewMockClient(response string) *MockClient {
	m := &MockClient{}
	if response != "" {
		m.responses = []string{response}
	}
	return m
}

// WithResponses makes the mock cycle through responses.
func (m *MockClient) WithResponses(responses ...string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	m.next = 0
	return m
}

// WithError makes every call fail with err.
func (m *MockClient) WithError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithHandler computes each reply from the request.
func (m *MockClient) WithHandler(fn func(CompletionRequest) (string, error)) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
	return m
}

// WithDelay makes each call wait d or until the context is done.
func (m *MockClient) WithDelay(d time.Duration) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	delay := m.delay
	m.mu.Unlock()

	start := time.Now()
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := m.reply(req)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = "mock"
	}
	in := len(strings.Fields(req.SystemPrompt + " " + req.LastUserMessage()))
	out := len(strings.Fields(content))
	return &CompletionResponse{
		Content:      content,
		Model:        model,
		FinishReason: "stop",
		Usage:        TokenUsage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
		Duration:     time.Since(start),
	}, nil
}

func (m *MockClient) reply(req CompletionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.err != nil:
		return "", m.err
	case m.handler != nil:
		return m.handler(req)
	case len(m.responses) > 0:
		r := m.responses[m.next%len(m.responses)]
		m.next++
		return r, nil
	}
	return fmt.Sprintf("echo: %s", req.LastUserMessage()), nil
}

// Calls returns the requests received so far.
func (m *MockClient) Calls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.calls...)
}

// CallCount returns the number of requests received.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls and rewinds the response script.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.next = 0
}
