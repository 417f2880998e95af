package chatflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swar00pduthks/Aaf/internal/chatflow"
	"github.com/swar00pduthks/Aaf/pkg/aaf"
	"github.com/swar00pduthks/Aaf/pkg/aaf/llm"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"Show me all users in the database", chatflow.IntentDatabase},
		{"how many rows in orders", chatflow.IntentDatabase},
		{"Research quantum computing applications", chatflow.IntentResearch},
		{"Search for latest AI news", chatflow.IntentTool},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, chatflow.Classify(tt.query), tt.query)
	}
}

func TestWorkflow_Routes(t *testing.T) {
	mock := llm.NewMockClient("SELECT * FROM users")
	wf, err := chatflow.NewWorkflow(chatflow.Options{LLM: mock})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("database", func(t *testing.T) {
		final, err := wf.Run(ctx, "Show me all users")
		require.NoError(t, err)
		assert.Equal(t, []string{chatflow.ParseIntent, chatflow.GenerateSQL, chatflow.FormatResponse}, final.Visited())
		resp, ok := final.Get("response")
		require.True(t, ok)
		assert.Equal(t, "sql", resp.(map[string]any)["type"])
		assert.Equal(t, "SELECT * FROM users", resp.(map[string]any)["query"])
		assert.Equal(t, aaf.HaltTerminal, final.Halt())
	})

	t.Run("tool", func(t *testing.T) {
		final, err := wf.Run(ctx, "Search for latest AI news")
		require.NoError(t, err)
		assert.Equal(t, chatflow.FormatResponse, final.FinalNode())
		assert.Contains(t, final.Visited(), chatflow.CallSearchTool)
		resp, _ := final.Get("response")
		assert.Equal(t, []string{`Top result for "Search for latest AI news"`}, resp.(map[string]any)["results"])
	})

	t.Run("research", func(t *testing.T) {
		final, err := wf.Run(ctx, "Research quantum computing")
		require.NoError(t, err)
		assert.Contains(t, final.Visited(), chatflow.ResearchAgent)
		resp, _ := final.Get("response")
		assert.Equal(t, []string{"search"}, resp.(map[string]any)["tools_used"])
	})
}

func TestWorkflow_EmptyQuery(t *testing.T) {
	wf, err := chatflow.NewWorkflow(chatflow.Options{})
	require.NoError(t, err)
	_, err = wf.Run(context.Background(), "  ")
	assert.ErrorIs(t, err, chatflow.ErrEmptyQuery)
}

func TestWorkflow_SearchFailure(t *testing.T) {
	errDown := errors.New("search unavailable")
	wf, err := chatflow.NewWorkflow(chatflow.Options{
		Search: func(context.Context, string) ([]string, error) { return nil, errDown },
	})
	require.NoError(t, err)

	final, err := wf.Run(context.Background(), "find cats")
	require.Error(t, err)
	assert.ErrorIs(t, err, aaf.ErrNodeFailure)
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, chatflow.CallSearchTool, final.Failure().Node)
	assert.False(t, final.Has("response"))
}

func TestNew_Shape(t *testing.T) {
	cg, err := chatflow.New(chatflow.Options{})
	require.NoError(t, err)
	assert.Equal(t, chatflow.Name, cg.Name())
	assert.Equal(t, chatflow.ParseIntent, cg.EntryPoint())
	assert.ElementsMatch(t,
		[]string{chatflow.CallSearchTool, chatflow.GenerateSQL, chatflow.ResearchAgent},
		cg.Successors(chatflow.ParseIntent))
}
