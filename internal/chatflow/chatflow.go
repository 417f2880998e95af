// Package chatflow is the sample chat workflow served by aafd at /chat.
//
// A user query is classified, routed to SQL generation, a search tool or
// a research agent, and formatted into a response:
//
//	parse_intent ─┬─ database ─ generate_sql ─────┐
//	              ├─ tool ───── call_search_tool ─┼─ format_response ─ END
//	              └─ research ─ research_agent ───┘
package chatflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/swar00pduthks/Aaf/pkg/aaf"
	"github.com/swar00pduthks/Aaf/pkg/aaf/llm"
)

// Node ids.
const (
	ParseIntent    = "parse_intent"
	GenerateSQL    = "generate_sql"
	CallSearchTool = "call_search_tool"
	ResearchAgent  = "research_agent"
	FormatResponse = "format_response"
)

// Intents written by parse_intent.
const (
	IntentDatabase = "database"
	IntentTool     = "tool"
	IntentResearch = "research"
)

// Name is the graph name used in logs and metrics.
const Name = "chat"

// ErrEmptyQuery is returned by the workflow input for a blank query.
var ErrEmptyQuery = errors.New("user_query is required")

// SearchFunc looks a query up and returns result snippets.
type SearchFunc func(ctx context.Context, query string) ([]string, error)

// Options configures the chat workflow.
type Options struct {
	// LLM generates SQL and research summaries. Default llm.NewMockClient("").
	LLM llm.Client
	// Search serves call_search_tool and research_agent. Default CannedSearch.
	Search SearchFunc
	// Model is passed on every completion request.
	Model string
}

// CannedSearch returns a fixed result for any query.
func CannedSearch(_ context.Context, query string) ([]string, error) {
	return []string{fmt.Sprintf("Top result for %q", query)}, nil
}

var databaseWords = []string{"user", "database", "table", "sql", "rows"}

// Classify returns the intent of a query.
func Classify(query string) string {
	q := strings.ToLower(query)
	for _, w := range databaseWords {
		if strings.Contains(q, w) {
			return IntentDatabase
		}
	}
	if strings.Contains(q, "research") {
		return IntentResearch
	}
	return IntentTool
}

// Registry returns a registry holding the chat nodes.
func Registry(opts Options) *aaf.Registry {
	if opts.LLM == nil {
		opts.LLM = llm.NewMockClient("")
	}
	if opts.Search == nil {
		opts.Search = CannedSearch
	}

	reg := aaf.NewRegistry()
	reg.RegisterFunc(ParseIntent, parseIntent,
		aaf.WithDescription("Classifies the query as database, tool or research"))

	sql := llm.NewNodeFunc(opts.LLM, llm.NodeConfig{
		System:    "Translate the question into a single SQL query. Reply with SQL only.",
		Prompt:    "${user_query}",
		OutputKey: "sql",
		UsageKey:  "usage",
		Model:     opts.Model,
	})
	reg.RegisterFunc(GenerateSQL, tagged(sql, IntentDatabase),
		aaf.WithDescription("Generates SQL for the query"))

	reg.RegisterFunc(CallSearchTool, searchNode(opts.Search),
		aaf.WithDescription("Calls the search tool"))

	summarize := llm.NewNodeFunc(opts.LLM, llm.NodeConfig{
		System:    "You are a research assistant. Summarize the sources.",
		Prompt:    "Question: ${user_query}\nSources: ${search_results}",
		OutputKey: "research_results",
		UsageKey:  "usage",
		Model:     opts.Model,
	})
	reg.RegisterFunc(ResearchAgent, researchNode(opts.Search, summarize),
		aaf.WithDescription("Searches and summarizes findings"))

	reg.RegisterFunc(FormatResponse, formatResponse,
		aaf.WithDescription("Formats the final response"))
	return reg
}

// New compiles the chat graph.
func New(opts Options) (*aaf.CompiledGraph, error) {
	return aaf.New(Registry(opts), ParseIntent, aaf.Routes{
		ParseIntent: aaf.Match("intent", map[string]string{
			IntentDatabase: GenerateSQL,
			IntentTool:     CallSearchTool,
			IntentResearch: ResearchAgent,
		}),
		GenerateSQL:    aaf.To(FormatResponse),
		CallSearchTool: aaf.To(FormatResponse),
		ResearchAgent:  aaf.To(FormatResponse),
		FormatResponse: aaf.To(aaf.END),
	}, aaf.WithName(Name), aaf.WithDefaultMaxIterations(10))
}

// NewWorkflow wraps the chat graph so it runs from a query string.
func NewWorkflow(opts Options, runOpts ...aaf.RunOption) (*aaf.Workflow[string], error) {
	cg, err := New(opts)
	if err != nil {
		return nil, err
	}
	return aaf.NewWorkflow(cg, func(_ context.Context, query string) (aaf.State, error) {
		if strings.TrimSpace(query) == "" {
			return aaf.State{}, ErrEmptyQuery
		}
		return aaf.StateOf("user_query", query), nil
	}, runOpts...), nil
}

func parseIntent(ctx aaf.Context, s aaf.State) (any, error) {
	query := s.String("user_query", "")
	intent := Classify(query)
	ctx.Logger().Debug("intent detected", "intent", intent)
	return aaf.Update{"intent": intent, "original_query": query}, nil
}

// tagged adds query_type to the update produced by fn.
func tagged(fn aaf.NodeFunc, queryType string) aaf.NodeFunc {
	return func(ctx aaf.Context, s aaf.State) (any, error) {
		out, err := fn(ctx, s)
		if err != nil {
			return nil, err
		}
		u, ok := out.(aaf.Update)
		if !ok {
			return nil, fmt.Errorf("unexpected node result %T", out)
		}
		u["query_type"] = queryType
		return u, nil
	}
}

func searchNode(search SearchFunc) aaf.NodeFunc {
	return func(ctx aaf.Context, s aaf.State) (any, error) {
		results, err := search(ctx, s.String("user_query", ""))
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		return aaf.Update{"search_results": results, "query_type": IntentTool}, nil
	}
}

func researchNode(search SearchFunc, summarize aaf.NodeFunc) aaf.NodeFunc {
	return func(ctx aaf.Context, s aaf.State) (any, error) {
		results, err := search(ctx, s.String("user_query", ""))
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		out, err := tagged(summarize, IntentResearch)(ctx, s.With("search_results", results))
		if err != nil {
			return nil, err
		}
		u := out.(aaf.Update)
		u["search_results"] = results
		u["tools_used"] = []string{"search"}
		return u, nil
	}
}

func formatResponse(_ aaf.Context, s aaf.State) (any, error) {
	var response map[string]any
	switch qt := s.String("query_type", ""); qt {
	case IntentDatabase:
		response = map[string]any{
			"type":    "sql",
			"query":   s.String("sql", ""),
			"message": "Here's your SQL query",
		}
	case IntentTool:
		response = map[string]any{
			"type":    "search",
			"results": s.StringSlice("search_results", nil),
			"message": "Here are your search results",
		}
	case IntentResearch:
		response = map[string]any{
			"type":       "research",
			"findings":   s.String("research_results", ""),
			"tools_used": s.StringSlice("tools_used", nil),
			"message":    "Here's your research",
		}
	default:
		return nil, fmt.Errorf("unknown query type %q", qt)
	}
	return aaf.Update{"response": response}, nil
}
