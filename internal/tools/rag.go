package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/lexigpt/internal/rag"
)

// Searcher is the retrieval capability behind rag_search.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, sessionID string) ([]rag.Snippet, error)
}

type RAGTool struct {
	searcher Searcher
}

func NewRAGTool(searcher Searcher) *RAGTool {
	return &RAGTool{searcher: searcher}
}

func (r *RAGTool) Name() Name {
	return RAGSearch
}

func (r *RAGTool) Description() string {
	return "Search the legal knowledge base for relevant passages."
}

func (r *RAGTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The natural language query to search for",
			},
			"top_k": map[string]any{
				"type":        "integer",
				"description": "Number of passages to return (default 3)",
			},
			"session_id": map[string]any{
				"type":        "string",
				"description": "Restrict results to documents uploaded in this session",
			},
		},
		"required": []string{"query"},
	}
}

func (r *RAGTool) Invoke(ctx context.Context, input map[string]any) Result {
	query := strings.TrimSpace(stringArg(input, "query"))
	if query == "" {
		return Fail(fmt.Errorf("missing query"))
	}

	hits, err := r.searcher.Search(ctx, query, intArg(input, "top_k", 3), stringArg(input, "session_id"))
	if err != nil {
		return Fail(fmt.Errorf("search failed: %w", err))
	}
	return OK(hits, fmt.Sprintf("returned %d hits", len(hits)))
}
