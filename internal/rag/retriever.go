// Package rag holds the retrieval side of the legal corpus: similarity search
// over the vector store and the ingestion agent that fills it.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rahul/lexigpt/pkg/config"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/tmc/langchaingo/vectorstores/chroma"
)

const defaultTopK = 3

// Snippet is one retrieved passage.
type Snippet struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Retriever searches the vector store. When no store is configured, or the
// store fails, it falls back to keyword overlap over a small built-in corpus so
// the agent still gets grounded text.
type Retriever struct {
	store  vectorstores.VectorStore
	topK   int
	corpus []string
	logger *slog.Logger
}

var defaultCorpus = []string{
	"Jurisdiction clause defines governing law and venue.",
	"Non-disclosure agreements protect confidential information.",
	"Consideration is essential to form a valid contract.",
}

func NewRetriever(store vectorstores.VectorStore, topK int, logger *slog.Logger) *Retriever {
	if topK <= 0 {
		topK = defaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, topK: topK, corpus: defaultCorpus, logger: logger}
}

// NewChromaStore connects to the chroma collection used for the law corpus.
func NewChromaStore(cfg config.RAGConfig, embedder embeddings.Embedder) (vectorstores.VectorStore, error) {
	store, err := chroma.New(
		chroma.WithChromaURL(cfg.ChromaURL),
		chroma.WithNameSpace(cfg.Collection),
		chroma.WithEmbedder(embedder),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chroma: %w", err)
	}
	return &store, nil
}

// Search returns up to topK snippets for query. A non-empty sessionID limits
// results to documents tagged with that session.
func (r *Retriever) Search(ctx context.Context, query string, topK int, sessionID string) ([]Snippet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Snippet{}, nil
	}
	if topK <= 0 {
		topK = r.topK
	}

	if r.store != nil {
		var opts []vectorstores.Option
		if sessionID != "" {
			opts = append(opts, vectorstores.WithFilters(map[string]any{"session_id": sessionID}))
		}
		docs, err := r.store.SimilaritySearch(ctx, query, topK, opts...)
		if err == nil {
			return toSnippets(docs), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("vector search failed, using keyword fallback", "error", err)
	}
	return r.keywordSearch(query, topK), nil
}

func toSnippets(docs []schema.Document) []Snippet {
	out := make([]Snippet, 0, len(docs))
	for _, d := range docs {
		out = append(out, Snippet{
			Title:   documentTitle(d.Metadata),
			Content: strings.TrimSpace(d.PageContent),
			Score:   float64(d.Score),
		})
	}
	return out
}

func documentTitle(meta map[string]any) string {
	if t, ok := meta["title"].(string); ok && t != "" {
		return t
	}
	if s, ok := meta["source"].(string); ok && s != "" {
		return filepath.Base(s)
	}
	return "Unknown"
}

func (r *Retriever) keywordSearch(query string, topK int) []Snippet {
	tokens := map[string]bool{}
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		tokens[tok] = true
	}

	type scored struct {
		score int
		doc   string
	}
	var hits []scored
	for _, doc := range r.corpus {
		n := 0
		for _, tok := range strings.Fields(strings.ToLower(doc)) {
			if tokens[strings.Trim(tok, ".,;:")] {
				n++
			}
		}
		if n > 0 {
			hits = append(hits, scored{n, doc})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := []Snippet{}
	for _, h := range hits {
		if len(out) == topK {
			break
		}
		out = append(out, Snippet{Title: "builtin", Content: h.doc, Score: float64(h.score)})
	}
	if len(out) == 0 {
		for _, doc := range r.corpus {
			if len(out) == topK {
				break
			}
			out = append(out, Snippet{Title: "builtin", Content: doc})
		}
	}
	return out
}

// Context formats snippets as numbered passages for a chat prompt.
func Context(snippets []Snippet) string {
	var sb strings.Builder
	for i, s := range snippets {
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, s.Title, s.Content)
	}
	return sb.String()
}
