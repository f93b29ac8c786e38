package llm

import (
	"fmt"
	"log/slog"

	"github.com/rahul/lexigpt/pkg/config"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewProviderModel builds the langchaingo model for one provider entry.
func NewProviderModel(p config.ProviderConfig) (llms.Model, error) {
	switch p.Provider {
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(p.Model)}
		if p.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(p.BaseURL))
		}
		return ollama.New(opts...)
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("provider %q not supported", p.Provider)
	}
}

// NewCompleter builds the primary completer and wraps it with the fallback
// provider when one is configured.
func NewCompleter(cfg config.LLMConfig, logger *slog.Logger) (Completer, error) {
	primary, err := newProviderCompleter(cfg.Primary)
	if err != nil {
		return nil, fmt.Errorf("primary llm: %w", err)
	}
	if cfg.Fallback == nil || cfg.Fallback.Provider == "" {
		return primary, nil
	}

	secondary, err := newProviderCompleter(*cfg.Fallback)
	if err != nil {
		return nil, fmt.Errorf("fallback llm: %w", err)
	}
	return NewFallback(primary, secondary, logger), nil
}

func newProviderCompleter(p config.ProviderConfig) (*Model, error) {
	model, err := NewProviderModel(p)
	if err != nil {
		return nil, err
	}

	var opts []ModelOption
	if p.Temperature > 0 {
		opts = append(opts, WithTemperature(p.Temperature))
	}
	if p.MaxTokens > 0 {
		opts = append(opts, WithMaxTokens(p.MaxTokens))
	}
	return NewModel(model, p.Provider+"/"+p.Model, opts...), nil
}

// NewEmbedder builds the embedder used by the vector store. Both the ollama
// and openai clients implement embeddings.EmbedderClient.
func NewEmbedder(p config.ProviderConfig) (embeddings.Embedder, error) {
	var client embeddings.EmbedderClient
	switch p.Provider {
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(p.Model)}
		if p.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(p.BaseURL))
		}
		c, err := ollama.New(opts...)
		if err != nil {
			return nil, err
		}
		client = c
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithEmbeddingModel(p.Model),
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		c, err := openai.New(opts...)
		if err != nil {
			return nil, err
		}
		client = c
	default:
		return nil, fmt.Errorf("embedder provider %q not supported", p.Provider)
	}
	return embeddings.NewEmbedder(client)
}
