package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/tmc/langchaingo/vectorstores"

	"github.com/rahul/lexigpt/internal/agent"
	"github.com/rahul/lexigpt/internal/chat"
	"github.com/rahul/lexigpt/internal/docgen"
	"github.com/rahul/lexigpt/internal/events"
	"github.com/rahul/lexigpt/internal/governance"
	"github.com/rahul/lexigpt/internal/llm"
	"github.com/rahul/lexigpt/internal/observability"
	"github.com/rahul/lexigpt/internal/rag"
	"github.com/rahul/lexigpt/internal/store"
	"github.com/rahul/lexigpt/internal/tools"
	"github.com/rahul/lexigpt/pkg/config"
)

// app holds every wired component of one process.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	sink    *events.Sink
	history *store.HistoryStore
	vectors vectorstores.VectorStore

	retriever *rag.Retriever
	docs      *docgen.Service
	registry  *tools.Registry
	agent     *agent.Service
	chat      *chat.Service
	ingester  *rag.Ingester
	status    *observability.Status
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.App.LogLevel = logLevel
	}
	logger := observability.NewLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newSink(cfg *config.Config, logger *slog.Logger) *events.Sink {
	return events.NewSink(events.SinkConfig{
		Path:             cfg.Agent.LogPath,
		MaxSize:          cfg.Agent.LogMaxSize,
		SubscriberBuffer: cfg.Agent.SubscriberBuffer,
		Echo:             cfg.App.LogLevel == "debug",
	}, logger)
}

// newApp wires the full service graph. The vector store is optional: when it
// cannot be reached the retriever answers from its keyword fallback and
// ingestion is disabled.
func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, status: observability.NewStatus()}
	a.sink = newSink(cfg, logger)

	completer, err := llm.NewCompleter(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	a.history, err = store.NewHistoryStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	if embedder, err := llm.NewEmbedder(cfg.RAG.Embedder); err != nil {
		logger.Warn("embedder unavailable, vector search disabled", "error", err)
	} else if vs, err := rag.NewChromaStore(cfg.RAG, embedder); err != nil {
		logger.Warn("vector store unavailable, using keyword fallback", "error", err)
	} else {
		a.vectors = vs
	}
	a.retriever = rag.NewRetriever(a.vectors, cfg.RAG.TopK, logger.With("component", "rag"))
	if a.vectors != nil {
		a.ingester = rag.NewIngester(cfg.Ingest, a.vectors, a.sink, logger.With("component", "ingest"))
	}

	docOpts := []docgen.Option{
		docgen.WithDownloadBase(cfg.DocGen.DownloadBase),
		docgen.WithLogger(logger.With("component", "docgen")),
	}
	if cfg.DocGen.RemoteURL != "" {
		docOpts = append(docOpts, docgen.WithRemote(docgen.NewRemote(cfg.DocGen.RemoteURL, cfg.DocGen.RemoteTimeout)))
	}
	a.docs = docgen.NewService(cfg.DocGen.OutputDir, docOpts...)

	a.registry = buildRegistry(cfg, a.retriever, a.docs, a.sink, logger)

	policy, err := governance.FromConfig(cfg.Policy)
	if err != nil {
		return nil, err
	}

	prompts := agent.NewPromptManager(cfg.Agent.PromptsDir)
	agentLogger := logger.With("component", "agent")
	planner := agent.NewPlanner(completer, a.registry, prompts, a.sink, agentLogger)
	executor := agent.NewExecutor(completer, a.registry, prompts, a.sink, agentLogger,
		agent.WithPolicy(policy),
		agent.WithPreviewLimit(cfg.Agent.PreviewLimit),
	)
	a.agent = agent.NewService(planner, executor, a.sink, agentLogger, agent.WithArchive(a.history))

	chatOpts := []chat.Option{
		chat.WithSearcher(a.retriever),
		chat.WithAgent(a.agent),
		chat.WithSystemPrompt(prompts.PersonaPrompt(cfg.Chat.SystemPrompt)),
		chat.WithHistoryLimit(cfg.Chat.HistoryLimit),
	}
	a.chat = chat.NewService(completer, a.history, logger.With("component", "chat"), chatOpts...)

	go func() {
		if err := a.status.Follow(ctx, a.sink.Subscribe()); err != nil && ctx.Err() == nil {
			logger.Warn("status board stopped", "error", err)
		}
	}()
	return a, nil
}

func buildRegistry(cfg *config.Config, retriever *rag.Retriever, docs *docgen.Service, emitter events.Emitter, logger *slog.Logger) *tools.Registry {
	registry := tools.NewRegistry(
		tools.NewFilesystemTool(cfg.App.Workspace),
		tools.NewRegexTool(),
		tools.NewRAGTool(retriever),
		tools.NewDocGenTool(docs, emitter),
	)
	if cfg.Tools.WebSearch {
		search, err := tools.NewSearchTool(5)
		if err != nil {
			logger.Warn("web search unavailable", "error", err)
		} else {
			registry.Register(search)
		}
	}
	if cfg.Tools.FetchURL {
		registry.Register(tools.NewScraperTool())
	}
	return registry
}

func (a *app) close() {
	a.agent.StopAll()
	a.agent.Wait()
	if a.ingester != nil {
		a.ingester.Stop()
	}
	if err := a.history.Close(); err != nil {
		a.logger.Warn("failed to close history store", "error", err)
	}
}
