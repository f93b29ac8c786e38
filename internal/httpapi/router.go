// Package httpapi exposes the agent, chat, retrieval and document services
// over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rahul/lexigpt/internal/agent"
	"github.com/rahul/lexigpt/internal/chat"
	"github.com/rahul/lexigpt/internal/docgen"
	"github.com/rahul/lexigpt/internal/events"
	"github.com/rahul/lexigpt/internal/llm"
	"github.com/rahul/lexigpt/internal/observability"
	"github.com/rahul/lexigpt/internal/rag"
	"github.com/rahul/lexigpt/internal/store"
)

// AgentRunner is the agent facade.
type AgentRunner interface {
	PlanAndRun(ctx context.Context, goal string) (*agent.Outcome, error)
	Start(ctx context.Context, goal string) (string, error)
	Get(ctx context.Context, runID string) (*agent.RunState, bool)
	Stop(runID string) bool
	StopAll() int
}

// EventSource is the durable log plus its live stream.
type EventSource interface {
	Subscribe() *events.Subscription
	ReadRecent(n int) ([]events.Event, error)
}

type ChatService interface {
	Ask(ctx context.Context, sessionID, question string, useRAG bool) (*chat.Answer, error)
}

type SessionStore interface {
	GetHistory(ctx context.Context, sessionID string, limit int) ([]llm.Message, error)
	ClearSession(ctx context.Context, sessionID string) (int64, error)
	ListSessions(ctx context.Context) ([]store.Session, error)
}

type Searcher interface {
	Search(ctx context.Context, query string, topK int, sessionID string) ([]rag.Snippet, error)
}

type Documents interface {
	Render(ctx context.Context, req docgen.Request) (string, error)
	DownloadURL(path string) string
	Path(filename string) (string, error)
}

type IngestControl interface {
	Start(ctx context.Context) error
	Stop() bool
	Running() bool
}

// Deps wires the services behind the routes. Nil services answer 503.
type Deps struct {
	Agent      AgentRunner
	Events     EventSource
	Chat       ChatService
	Sessions   SessionStore
	Search     Searcher
	Docs       Documents
	Ingest     IngestControl
	Status     *observability.Status
	KeepAlive  time.Duration
	RecentLogs int
	Logger     *slog.Logger
}

type handlers struct {
	Deps
}

func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.KeepAlive <= 0 {
		deps.KeepAlive = 15 * time.Second
	}
	if deps.RecentLogs <= 0 {
		deps.RecentLogs = 200
	}
	h := &handlers{Deps: deps}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.handleHealth)

	mux.HandleFunc("POST /api/agent/plan-run", h.handlePlanRun)
	mux.HandleFunc("POST /api/agent/runs", h.handleRunStart)
	mux.HandleFunc("GET /api/agent/runs/{run_id}", h.handleRunQuery)
	mux.HandleFunc("POST /api/agent/stop", h.handleRunStop)
	mux.HandleFunc("GET /api/agent/logs", h.handleLogs)
	mux.HandleFunc("GET /api/agent/stream", h.handleStream)
	mux.HandleFunc("POST /api/agent/ingest/run", h.handleIngestRun)
	mux.HandleFunc("POST /api/agent/ingest/stop", h.handleIngestStop)

	mux.HandleFunc("POST /api/chat", h.handleChat)
	mux.HandleFunc("GET /api/chats", h.handleSessions)
	mux.HandleFunc("GET /api/chat/{session_id}", h.handleSessionHistory)
	mux.HandleFunc("DELETE /api/chat/{session_id}", h.handleSessionClear)
	mux.HandleFunc("POST /api/rag/search", h.handleRAGSearch)

	mux.HandleFunc("POST /api/docgen", h.handleDocGen)
	mux.HandleFunc("GET /api/docgen/download/{filename}", h.handleDownload)
	return mux
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if h.Status != nil {
		snap := h.Status.Snapshot()
		resp["phase"] = snap.Phase
		resp["active_runs"] = snap.ActiveRuns
		resp["completed_runs"] = snap.CompletedRuns
		resp["failed_runs"] = snap.FailedRuns
	}
	writeJSON(w, http.StatusOK, resp)
}
