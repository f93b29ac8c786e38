package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rahul/lexigpt/internal/chat"
	"github.com/rahul/lexigpt/internal/llm"
	"github.com/rahul/lexigpt/internal/rag"
	"github.com/rahul/lexigpt/internal/store"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"` // chat or rag
}

type searchRequest struct {
	Query     string `json:"query"`
	TopK      int    `json:"top_k"`
	SessionID string `json:"session_id"`
}

const sessionHistoryLimit = 200

func (h *handlers) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.Chat == nil {
		writeUnavailable(w, "chat")
		return
	}
	var req chatRequest
	if err := decodeJSONBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ans, err := h.Chat.Ask(r.Context(), req.SessionID, req.Message, strings.EqualFold(req.Mode, "rag"))
	if errors.Is(err, chat.ErrEmptyMessage) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.Logger.Warn("chat failed", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (h *handlers) handleSessions(w http.ResponseWriter, r *http.Request) {
	if h.Sessions == nil {
		writeUnavailable(w, "history")
		return
	}
	sessions, err := h.Sessions.ListSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *handlers) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	if h.Sessions == nil {
		writeUnavailable(w, "history")
		return
	}
	sessionID := r.PathValue("session_id")
	msgs, err := h.Sessions.GetHistory(r.Context(), sessionID, sessionHistoryLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(msgs) == 0 {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		SessionID string        `json:"session_id"`
		Messages  []llm.Message `json:"messages"`
	}{sessionID, msgs})
}

func (h *handlers) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	if h.Sessions == nil {
		writeUnavailable(w, "history")
		return
	}
	n, err := h.Sessions.ClearSession(r.Context(), r.PathValue("session_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

func (h *handlers) handleRAGSearch(w http.ResponseWriter, r *http.Request) {
	if h.Search == nil {
		writeUnavailable(w, "retrieval")
		return
	}
	var req searchRequest
	if err := decodeJSONBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "missing 'query' field")
		return
	}

	snippets, err := h.Search.Search(r.Context(), req.Query, req.TopK, req.SessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if snippets == nil {
		snippets = []rag.Snippet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": req.Query, "results": snippets})
}
