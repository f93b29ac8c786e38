package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rahul/lexigpt/internal/agent"
	"github.com/rahul/lexigpt/internal/events"
	"github.com/rahul/lexigpt/internal/rag"
)

type goalRequest struct {
	Goal string `json:"goal"`
}

type stopRequest struct {
	RunID string `json:"run_id"`
}

func (h *handlers) readGoal(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Agent == nil {
		writeUnavailable(w, "agent")
		return "", false
	}
	var req goalRequest
	if err := decodeJSONBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	goal := strings.TrimSpace(req.Goal)
	if goal == "" {
		writeError(w, http.StatusBadRequest, agent.ErrEmptyGoal.Error())
		return "", false
	}
	return goal, true
}

func (h *handlers) handlePlanRun(w http.ResponseWriter, r *http.Request) {
	goal, ok := h.readGoal(w, r)
	if !ok {
		return
	}

	out, err := h.Agent.PlanAndRun(r.Context(), goal)
	if err != nil {
		h.Logger.Warn("plan-run failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) handleRunStart(w http.ResponseWriter, r *http.Request) {
	goal, ok := h.readGoal(w, r)
	if !ok {
		return
	}

	runID, err := h.Agent.Start(r.Context(), goal)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "started"})
}

func (h *handlers) handleRunQuery(w http.ResponseWriter, r *http.Request) {
	if h.Agent == nil {
		writeUnavailable(w, "agent")
		return
	}
	runID := strings.TrimSpace(r.PathValue("run_id"))
	st, ok := h.Agent.Get(r.Context(), runID)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleRunStop stops one run, or every run when no run_id is given.
func (h *handlers) handleRunStop(w http.ResponseWriter, r *http.Request) {
	if h.Agent == nil {
		writeUnavailable(w, "agent")
		return
	}
	var req stopRequest
	if err := decodeJSONBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.RunID == "" {
		n := h.Agent.StopAll()
		writeJSON(w, http.StatusOK, map[string]any{"status": "stopping", "runs": n})
		return
	}
	if !h.Agent.Stop(req.RunID) {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_running"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "stopping", "runs": 1})
}

func (h *handlers) handleLogs(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		writeUnavailable(w, "event log")
		return
	}
	n := h.RecentLogs
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = v
	}

	evts, err := h.Events.ReadRecent(n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if evts == nil {
		evts = []events.Event{}
	}
	writeJSON(w, http.StatusOK, evts)
}

// handleStream relays live events as server-sent events, with a comment
// line whenever the stream has been idle for the keep-alive interval.
func (h *handlers) handleStream(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		writeUnavailable(w, "event log")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming is unsupported by response writer")
		return
	}

	sub := h.Events.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		evt, ok, err := sub.Next(r.Context(), h.KeepAlive)
		if err != nil {
			return
		}
		if !ok {
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
			continue
		}
		data, err := json.Marshal(evt)
		if err != nil {
			h.Logger.Warn("failed to encode event", "type", evt.Type, "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (h *handlers) handleIngestRun(w http.ResponseWriter, r *http.Request) {
	if h.Ingest == nil {
		writeUnavailable(w, "ingestion")
		return
	}
	err := h.Ingest.Start(context.WithoutCancel(r.Context()))
	if errors.Is(err, rag.ErrAlreadyRunning) {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "already_running"})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (h *handlers) handleIngestStop(w http.ResponseWriter, r *http.Request) {
	if h.Ingest == nil {
		writeUnavailable(w, "ingestion")
		return
	}
	if !h.Ingest.Stop() {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_running"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}
