package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *HistoryStore {
	t.Helper()
	h, err := NewHistoryStore(filepath.Join(t.TempDir(), "sub", "test.db"))
	if err != nil {
		t.Fatalf("NewHistoryStore: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistoryRoundTrip(t *testing.T) {
	h := newTestStore(t)
	ctx := context.Background()

	turns := []struct{ role, content string }{
		{"user", "What is Section 420 IPC?"},
		{"assistant", "It deals with cheating."},
		{"user", "Punishment?"},
		{"assistant", "Up to seven years."},
	}
	for _, turn := range turns {
		if err := h.AddMessage(ctx, "s1", turn.role, turn.content); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}
	if err := h.AddMessage(ctx, "s2", "user", "other session"); err != nil {
		t.Fatal(err)
	}

	history, err := h.GetHistory(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[0].Content != "Punishment?" || history[1].Role != "assistant" {
		t.Errorf("history not chronological: %+v", history)
	}

	sessions, err := h.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "s2" || sessions[1].Messages != 4 {
		t.Errorf("sessions = %+v", sessions)
	}

	n, err := h.ClearSession(ctx, "s1")
	if err != nil || n != 4 {
		t.Fatalf("ClearSession = %d, %v", n, err)
	}
	history, _ = h.GetHistory(ctx, "s1", 10)
	if len(history) != 0 {
		t.Errorf("history after clear = %+v", history)
	}
}

func TestRunArchive(t *testing.T) {
	h := newTestStore(t)
	ctx := context.Background()

	if _, err := h.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetRun(missing) err = %v, want ErrNotFound", err)
	}

	for _, id := range []string{"r1", "r2"} {
		rec := RunRecord{
			RunID:   id,
			Goal:    "goal " + id,
			Status:  "completed",
			Success: true,
			Summary: "done",
			Result:  []byte(`{"run_id":"` + id + `"}`),
		}
		if err := h.SaveRun(ctx, rec); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	got, err := h.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Goal != "goal r1" || !got.Success || string(got.Result) != `{"run_id":"r1"}` {
		t.Errorf("GetRun = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	runs, err := h.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d", len(runs))
	}
}
