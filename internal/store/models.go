package store

import (
	"encoding/json"
	"time"
)

// Session summarises one chat conversation.
type Session struct {
	ID       string `json:"session_id"`
	Messages int    `json:"messages"`
}

// RunRecord is an archived agent run. Result holds the JSON-encoded run
// result as produced by the agent.
type RunRecord struct {
	RunID     string          `json:"run_id"`
	Goal      string          `json:"goal"`
	Status    string          `json:"status"` // completed, stopped, needs_input
	Success   bool            `json:"success"`
	Summary   string          `json:"summary"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}
