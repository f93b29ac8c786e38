package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rahul/lexigpt/internal/llm"
)

// ErrNotFound is returned when a run id is not in the archive.
var ErrNotFound = errors.New("store: not found")

// HistoryStore keeps chat sessions and the run archive in one sqlite file.
type HistoryStore struct {
	DB *sql.DB
}

func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps :memory: databases shared and serialises writes.
	db.SetMaxOpenConns(1)

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			goal TEXT NOT NULL,
			status TEXT NOT NULL,
			success INTEGER NOT NULL,
			summary TEXT,
			result TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}

	return &HistoryStore{DB: db}, nil
}

func (h *HistoryStore) Close() error {
	return h.DB.Close()
}

func (h *HistoryStore) AddMessage(ctx context.Context, sessionID, role, content string) error {
	query := `INSERT INTO messages (session_id, role, content) VALUES (?, ?, ?)`
	_, err := h.DB.ExecContext(ctx, query, sessionID, role, content)
	return err
}

// GetHistory returns the last limit messages of a session, oldest first.
func (h *HistoryStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]llm.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT role, content FROM messages WHERE session_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := h.DB.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []llm.Message
	for rows.Next() {
		var m llm.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, err
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// ClearSession deletes every message of a session and reports how many went.
func (h *HistoryStore) ClearSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := h.DB.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListSessions returns sessions, most recently active first.
func (h *HistoryStore) ListSessions(ctx context.Context) ([]Session, error) {
	query := `
		SELECT session_id, COUNT(*), MAX(id)
		FROM messages
		GROUP BY session_id
		ORDER BY MAX(id) DESC`
	rows, err := h.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var lastID int64
		if err := rows.Scan(&s.ID, &s.Messages, &lastID); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SaveRun inserts or replaces an archived run.
func (h *HistoryStore) SaveRun(ctx context.Context, rec RunRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	query := `INSERT OR REPLACE INTO runs (run_id, goal, status, success, summary, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := h.DB.ExecContext(ctx, query,
		rec.RunID, rec.Goal, rec.Status, rec.Success, rec.Summary, string(rec.Result), rec.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (h *HistoryStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	query := `SELECT run_id, goal, status, success, summary, result, created_at FROM runs WHERE run_id = ?`
	rec, err := scanRun(h.DB.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListRuns returns the newest limit runs.
func (h *HistoryStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT run_id, goal, status, success, summary, result, created_at
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`
	rows, err := h.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var (
		rec     RunRecord
		summary sql.NullString
		result  string
		created string
	)
	if err := row.Scan(&rec.RunID, &rec.Goal, &rec.Status, &rec.Success, &summary, &result, &created); err != nil {
		return nil, err
	}
	rec.Summary = summary.String
	rec.Result = []byte(result)
	if t, err := time.Parse(time.RFC3339, created); err == nil {
		rec.CreatedAt = t
	}
	return &rec, nil
}
