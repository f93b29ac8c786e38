package docgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Remote delegates rendering to an HTTP document service that accepts the
// Request JSON and answers {"file_path": "..."}.
type Remote struct {
	url    string
	client *http.Client
}

func NewRemote(url string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Remote{url: url, client: &http.Client{Timeout: timeout}}
}

func (r *Remote) Render(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("remote renderer: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("remote renderer: status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var out struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("remote renderer: invalid response: %w", err)
	}
	if out.FilePath == "" {
		return "", fmt.Errorf("remote renderer: response without file_path")
	}
	return out.FilePath, nil
}
