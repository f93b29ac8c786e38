package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const maxPageChars = 50000

// ScraperTool implements fetch_url: readable text of a web page, sanitized.
type ScraperTool struct {
	UserAgent string
	client    *http.Client
}

func NewScraperTool() *ScraperTool {
	return &ScraperTool{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *ScraperTool) Name() Name {
	return FetchURL
}

func (s *ScraperTool) Description() string {
	return "Fetch a webpage URL and extract the main content as clean, sanitized text."
}

func (s *ScraperTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The full URL of the webpage (e.g., https://indiankanoon.org/doc/...)",
			},
		},
		"required": []string{"url"},
	}
}

func (s *ScraperTool) Invoke(ctx context.Context, input map[string]any) Result {
	rawURL := strings.TrimSpace(stringArg(input, "url"))
	parsedURL, err := url.Parse(rawURL)
	if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
		return Fail(fmt.Errorf("invalid url: %q", rawURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Fail(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", s.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return Fail(fmt.Errorf("failed to fetch URL: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Fail(fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode))
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return Fail(fmt.Errorf("failed to parse article: %w", err))
	}

	content := bluemonday.StrictPolicy().Sanitize(article.TextContent)
	truncated := false
	if r := []rune(content); len(r) > maxPageChars {
		content = string(r[:maxPageChars])
		truncated = true
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "TITLE: %s\n", article.Title)
	if article.Excerpt != "" {
		fmt.Fprintf(&sb, "EXCERPT: %s\n", article.Excerpt)
	}
	sb.WriteString("\n-- CONTENT --\n")
	sb.WriteString(content)
	if truncated {
		sb.WriteString("\n... (content truncated) ...")
	}
	return OK(sb.String(), fmt.Sprintf("fetched %s", rawURL))
}
