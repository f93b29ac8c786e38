package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// WebSearcher is satisfied by the langchaingo duckduckgo tool.
type WebSearcher interface {
	Call(ctx context.Context, input string) (string, error)
}

// Search scopes narrow a query towards one kind of legal material.
const (
	ScopeAny       = ""
	ScopeJudgments = "judgments"
	ScopeStatutes  = "statutes"
	ScopeLegalNews = "news"
)

const defaultWebLimit = 5

var scopeQualifiers = map[string]string{
	ScopeJudgments: "judgment (site:indiankanoon.org OR site:main.sci.gov.in)",
	ScopeStatutes:  "act section (site:indiacode.nic.in OR site:legislative.gov.in)",
	ScopeLegalNews: "(site:livelaw.in OR site:barandbench.com)",
}

// Hosts whose pages are primary or reputable secondary legal sources.
var legalHosts = []string{
	"indiankanoon.org",
	"sci.gov.in",
	"indiacode.nic.in",
	"legislative.gov.in",
	"egazette.gov.in",
	"livelaw.in",
	"barandbench.com",
}

// WebHit is one search result.
type WebHit struct {
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	URL         string `json:"url"`
	LegalSource bool   `json:"legal_source"`
}

// SearchTool looks up Indian case law, bare acts and legal reporting that the
// local corpus does not hold.
type SearchTool struct {
	client WebSearcher
}

func NewSearchTool(maxResults int) (*SearchTool, error) {
	if maxResults <= 0 {
		maxResults = defaultWebLimit
	}
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &SearchTool{client: ddg}, nil
}

func NewSearchToolWithClient(client WebSearcher) *SearchTool {
	return &SearchTool{client: client}
}

func (s *SearchTool) Name() Name {
	return WebSearch
}

func (s *SearchTool) Description() string {
	return "Search the web for Indian judgments, bare acts, amendments and legal news not in the law corpus. " +
		"Results from court and government portals are flagged as legal sources."
}

func (s *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Legal question or citation, e.g. \"section 138 NI Act limitation\"",
			},
			"scope": map[string]any{
				"type":        "string",
				"enum":        []string{ScopeJudgments, ScopeStatutes, ScopeLegalNews},
				"description": "Restrict results to case law, statute text or legal reporting",
			},
		},
		"required": []string{"query"},
	}
}

func (s *SearchTool) Invoke(ctx context.Context, input map[string]any) Result {
	query := strings.TrimSpace(stringArg(input, "query"))
	if query == "" {
		return Fail(fmt.Errorf("missing query"))
	}
	scope := strings.ToLower(strings.TrimSpace(stringArg(input, "scope")))
	if _, ok := scopeQualifiers[scope]; !ok && scope != ScopeAny {
		return Fail(fmt.Errorf("unknown scope %q", scope))
	}

	q := legalQuery(query, scope)
	raw, err := s.client.Call(ctx, q)
	if err != nil {
		return Fail(fmt.Errorf("legal web search for %q failed: %w", query, err))
	}

	hits := parseHits(raw)
	legal := 0
	for _, h := range hits {
		if h.LegalSource {
			legal++
		}
	}
	return OK(hits, fmt.Sprintf("web search %q: %d results, %d from legal sources", q, len(hits), legal))
}

// legalQuery adds the scope qualifier and pins the jurisdiction to India
// unless the query already names it.
func legalQuery(query, scope string) string {
	parts := []string{query}
	if !strings.Contains(strings.ToLower(query), "india") {
		parts = append(parts, "India")
	}
	if q := scopeQualifiers[scope]; q != "" {
		parts = append(parts, q)
	}
	return strings.Join(parts, " ")
}

// parseHits reads the "Title:/Description:/URL:" records the duckduckgo
// client emits. Text without records yields no hits.
func parseHits(raw string) []WebHit {
	hits := []WebHit{}
	var cur WebHit
	flush := func() {
		if cur.Title != "" || cur.URL != "" {
			cur.LegalSource = isLegalHost(cur.URL)
			hits = append(hits, cur)
		}
		cur = WebHit{}
	}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "Title:"):
			if cur.Title != "" {
				flush()
			}
			cur.Title = strings.TrimSpace(strings.TrimPrefix(line, "Title:"))
		case strings.HasPrefix(line, "Description:"):
			cur.Snippet = strings.TrimSpace(strings.TrimPrefix(line, "Description:"))
		case strings.HasPrefix(line, "URL:"):
			cur.URL = strings.TrimSpace(strings.TrimPrefix(line, "URL:"))
		}
	}
	flush()
	return hits
}

func isLegalHost(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range legalHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
