// Package chat answers legal questions conversationally, optionally grounded
// in the retrieved corpus, and keeps the conversation in the history store.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rahul/lexigpt/internal/llm"
	"github.com/rahul/lexigpt/internal/rag"
)

// ErrEmptyMessage is returned for a blank question.
var ErrEmptyMessage = errors.New("message is required")

const (
	defaultSystemPrompt = "You are LexiGPT, an Indian legal assistant. Provide precise, well-structured, and citation-backed answers."
	defaultHistoryLimit = 10
	docStartedReply     = "Document generation started. Check Agent Logs for progress..."
)

// Requests like "draft a rental agreement" go to the agent instead of chat.
var documentRequestRe = regexp.MustCompile(`\b(create|generate|make|produce|draft|write|build|prepare)\b.*\b(pdf|document|contract|agreement|form|template|file|report|invoice|receipt|deed|lease|rental|license)\b`)

// History is the conversation store.
type History interface {
	AddMessage(ctx context.Context, sessionID, role, content string) error
	GetHistory(ctx context.Context, sessionID string, limit int) ([]llm.Message, error)
}

// Searcher retrieves corpus passages.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, sessionID string) ([]rag.Snippet, error)
}

// Starter launches agent runs in the background.
type Starter interface {
	Start(ctx context.Context, goal string) (string, error)
}

// Answer is the reply to one question.
type Answer struct {
	SessionID string        `json:"session_id"`
	Response  string        `json:"response"`
	Sources   []rag.Snippet `json:"sources,omitempty"`
	RunID     string        `json:"run_id,omitempty"`
}

type Service struct {
	llm          llm.Completer
	history      History
	search       Searcher
	agent        Starter
	systemPrompt string
	historyLimit int
	topK         int
	logger       *slog.Logger
}

type Option func(*Service)

func WithSearcher(s Searcher) Option {
	return func(svc *Service) { svc.search = s }
}

// WithAgent routes document requests to the agent.
func WithAgent(a Starter) Option {
	return func(svc *Service) { svc.agent = a }
}

func WithSystemPrompt(p string) Option {
	return func(svc *Service) {
		if strings.TrimSpace(p) != "" {
			svc.systemPrompt = p
		}
	}
}

func WithHistoryLimit(n int) Option {
	return func(svc *Service) {
		if n > 0 {
			svc.historyLimit = n
		}
	}
}

func NewService(completer llm.Completer, history History, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		llm:          completer,
		history:      history,
		systemPrompt: defaultSystemPrompt,
		historyLimit: defaultHistoryLimit,
		topK:         3,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Ask answers question within sessionID, creating a session when the id is
// empty. With useRAG the answer is grounded in retrieved passages.
func (s *Service) Ask(ctx context.Context, sessionID, question string, useRAG bool) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyMessage
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if s.agent != nil && documentRequestRe.MatchString(strings.ToLower(question)) {
		return s.startDocument(ctx, sessionID, question)
	}

	history, err := s.history.GetHistory(ctx, sessionID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if err := s.history.AddMessage(ctx, sessionID, "user", question); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	answer := &Answer{SessionID: sessionID}
	prompt := question
	if useRAG && s.search != nil {
		// The ingested law corpus carries no session tag.
		snippets, err := s.search.Search(ctx, question, s.topK, "")
		if err != nil {
			s.logger.Warn("retrieval failed", "session_id", sessionID, "error", err)
		}
		answer.Sources = snippets
		prompt = groundedPrompt(question, snippets)
	}

	reply, err := s.llm.Complete(ctx, s.systemPrompt, prompt, history)
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}
	answer.Response = strings.TrimSpace(reply)

	if err := s.history.AddMessage(ctx, sessionID, "assistant", answer.Response); err != nil {
		s.logger.Warn("failed to save reply", "session_id", sessionID, "error", err)
	}
	return answer, nil
}

func (s *Service) startDocument(ctx context.Context, sessionID, question string) (*Answer, error) {
	goal := "The user is asking you to create a document. Their request: " + question + "\n\n" +
		"Plan the steps to gather any required information, ask the user for missing details if needed, " +
		"and then generate a downloadable document using the doc_generate tool."

	runID, err := s.agent.Start(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("start document run: %w", err)
	}
	for _, m := range []struct{ role, text string }{{"user", question}, {"assistant", docStartedReply}} {
		if err := s.history.AddMessage(ctx, sessionID, m.role, m.text); err != nil {
			s.logger.Warn("failed to save message", "session_id", sessionID, "error", err)
		}
	}
	return &Answer{SessionID: sessionID, Response: docStartedReply, RunID: runID}, nil
}

func groundedPrompt(question string, snippets []rag.Snippet) string {
	passages := strings.TrimSpace(rag.Context(snippets))
	if passages == "" {
		passages = "No relevant context found."
	}
	return "Use ONLY the provided Indian legal context to answer the user's question. " +
		"Cite the section titles in brackets when possible. " +
		"If the context is insufficient, explicitly say so." +
		"\n\nContext:\n" + passages + "\n\nQuestion:\n" + question + "\n\nAnswer:"
}
