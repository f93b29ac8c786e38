package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// ErrEmptyResponse is returned when the provider answers with no choices.
var ErrEmptyResponse = errors.New("llm: empty response")

// Message is one prior turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer is the completion-service capability consumed by the planner,
// executor and chat service. It is synchronous and fallible.
type Completer interface {
	Complete(ctx context.Context, system, user string, history []Message) (string, error)
}

// Model adapts a langchaingo model to Completer.
type Model struct {
	model       llms.Model
	name        string
	temperature float64
	maxTokens   int
}

type ModelOption func(*Model)

func WithTemperature(t float64) ModelOption {
	return func(m *Model) { m.temperature = t }
}

func WithMaxTokens(n int) ModelOption {
	return func(m *Model) { m.maxTokens = n }
}

func NewModel(model llms.Model, name string, opts ...ModelOption) *Model {
	m := &Model{
		model:       model,
		name:        name,
		temperature: 0.15,
		maxTokens:   768,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Model) Name() string {
	return m.name
}

func (m *Model) Complete(ctx context.Context, system, user string, history []Message) (string, error) {
	messages := BuildMessages(system, user, history)

	callOpts := []llms.CallOption{llms.WithTemperature(m.temperature)}
	if m.maxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(m.maxTokens))
	}

	resp, err := m.model.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", m.name, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

// BuildMessages assembles system prompt, normalised history and the user
// prompt in that order. History entries with unknown roles or no content are
// skipped.
func BuildMessages(system, user string, history []Message) []llms.MessageContent {
	var messages []llms.MessageContent
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}

	for _, h := range history {
		if strings.TrimSpace(h.Content) == "" {
			continue
		}
		var role llms.ChatMessageType
		switch strings.ToLower(h.Role) {
		case "user", "human":
			role = llms.ChatMessageTypeHuman
		case "assistant", "ai":
			role = llms.ChatMessageTypeAI
		case "system":
			role = llms.ChatMessageTypeSystem
		default:
			continue
		}
		messages = append(messages, llms.TextParts(role, h.Content))
	}

	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, user))
	return messages
}

// Fallback tries the primary completer and, on error, the secondary one.
type Fallback struct {
	primary   Completer
	secondary Completer
	logger    *slog.Logger
}

func NewFallback(primary, secondary Completer, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

func (f *Fallback) Complete(ctx context.Context, system, user string, history []Message) (string, error) {
	out, err := f.primary.Complete(ctx, system, user, history)
	if err == nil || f.secondary == nil {
		return out, err
	}
	if ctx.Err() != nil {
		return "", err
	}

	f.logger.Warn("primary completion failed, using fallback", "error", err)
	out, err2 := f.secondary.Complete(ctx, system, user, history)
	if err2 != nil {
		return "", errors.Join(err, err2)
	}
	return out, nil
}
