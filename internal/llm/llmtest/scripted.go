// Package llmtest provides deterministic completers for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rahul/lexigpt/internal/llm"
)

// ErrScriptExhausted is returned when a Scripted completer runs out of replies.
var ErrScriptExhausted = errors.New("llmtest: script exhausted")

// Call records one Complete invocation.
type Call struct {
	System  string
	User    string
	History []llm.Message
}

// Reply is one scripted answer.
type Reply struct {
	Text string
	Err  error
}

// Scripted replays a fixed list of replies in order.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	next    int
	calls   []Call
}

func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

// Texts scripts plain successful replies.
func Texts(texts ...string) *Scripted {
	replies := make([]Reply, len(texts))
	for i, t := range texts {
		replies[i] = Reply{Text: t}
	}
	return NewScripted(replies...)
}

func (s *Scripted) Complete(ctx context.Context, system, user string, history []llm.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{System: system, User: user, History: history})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.next >= len(s.replies) {
		return "", ErrScriptExhausted
	}
	r := s.replies[s.next]
	s.next++
	return r.Text, r.Err
}

func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Router answers by matching a substring of the user prompt, which keeps tests
// independent of call order when several roles share one completer.
type Router struct {
	mu       sync.Mutex
	routes   []route
	fallback string
	calls    []Call
}

type route struct {
	contains string
	reply    Reply
}

func NewRouter(fallback string) *Router {
	return &Router{fallback: fallback}
}

// On registers a reply for prompts containing substr. First match wins.
func (r *Router) On(substr string, text string) *Router {
	r.routes = append(r.routes, route{contains: substr, reply: Reply{Text: text}})
	return r
}

func (r *Router) OnError(substr string, err error) *Router {
	r.routes = append(r.routes, route{contains: substr, reply: Reply{Err: err}})
	return r
}

func (r *Router) Complete(ctx context.Context, system, user string, history []llm.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Call{System: system, User: user, History: history})
	for _, rt := range r.routes {
		if strings.Contains(user, rt.contains) || strings.Contains(system, rt.contains) {
			return rt.reply.Text, rt.reply.Err
		}
	}
	return r.fallback, nil
}

func (r *Router) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}
