package agent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/rahul/lexigpt/internal/tools"
)

// spyTool records its calls and answers with a fixed result.
type spyTool struct {
	name   tools.Name
	result tools.Result
	before func(input map[string]any)

	mu    sync.Mutex
	calls []map[string]any
}

func newSpy(name tools.Name, output any) *spyTool {
	return &spyTool{name: name, result: tools.OK(output, "spy ok")}
}

func (s *spyTool) Name() tools.Name           { return s.name }
func (s *spyTool) Description() string        { return "spy " + string(s.name) }
func (s *spyTool) Parameters() map[string]any { return map[string]any{"type": "object"} }

func (s *spyTool) Invoke(ctx context.Context, input map[string]any) tools.Result {
	s.mu.Lock()
	s.calls = append(s.calls, input)
	s.mu.Unlock()
	if s.before != nil {
		s.before(input)
	}
	return s.result
}

func (s *spyTool) Calls() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.calls...)
}

// planJSON renders a plan the way a model would answer.
func planJSON(t *testing.T, goal string, steps ...PlanStep) string {
	t.Helper()
	data, err := json.Marshal(Plan{Goal: goal, Steps: steps, MaxIterations: 6})
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func step(id int, tool string, input map[string]any) PlanStep {
	return PlanStep{StepID: id, Title: "step " + tool, Tool: tool, Input: input}
}

const evaluationOK = `{"success": true, "summary": "all good", "sources": ["IPC s.420"]}`
