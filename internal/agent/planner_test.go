package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rahul/lexigpt/internal/events"
	"github.com/rahul/lexigpt/internal/llm/llmtest"
	"github.com/rahul/lexigpt/internal/tools"
)

func newTestPlanner(completer *llmtest.Scripted, sink events.Emitter) *Planner {
	reg := tools.NewRegistry(
		newSpy(tools.ReadFile, "text"),
		newSpy(tools.RegexExtract, []any{}),
		newSpy(tools.DocGenerate, "/tmp/out.pdf"),
	)
	return NewPlanner(completer, reg, NewPromptManager(""), sink, nil)
}

func TestDraftPlanFirstAttempt(t *testing.T) {
	raw := "Here is the plan:\n```json\n" + planJSON(t, "g",
		step(1, "read_file", map[string]any{"path": "a.txt"}),
		step(2, "reason", nil),
	) + "\n```"
	completer := llmtest.Texts(raw)
	sink := events.NewMemory()

	ctx := events.WithRunID(context.Background(), "run-1")
	plan, err := newTestPlanner(completer, sink).DraftPlan(ctx, "summarise a.txt")
	if err != nil {
		t.Fatalf("DraftPlan: %v", err)
	}
	if len(plan.Steps) != 2 || plan.Steps[1].Tool != ReasonTool {
		t.Errorf("plan = %+v", plan)
	}
	if plan.Steps[1].Input == nil {
		t.Error("missing input should default to an empty map")
	}

	outs := sink.OfType(events.TypePlannerOutput)
	if len(outs) != 1 {
		t.Fatalf("planner_output events = %d, want 1", len(outs))
	}
	if p := outs[0].Payload.(events.PlannerOutput); p.Raw != raw || p.Attempt != 1 || outs[0].RunID != "run-1" {
		t.Errorf("planner_output = %+v", outs[0])
	}

	prompt := completer.Calls()[0].User
	for _, want := range []string{"summarise a.txt", "read_file", "doc_generate", "reason", "next_steps", "{{step_N.output}}"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestDraftPlanRetry(t *testing.T) {
	good := planJSON(t, "g", step(1, "reason", nil))
	completer := llmtest.Texts("I cannot produce JSON right now.", good)
	sink := events.NewMemory()

	plan, err := newTestPlanner(completer, sink).DraftPlan(context.Background(), "goal")
	if err != nil {
		t.Fatalf("DraftPlan: %v", err)
	}
	if len(plan.Steps) != 1 {
		t.Errorf("plan = %+v", plan)
	}

	calls := completer.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if !strings.Contains(calls[1].User, "valid JSON only") || !strings.Contains(calls[1].User, "I cannot produce JSON") {
		t.Errorf("retry prompt = %q", calls[1].User)
	}
	if got := len(sink.OfType(events.TypePlannerOutput)); got != 2 {
		t.Errorf("planner_output events = %d, want 2", got)
	}
}

func TestDraftPlanInvalidPlanTriggersRetry(t *testing.T) {
	bad := planJSON(t, "g", step(2, "reason", nil))
	good := planJSON(t, "g", step(1, "reason", nil))
	completer := llmtest.Texts(bad, good)

	if _, err := newTestPlanner(completer, nil).DraftPlan(context.Background(), "goal"); err != nil {
		t.Fatalf("DraftPlan: %v", err)
	}
	if got := len(completer.Calls()); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestDraftPlanBothAttemptsFail(t *testing.T) {
	completer := llmtest.Texts("not json", "still not json")
	sink := events.NewMemory()

	plan, err := newTestPlanner(completer, sink).DraftPlan(context.Background(), "goal")
	if plan != nil {
		t.Errorf("plan = %+v, want nil", plan)
	}
	var perr *PlanningError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *PlanningError", err)
	}
	if perr.Raw1 != "not json" || perr.Raw2 != "still not json" {
		t.Errorf("raws = %q / %q", perr.Raw1, perr.Raw2)
	}
	if !strings.Contains(err.Error(), "not json") || !strings.Contains(err.Error(), "still not json") {
		t.Errorf("message should carry both responses: %v", err)
	}
	if got := len(sink.OfType(events.TypePlannerOutput)); got != 2 {
		t.Errorf("planner_output events = %d, want 2", got)
	}
}

func TestDraftPlanEmptyGoal(t *testing.T) {
	completer := llmtest.Texts()
	_, err := newTestPlanner(completer, nil).DraftPlan(context.Background(), "   ")
	if !errors.Is(err, ErrEmptyGoal) {
		t.Fatalf("err = %v, want ErrEmptyGoal", err)
	}
	if len(completer.Calls()) != 0 {
		t.Error("empty goal must not reach the completion service")
	}
}

func TestDraftPlanCompletionError(t *testing.T) {
	boom := errors.New("connection refused")
	completer := llmtest.NewScripted(llmtest.Reply{Err: boom})

	_, err := newTestPlanner(completer, nil).DraftPlan(context.Background(), "goal")
	var perr *PlanningError
	if !errors.As(err, &perr) || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestDraftPlanKeepsBracesInGoal(t *testing.T) {
	goal := `Fill {party} and {"x": 1} and {{step_1.output}} %s %d`
	completer := llmtest.Texts(planJSON(t, goal, step(1, "reason", nil)))

	if _, err := newTestPlanner(completer, nil).DraftPlan(context.Background(), goal); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(completer.Calls()[0].User, goal) {
		t.Errorf("goal was altered in prompt: %q", completer.Calls()[0].User)
	}
}

func TestDraftPlanUsesCallerGoal(t *testing.T) {
	noGoal := `{"steps": [{"step_id": 1, "title": "think", "tool": "reason"}], "max_iterations": 3}`
	tests := []struct {
		name    string
		replies []string
	}{
		{"goal omitted", []string{noGoal}},
		{"goal rewritten", []string{planJSON(t, "draft a lease instead", step(1, "reason", nil))}},
		{"goal rewritten on retry", []string{"no json", planJSON(t, "something else", step(1, "reason", nil))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := llmtest.Texts(tt.replies...)
			plan, err := newTestPlanner(completer, nil).DraftPlan(context.Background(), "  summarise section 420 IPC \n")
			if err != nil {
				t.Fatalf("DraftPlan: %v", err)
			}
			if plan.Goal != "summarise section 420 IPC" {
				t.Errorf("Goal = %q", plan.Goal)
			}
		})
	}
}
