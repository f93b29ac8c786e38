package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/rahul/lexigpt/internal/events"
	"github.com/rahul/lexigpt/internal/llm"
	"github.com/rahul/lexigpt/internal/tools"
)

const retryInstruction = "Please return the same plan as valid JSON only.\n\n"

const planSchema = `{ "goal": str, "rationale": str, "steps": [{"step_id": int, "title": str, "tool": str, "input": dict, "expectations": str}], "success_criteria": [str], "max_iterations": int, "next_steps": [str] }`

// Catalog is what the planner needs to know about the tool registry.
type Catalog interface {
	Has(name string) bool
	Inventory() string
}

// Planner turns a goal into a validated Plan with one completion call and at
// most one retry.
type Planner struct {
	llm     llm.Completer
	catalog Catalog
	prompts *PromptManager
	events  events.Emitter
	logger  *slog.Logger
}

func NewPlanner(completer llm.Completer, catalog Catalog, prompts *PromptManager, emitter events.Emitter, logger *slog.Logger) *Planner {
	if emitter == nil {
		emitter = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{llm: completer, catalog: catalog, prompts: prompts, events: emitter, logger: logger}
}

// DraftPlan asks the completion service for a plan. Every raw response is
// emitted as planner_output before it is parsed. The returned error is always
// a *PlanningError.
func (p *Planner) DraftPlan(ctx context.Context, goal string) (plan *Plan, err error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, &PlanningError{Err: ErrEmptyGoal}
	}

	ctx, span := startPlanSpan(ctx, goal)
	defer func() { endSpan(span, err) }()

	runID := events.RunIDFrom(ctx)
	system := p.prompts.PlannerPrompt()

	raw1, err := p.llm.Complete(ctx, system, p.renderPrompt(goal), nil)
	if err != nil {
		return nil, &PlanningError{Err: err}
	}
	p.events.Emit(events.New(runID, events.PlannerOutput{Raw: raw1, Attempt: 1}))

	plan, err1 := p.parse(raw1)
	if err1 == nil {
		plan.Goal = goal
		return plan, nil
	}
	p.logger.Warn("planner response rejected, retrying", "run_id", runID, "error", err1)

	raw2, err := p.llm.Complete(ctx, system, retryInstruction+raw1, nil)
	if err != nil {
		return nil, &PlanningError{Raw1: raw1, Err: errors.Join(err1, err)}
	}
	p.events.Emit(events.New(runID, events.PlannerOutput{Raw: raw2, Attempt: 2}))

	plan, err2 := p.parse(raw2)
	if err2 != nil {
		return nil, &PlanningError{Raw1: raw1, Raw2: raw2, Err: err2}
	}
	plan.Goal = goal
	return plan, nil
}

func (p *Planner) parse(raw string) (*Plan, error) {
	plan, err := DecodeJSON[Plan](raw)
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(p.catalog.Has); err != nil {
		return nil, err
	}
	return &plan, nil
}

// renderPrompt builds the planner prompt. The goal is concatenated, never
// formatted, so braces in it are kept verbatim.
func (p *Planner) renderPrompt(goal string) string {
	var sb strings.Builder
	sb.WriteString("GOAL:\n")
	sb.WriteString(goal)
	sb.WriteString("\n\nTOOL INVENTORY:\n")
	sb.WriteString(p.catalog.Inventory())
	sb.WriteString("- reason: Think through the problem without calling a tool. input={}\n")
	if p.catalog.Has(string(tools.DocGenerate)) {
		sb.WriteString("\nEXAMPLE doc_generate STEP:\n")
		sb.WriteString(tools.DocGenExample)
		sb.WriteString("\n")
	}
	sb.WriteString("\nReturn ONLY valid JSON matching the schema:\n")
	sb.WriteString(planSchema)
	sb.WriteString("\nRules: Use only listed tools or 'reason'. Prefer 2-5 steps. step_id starts at 1 and increases by 1. ")
	sb.WriteString("A step may use an earlier step's output by writing {{step_N.output}} in its input.\n")
	sb.WriteString(`Also include "next_steps": an array of exactly 3 short imperative follow-up actions for the user.`)
	return sb.String()
}
