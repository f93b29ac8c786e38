package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/rahul/lexigpt/internal/events"
	"github.com/rahul/lexigpt/internal/governance"
	"github.com/rahul/lexigpt/internal/llm"
	"github.com/rahul/lexigpt/internal/tools"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultPreviewLimit = 400
	reasonLogs          = "internal reasoning"
	reasonPreview       = "(no external action)"
)

// defaultFields is requested when the field enumeration call yields nothing.
var defaultFields = []string{"content"}

// Executor runs plan steps in order against the tool registry and asks the
// evaluator to judge the outcome.
type Executor struct {
	llm          llm.Completer
	tools        tools.Invoker
	policy       governance.PolicyEngine
	prompts      *PromptManager
	events       events.Emitter
	logger       *slog.Logger
	previewLimit int
}

type ExecutorOption func(*Executor)

// WithPolicy consults engine before each tool dispatch.
func WithPolicy(engine governance.PolicyEngine) ExecutorOption {
	return func(e *Executor) { e.policy = engine }
}

func WithPreviewLimit(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.previewLimit = n
		}
	}
}

func NewExecutor(completer llm.Completer, registry tools.Invoker, prompts *PromptManager, emitter events.Emitter, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if emitter == nil {
		emitter = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		llm:          completer,
		tools:        registry,
		prompts:      prompts,
		events:       emitter,
		logger:       logger,
		previewLimit: defaultPreviewLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the plan and returns its result. It never fails: tool errors,
// unknown tools and evaluator problems all end up in the RunResult. stop may
// be nil.
func (e *Executor) Execute(ctx context.Context, plan *Plan, stop *StopToken) *RunResult {
	runID := events.RunIDFrom(ctx)
	steps := plan.Executable()

	ctx, span := startRunSpan(ctx, runID, len(steps))
	logs := make([]StepLog, 0, len(steps))
	outputs := make(map[int]any, len(steps))
	status := StatusCompleted
	var needInput *NeedInput

loop:
	for _, step := range steps {
		if e.halted(ctx, runID, step.StepID, stop) {
			status = StatusStopped
			break
		}

		if step.Tool == ReasonTool {
			logs = append(logs, StepLog{
				StepID:        step.StepID,
				Title:         step.Title,
				Tool:          ReasonTool,
				OK:            true,
				Logs:          reasonLogs,
				OutputPreview: reasonPreview,
			})
			e.events.Emit(events.New(runID, events.Reason{StepID: step.StepID, Title: step.Title}))
			continue
		}

		if !e.tools.Has(step.Tool) {
			e.record(runID, &logs, step, false, (&tools.UnknownToolError{Name: step.Tool}).Error(), "")
			continue
		}

		input := resolveInput(step.Input, outputs)

		if step.Tool == string(tools.DocGenerate) && !tools.HasMaterial(input) {
			needInput = e.askForFields(ctx, step, input)
			e.events.Emit(events.New(runID, events.NeedInput{
				StepID: needInput.StepID,
				Title:  needInput.Title,
				Fields: needInput.Fields,
				Prompt: needInput.Prompt,
			}))
			status = StatusNeedsInput
			break loop
		}

		if reason, denied := e.denied(ctx, runID, step.Tool, input); denied {
			e.record(runID, &logs, step, false, "denied by policy: "+reason, "")
			continue
		}

		e.events.Emit(events.New(runID, events.StepStarted{
			StepID: step.StepID,
			Title:  step.Title,
			Tool:   step.Tool,
			Input:  input,
		}))
		if e.halted(ctx, runID, step.StepID, stop) {
			status = StatusStopped
			break
		}

		stepCtx, stepSpan := startStepSpan(ctx, step)
		res := e.tools.Invoke(stepCtx, step.Tool, input)
		endSpan(stepSpan, nil, attribute.Bool("step.ok", res.OK))

		if res.OK {
			outputs[step.StepID] = res.Output
		}
		e.record(runID, &logs, step, res.OK, res.Logs, preview(res.Output, e.previewLimit))
	}

	result := &RunResult{
		RunID:     runID,
		Status:    status,
		Plan:      plan,
		Steps:     logs,
		NeedInput: needInput,
	}
	e.evaluate(ctx, plan, result)

	endSpan(span, nil,
		attribute.String("agent.status", string(status)),
		attribute.Bool("agent.success", result.Success),
	)
	e.logger.Info("run finished", "run_id", runID, "status", status, "steps", len(logs), "success", result.Success)
	return result
}

// halted reports whether the run must stop, emitting agent_stopped if so.
func (e *Executor) halted(ctx context.Context, runID string, stepID int, stop *StopToken) bool {
	var reason string
	switch {
	case stop.Stopped():
		reason = stop.Reason()
		if reason == "" {
			reason = "stop requested"
		}
	case ctx.Err() != nil:
		reason = ctx.Err().Error()
	default:
		return false
	}
	e.events.Emit(events.New(runID, events.AgentStopped{Reason: reason, StepID: stepID}))
	return true
}

// denied consults the policy engine. An engine error denies the call.
func (e *Executor) denied(ctx context.Context, runID, tool string, input map[string]any) (string, bool) {
	if e.policy == nil {
		return "", false
	}
	res, err := e.policy.Evaluate(ctx, governance.NewRequest(tool, input, runID))
	if err != nil {
		return err.Error(), true
	}
	return res.Reason, res.Denied()
}

func (e *Executor) record(runID string, logs *[]StepLog, step PlanStep, ok bool, msg, outputPreview string) {
	entry := StepLog{
		StepID:        step.StepID,
		Title:         step.Title,
		Tool:          step.Tool,
		OK:            ok,
		Logs:          msg,
		OutputPreview: outputPreview,
	}
	*logs = append(*logs, entry)
	e.events.Emit(events.New(runID, events.StepResult{
		StepID:        entry.StepID,
		Title:         entry.Title,
		Tool:          entry.Tool,
		OK:            entry.OK,
		Logs:          entry.Logs,
		OutputPreview: entry.OutputPreview,
	}))
}

// askForFields asks the completion service which fields a document needs.
// Both {"fields": [...]} and a bare array are accepted.
func (e *Executor) askForFields(ctx context.Context, step PlanStep, input map[string]any) *NeedInput {
	request, _ := json.Marshal(map[string]any{"title": step.Title, "input": input, "expectations": step.Expectations})

	fields := defaultFields
	raw, err := e.llm.Complete(ctx, e.prompts.FieldsPrompt(), "DOCUMENT REQUEST:\n"+string(request), nil)
	if err != nil {
		e.logger.Warn("field enumeration failed", "step_id", step.StepID, "error", err)
	} else if names := parseFields(raw); len(names) > 0 {
		fields = names
	}

	return &NeedInput{
		StepID: step.StepID,
		Title:  step.Title,
		Fields: fields,
		Prompt: fmt.Sprintf("Please provide %s to continue with %q.", strings.Join(fields, ", "), step.Title),
	}
}

func parseFields(raw string) []string {
	var names []any
	if obj, err := DecodeJSON[map[string]any](raw); err == nil {
		names, _ = obj["fields"].([]any)
	}
	if names == nil {
		if arr, err := DecodeJSON[[]any](raw); err == nil {
			names = arr
		}
	}

	out := make([]string, 0, len(names))
	for _, n := range names {
		switch v := n.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			if s, ok := v["name"].(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

type evaluation struct {
	Success bool   `json:"success"`
	Summary string `json:"summary"`
	Sources []any  `json:"sources"`
}

// evaluate fills Success, Summary and Sources. It gets one attempt and
// degrades to an unsuccessful result when the answer cannot be parsed. It
// runs even after a stop, so it ignores cancellation of ctx.
func (e *Executor) evaluate(ctx context.Context, plan *Plan, result *RunResult) {
	ctx = context.WithoutCancel(ctx)

	planJSON, _ := json.MarshalIndent(plan, "", "  ")
	logsJSON, _ := json.MarshalIndent(result.Steps, "", "  ")

	var sb strings.Builder
	sb.WriteString("PLAN:\n")
	sb.Write(planJSON)
	sb.WriteString("\n\nLOGS:\n")
	sb.Write(logsJSON)
	sb.WriteString("\n\nRUN STATUS: ")
	sb.WriteString(string(result.Status))
	sb.WriteString("\n\nReturn compact JSON: {\"success\": bool, \"summary\": str, \"sources\": [str]}")

	var ev evaluation
	raw, err := e.llm.Complete(ctx, e.prompts.EvaluatorPrompt(), sb.String(), nil)
	switch {
	case err != nil:
		ev = evaluation{Summary: "evaluator unavailable: " + err.Error()}
	default:
		parsed, perr := DecodeJSON[evaluation](raw)
		if perr != nil {
			ev = evaluation{Summary: "evaluator JSON parse failed. Raw: " + raw}
		} else {
			ev = parsed
		}
	}
	if ev.Sources == nil {
		ev.Sources = []any{}
	}

	result.Success = ev.Success
	result.Summary = ev.Summary
	result.Sources = ev.Sources
	e.events.Emit(events.New(result.RunID, events.Evaluation{
		Success: ev.Success,
		Summary: ev.Summary,
		Sources: ev.Sources,
	}))
}

var stepRefRe = regexp.MustCompile(`\{\{\s*step_(\d+)\.output\s*\}\}`)

// resolveInput substitutes {{step_N.output}} references with the outputs of
// earlier successful steps. A string that is exactly one reference takes the
// referenced value as is; embedded references are replaced by its text.
// Unresolvable references are left untouched.
func resolveInput(input map[string]any, outputs map[int]any) map[string]any {
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = resolveValue(v, outputs)
	}
	return out
}

func resolveValue(v any, outputs map[int]any) any {
	switch t := v.(type) {
	case string:
		if m := stepRefRe.FindStringSubmatch(t); m != nil && m[0] == strings.TrimSpace(t) {
			id, _ := strconv.Atoi(m[1])
			if val, ok := outputs[id]; ok {
				return val
			}
			return t
		}
		return stepRefRe.ReplaceAllStringFunc(t, func(ref string) string {
			id, _ := strconv.Atoi(stepRefRe.FindStringSubmatch(ref)[1])
			val, ok := outputs[id]
			if !ok {
				return ref
			}
			return outputText(val)
		})
	case map[string]any:
		return resolveInput(t, outputs)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = resolveValue(item, outputs)
		}
		return out
	default:
		return v
	}
}

// outputText renders a tool output as text: strings as is, anything else as
// JSON.
func outputText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

func preview(output any, limit int) string {
	return truncateRunes(outputText(output), limit)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
