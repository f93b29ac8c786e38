package agent

import (
	"fmt"
	"strings"
)

// ReasonTool is the sentinel tool name for a thinking step with no external
// effect.
const ReasonTool = "reason"

// DefaultMaxIterations caps executed steps when a plan does not set a
// positive limit.
const DefaultMaxIterations = 6

// PlanStep is one unit of work.
type PlanStep struct {
	StepID       int            `json:"step_id"`
	Title        string         `json:"title"`
	Tool         string         `json:"tool"`
	Input        map[string]any `json:"input"`
	Expectations string         `json:"expectations"`
}

// Plan is the validated decomposition of a goal into ordered steps.
type Plan struct {
	Goal            string     `json:"goal"`
	Rationale       string     `json:"rationale"`
	Steps           []PlanStep `json:"steps"`
	SuccessCriteria []string   `json:"success_criteria"`
	MaxIterations   int        `json:"max_iterations"`
	NextSteps       []string   `json:"next_steps,omitempty"`
}

// ValidationError describes why a decoded plan was rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid plan: " + e.Reason
}

// Validate enforces step ids 1..n in order, at least one step and known tool
// names, then applies defaults. known reports whether a tool is registered.
func (p *Plan) Validate(known func(name string) bool) error {
	if len(p.Steps) == 0 {
		return &ValidationError{Reason: "plan has no steps"}
	}
	for i := range p.Steps {
		s := &p.Steps[i]
		if s.StepID != i+1 {
			return &ValidationError{Reason: fmt.Sprintf("step %d has step_id %d, want %d", i+1, s.StepID, i+1)}
		}
		s.Tool = strings.TrimSpace(s.Tool)
		if s.Tool != ReasonTool && (known == nil || !known(s.Tool)) {
			return &ValidationError{Reason: fmt.Sprintf("step %d uses unknown tool %q", s.StepID, s.Tool)}
		}
		if s.Input == nil {
			s.Input = map[string]any{}
		}
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = DefaultMaxIterations
	}
	if p.SuccessCriteria == nil {
		p.SuccessCriteria = []string{}
	}
	return nil
}

// Executable returns the steps that fall within MaxIterations.
func (p *Plan) Executable() []PlanStep {
	limit := p.MaxIterations
	if limit <= 0 {
		limit = DefaultMaxIterations
	}
	if len(p.Steps) > limit {
		return p.Steps[:limit]
	}
	return p.Steps
}

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusStopped    Status = "stopped"
	StatusNeedsInput Status = "needs_input"
)

// StepLog is the executed record of a PlanStep.
type StepLog struct {
	StepID        int    `json:"step_id"`
	Title         string `json:"title"`
	Tool          string `json:"tool"`
	OK            bool   `json:"ok"`
	Logs          string `json:"logs"`
	OutputPreview string `json:"output_preview"`
}

// NeedInput describes the fields a generation step is waiting for.
type NeedInput struct {
	StepID int      `json:"step_id"`
	Title  string   `json:"title"`
	Fields []string `json:"fields"`
	Prompt string   `json:"prompt"`
}

// RunResult is the terminal record of one plan execution. It is built once
// and not modified afterwards.
type RunResult struct {
	RunID     string     `json:"run_id"`
	Success   bool       `json:"success"`
	Status    Status     `json:"status"`
	Plan      *Plan      `json:"plan"`
	Steps     []StepLog  `json:"steps"`
	Summary   string     `json:"summary"`
	Sources   []any      `json:"sources"`
	NeedInput *NeedInput `json:"need_input,omitempty"`
}

// Outcome is what PlanAndRun hands back to callers.
type Outcome struct {
	RunID  string     `json:"run_id"`
	Plan   *Plan      `json:"plan"`
	Result *RunResult `json:"result"`
}
