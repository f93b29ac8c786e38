package gateway

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rahul/lexigpt/internal/agent"
	"github.com/rahul/lexigpt/internal/tools"
)

// Messenger defines the interface for communication gateways.
type Messenger interface {
	// Start runs the message loop until ctx ends
	Start(ctx context.Context) error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Runner is the part of the agent service a gateway drives.
type Runner interface {
	PlanAndRun(ctx context.Context, goal string) (*agent.Outcome, error)
}

// FormatOutcome renders a finished run as a chat reply: the summary, any
// generated files, the fields still needed and the suggested follow-ups.
func FormatOutcome(out *agent.Outcome) string {
	if out == nil || out.Result == nil {
		return "The run produced no result."
	}
	res := out.Result

	var sb strings.Builder
	switch res.Status {
	case agent.StatusStopped:
		sb.WriteString("Run stopped.\n")
	case agent.StatusNeedsInput:
		sb.WriteString("More information is needed.\n")
	}
	if res.Summary != "" {
		sb.WriteString(res.Summary)
		sb.WriteString("\n")
	}

	for _, step := range res.Steps {
		if step.OK && step.Tool == string(tools.DocGenerate) && step.OutputPreview != "" {
			fmt.Fprintf(&sb, "\nGenerated file: %s\n", filepath.Base(step.OutputPreview))
		}
	}
	if res.NeedInput != nil {
		fmt.Fprintf(&sb, "\n%s\n", res.NeedInput.Prompt)
	}
	if out.Plan != nil && len(out.Plan.NextSteps) > 0 {
		sb.WriteString("\nNext steps:\n")
		for _, s := range out.Plan.NextSteps {
			fmt.Fprintf(&sb, "- %s\n", s)
		}
	}
	return strings.TrimSpace(sb.String())
}
