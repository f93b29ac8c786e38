// Tracing instrumentation for planning and execution.
package agent

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/rahul/lexigpt/internal/agent"

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// startPlanSpan starts a span around DraftPlan.
func startPlanSpan(ctx context.Context, goal string) (context.Context, trace.Span) {
	ctx, span := tracer().Start(ctx, "agent.plan")
	span.SetAttributes(attribute.String("agent.goal", truncateRunes(goal, 500)))
	return ctx, span
}

// startRunSpan starts a span around one plan execution.
func startRunSpan(ctx context.Context, runID string, steps int) (context.Context, trace.Span) {
	ctx, span := tracer().Start(ctx, "agent.run")
	span.SetAttributes(
		attribute.String("agent.run_id", runID),
		attribute.Int("agent.steps", steps),
	)
	return ctx, span
}

// startStepSpan starts a span for one step.
func startStepSpan(ctx context.Context, step PlanStep) (context.Context, trace.Span) {
	ctx, span := tracer().Start(ctx, "agent.step."+step.Tool)
	span.SetAttributes(
		attribute.Int("step.id", step.StepID),
		attribute.String("step.title", step.Title),
	)
	return ctx, span
}

// endSpan records err, if any, and ends span.
func endSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
