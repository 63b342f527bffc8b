package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "gavel"

// StartReviewSpan starts a span covering one review orchestration.
func StartReviewSpan(ctx context.Context, reviewID, repo string, prNumber int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "review",
		trace.WithAttributes(
			attribute.String("review.id", reviewID),
			attribute.String("review.repo", repo),
			attribute.Int("review.pr_number", prNumber),
		),
	)
}

// StartAgentSpan starts a span for one agent task within a review.
func StartAgentSpan(ctx context.Context, reviewID, agentType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "agent.task",
		trace.WithAttributes(
			attribute.String("review.id", reviewID),
			attribute.String("agent.type", agentType),
		),
	)
}
