package logger

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	reviewIDKey  contextKey = "review_id"
)

// WithRequestID returns a new context carrying the HTTP request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from the context, or "" if unset.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithReviewID returns a new context carrying the review correlation ID.
// The orchestrator stamps it before spawning task goroutines so log lines
// from parallel agents can be correlated after the fact.
func WithReviewID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, reviewIDKey, id)
}

// ReviewID extracts the review correlation ID from the context.
// Returns an empty string if none is set.
func ReviewID(ctx context.Context) string {
	id, _ := ctx.Value(reviewIDKey).(string)
	return id
}
