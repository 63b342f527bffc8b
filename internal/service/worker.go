package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/gavelhq/gavel/internal/domain"
	"github.com/gavelhq/gavel/internal/port/messagequeue"
)

// Worker consumes queued review requests and drives the orchestrator.
type Worker struct {
	orchestrator *Orchestrator
	queue        messagequeue.Queue
}

// NewWorker creates the queue worker.
func NewWorker(orchestrator *Orchestrator, queue messagequeue.Queue) *Worker {
	return &Worker{orchestrator: orchestrator, queue: queue}
}

// Start subscribes to the review subject. The returned function cancels
// the subscription.
func (w *Worker) Start(ctx context.Context) (func(), error) {
	return w.queue.Subscribe(ctx, messagequeue.SubjectReviewRequested, w.handle)
}

// handle processes one queue delivery. Returning nil acks; returning an
// error naks for redelivery. Duplicate deliveries of an already-running
// or finished review surface as ErrInvalidState and are acked, as are
// poison messages that can never succeed.
func (w *Worker) handle(ctx context.Context, subject string, data []byte) error {
	var msg ReviewRequested
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.ErrorContext(ctx, "malformed queue message", "subject", subject, "error", err)
		return nil
	}
	if msg.ReviewID == "" {
		slog.ErrorContext(ctx, "queue message without review id", "subject", subject)
		return nil
	}

	err := w.orchestrator.Execute(ctx, msg.ReviewID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidState):
		slog.InfoContext(ctx, "skipping redelivery", "review_id", msg.ReviewID, "error", err)
		return nil
	case errors.Is(err, domain.ErrNotFound):
		slog.ErrorContext(ctx, "review not found for queue message", "review_id", msg.ReviewID)
		return nil
	default:
		slog.ErrorContext(ctx, "review attempt failed", "review_id", msg.ReviewID, "error", err)
		return err
	}
}
