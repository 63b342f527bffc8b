// Package service contains the application services: webhook intake,
// review lifecycle transitions, and the multi-agent orchestration pipeline.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gavelhq/gavel/internal/domain"
	"github.com/gavelhq/gavel/internal/domain/review"
	"github.com/gavelhq/gavel/internal/port/broadcast"
	"github.com/gavelhq/gavel/internal/port/database"
	"github.com/gavelhq/gavel/internal/port/messagequeue"
)

// IntakeRequest carries the fields extracted from a pull request webhook.
type IntakeRequest struct {
	IdempotencyKey string
	Repo           string
	PRNumber       int
	HeadSHA        string
	BaseBranch     string
	InstallationID int64
}

// ReviewRequested is the queue message that triggers orchestration.
type ReviewRequested struct {
	ReviewID string `json:"review_id"`
}

// Intake is the command-side service: it creates reviews idempotently
// and hands them to the queue.
type Intake struct {
	store database.Store
	queue messagequeue.Queue
	hub   broadcast.Broadcaster
}

// NewIntake creates the intake service.
func NewIntake(store database.Store, queue messagequeue.Queue, hub broadcast.Broadcaster) *Intake {
	return &Intake{store: store, queue: queue, hub: hub}
}

// CreateOrGet accepts a review request. A delivery already seen (same
// idempotency key) returns the existing review with created=false and has
// no side effects. A new delivery persists the review, publishes it to
// the queue, and advances it to QUEUED best-effort: the review survives
// even if the queue publish or the QUEUED update fails.
func (s *Intake) CreateOrGet(ctx context.Context, req IntakeRequest) (r *review.Review, created bool, err error) {
	if existing, err := s.store.GetReviewByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		slog.InfoContext(ctx, "duplicate delivery",
			"idempotency_key", req.IdempotencyKey, "review_id", existing.ID)
		return existing, false, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("idempotency lookup: %w", err)
	}

	r = review.New(req.IdempotencyKey, req.Repo, req.PRNumber, req.HeadSHA,
		req.BaseBranch, req.InstallationID)

	if err := s.store.CreateReview(ctx, r); err != nil {
		// Two deliveries raced past the lookup; the loser re-reads the winner.
		if errors.Is(err, domain.ErrConflict) {
			existing, getErr := s.store.GetReviewByIdempotencyKey(ctx, req.IdempotencyKey)
			if getErr != nil {
				return nil, false, fmt.Errorf("re-read after conflict: %w", getErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create review: %w", err)
	}

	slog.InfoContext(ctx, "review created",
		"review_id", r.ID, "repo", r.Repo, "pr", r.PRNumber)

	s.enqueue(ctx, r)
	s.broadcastStatus(ctx, r)
	return r, true, nil
}

// enqueue publishes the review and marks it QUEUED. Both steps are
// best-effort: a review stuck in RECEIVED is visible in the query API
// and can be re-driven, so intake never fails after the row exists.
func (s *Intake) enqueue(ctx context.Context, r *review.Review) {
	msg, err := json.Marshal(ReviewRequested{ReviewID: r.ID})
	if err != nil {
		slog.ErrorContext(ctx, "marshal queue message", "review_id", r.ID, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectReviewRequested, msg); err != nil {
		slog.ErrorContext(ctx, "publish review", "review_id", r.ID, "error", err)
		return
	}

	if err := r.MarkQueued(); err != nil {
		return
	}
	if err := s.store.UpdateReview(ctx, r); err != nil {
		slog.WarnContext(ctx, "mark queued", "review_id", r.ID, "error", err)
	}
}

func (s *Intake) broadcastStatus(ctx context.Context, r *review.Review) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastEvent(ctx, "review.status", statusEvent{
		ReviewID: r.ID,
		Repo:     r.Repo,
		PRNumber: r.PRNumber,
		Status:   string(r.Status),
	})
}

// statusEvent is the payload pushed to WebSocket clients on every
// lifecycle change.
type statusEvent struct {
	ReviewID string `json:"review_id"`
	Repo     string `json:"repo"`
	PRNumber int    `json:"pr_number"`
	Status   string `json:"status"`
	Verdict  string `json:"verdict,omitempty"`
}
