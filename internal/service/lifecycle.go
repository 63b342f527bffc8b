package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
	"github.com/gavelhq/gavel/internal/domain/review"
	"github.com/gavelhq/gavel/internal/port/broadcast"
	"github.com/gavelhq/gavel/internal/port/database"
	"github.com/gavelhq/gavel/internal/port/source"
	"github.com/gavelhq/gavel/internal/resilience"
)

// conflictAttempts bounds how often a lifecycle transition retries after
// losing an optimistic-concurrency race. Each attempt reloads the row.
const (
	conflictAttempts = 3
	conflictBackoff  = 50 * time.Millisecond
)

// Lifecycle owns the transactional review transitions. Every method
// reloads the aggregate, applies the transition, and writes it back under
// the optimistic version guard, retrying on conflict.
type Lifecycle struct {
	store  database.Store
	source source.Provider
	hub    broadcast.Broadcaster
}

// NewLifecycle creates the lifecycle service.
func NewLifecycle(store database.Store, src source.Provider, hub broadcast.Broadcaster) *Lifecycle {
	return &Lifecycle{store: store, source: src, hub: hub}
}

// Begin marks the review IN_PROGRESS and returns a detached snapshot for
// the agent goroutines. A review already past IN_PROGRESS surfaces
// domain.ErrInvalidState so redeliveries can be acknowledged.
func (l *Lifecycle) Begin(ctx context.Context, reviewID string) (review.Snapshot, error) {
	var snap review.Snapshot
	err := resilience.Retry(ctx, conflictAttempts, conflictBackoff, domain.ErrConflict, func() error {
		r, err := l.store.GetReview(ctx, reviewID)
		if err != nil {
			return err
		}
		if err := r.MarkInProgress(); err != nil {
			return err
		}
		if err := l.store.UpdateReview(ctx, r); err != nil {
			return err
		}
		snap = r.Snapshot()
		l.broadcastStatus(ctx, r, "")
		return nil
	})
	if err != nil {
		return review.Snapshot{}, fmt.Errorf("begin review %s: %w", reviewID, err)
	}
	return snap, nil
}

// Complete persists the agent results, posts the aggregated verdict on
// the pull request, and marks the review COMPLETED. An empty result set
// (nothing to analyze) completes silently without posting.
func (l *Lifecycle) Complete(ctx context.Context, reviewID string, results []review.TaskResult) error {
	r, err := l.store.GetReview(ctx, reviewID)
	if err != nil {
		return err
	}
	r.AddResults(results)

	// The side effects run exactly once, before the status flip. Only
	// the load-mutate-update below retries on a version conflict, so a
	// lost race never re-inserts result rows or re-posts the verdict.
	var verdict review.Verdict
	if len(results) > 0 {
		if err := l.store.SaveTaskResults(ctx, results); err != nil {
			return err
		}

		verdict = review.Decide(results)
		body := review.BuildSummary(r, results)
		if err := l.source.PostVerdict(ctx, r.InstallationID, r.Repo, r.PRNumber, verdict, body); err != nil {
			return fmt.Errorf("post verdict: %w", err)
		}
	}

	return resilience.Retry(ctx, conflictAttempts, conflictBackoff, domain.ErrConflict, func() error {
		r, err := l.store.GetReview(ctx, reviewID)
		if err != nil {
			return err
		}
		if err := r.MarkCompleted(); err != nil {
			return err
		}
		if err := l.store.UpdateReview(ctx, r); err != nil {
			return err
		}
		l.broadcastStatus(ctx, r, string(verdict))
		return nil
	})
}

// RecordFailure counts one failed orchestration attempt. Below the retry
// ceiling the review stays redeliverable; at the ceiling it goes FAILED.
func (l *Lifecycle) RecordFailure(ctx context.Context, reviewID, cause string) error {
	return resilience.Retry(ctx, conflictAttempts, conflictBackoff, domain.ErrConflict, func() error {
		r, err := l.store.GetReview(ctx, reviewID)
		if err != nil {
			return err
		}
		if err := r.RecordFailure(cause); err != nil {
			return err
		}
		if err := l.store.UpdateReview(ctx, r); err != nil {
			return err
		}
		if r.Status == review.StatusFailed {
			slog.ErrorContext(ctx, "review permanently failed",
				"review_id", r.ID, "retries", r.RetryCount, "cause", cause)
		}
		l.broadcastStatus(ctx, r, "")
		return nil
	})
}

func (l *Lifecycle) broadcastStatus(ctx context.Context, r *review.Review, verdict string) {
	if l.hub == nil {
		return
	}
	l.hub.BroadcastEvent(ctx, "review.status", statusEvent{
		ReviewID: r.ID,
		Repo:     r.Repo,
		PRNumber: r.PRNumber,
		Status:   string(r.Status),
		Verdict:  verdict,
	})
}
