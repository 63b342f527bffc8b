// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/gavelhq/gavel/internal/domain/review"
)

// Store is the port interface for review persistence.
type Store interface {
	// CreateReview inserts a new review. A duplicate idempotency key
	// returns domain.ErrConflict.
	CreateReview(ctx context.Context, r *review.Review) error

	// GetReview loads a review with its task results.
	GetReview(ctx context.Context, id string) (*review.Review, error)

	// GetReviewByIdempotencyKey loads a review by its idempotency key.
	GetReviewByIdempotencyKey(ctx context.Context, key string) (*review.Review, error)

	// UpdateReview persists review state guarded by the version the
	// caller loaded. A stale version returns domain.ErrConflict.
	UpdateReview(ctx context.Context, r *review.Review) error

	// ListReviews returns recent reviews, newest first, optionally
	// filtered by status.
	ListReviews(ctx context.Context, status review.Status, limit int) ([]review.Review, error)

	// SaveTaskResults appends agent task results for a review.
	SaveTaskResults(ctx context.Context, results []review.TaskResult) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close()
}
