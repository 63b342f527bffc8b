package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/gavelhq/gavel/internal/domain"
	"github.com/gavelhq/gavel/internal/domain/review"
	"github.com/gavelhq/gavel/internal/domain/tier"
)

const reviewColumns = `id, idempotency_key, repo, pr_number, head_sha, base_branch,
	installation_id, status, version, retry_count, last_error, created_at, updated_at, completed_at`

// CreateReview inserts a new review at version 1. A duplicate idempotency
// key surfaces as domain.ErrConflict.
func (s *Store) CreateReview(ctx context.Context, r *review.Review) error {
	const q = `INSERT INTO reviews
		(id, idempotency_key, repo, pr_number, head_sha, base_branch,
		 installation_id, status, version, retry_count, last_error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,1,$9,$10,$11,$12)`
	_, err := s.pool.Exec(ctx, q,
		r.ID, r.IdempotencyKey, r.Repo, r.PRNumber, r.HeadSHA, r.BaseBranch,
		r.InstallationID, string(r.Status), r.RetryCount, r.LastError,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return conflictWrap(err, "create review %s", r.ID)
	}
	r.Version = 1
	return nil
}

// GetReview retrieves a review with its task results.
func (s *Store) GetReview(ctx context.Context, id string) (*review.Review, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id)
	r, err := scanReview(row)
	if err != nil {
		return nil, notFoundWrap(err, "get review %s", id)
	}

	results, err := s.taskResultsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Results = results
	return r, nil
}

// GetReviewByIdempotencyKey retrieves a review by its idempotency key.
func (s *Store) GetReviewByIdempotencyKey(ctx context.Context, key string) (*review.Review, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE idempotency_key = $1`, key)
	r, err := scanReview(row)
	if err != nil {
		return nil, notFoundWrap(err, "get review by key %s", key)
	}
	return r, nil
}

// UpdateReview writes review state guarded by the version the caller
// loaded. The version column is bumped atomically; zero rows affected
// means another writer got there first and surfaces as domain.ErrConflict.
func (s *Store) UpdateReview(ctx context.Context, r *review.Review) error {
	const q = `UPDATE reviews SET
		status=$3, retry_count=$4, last_error=$5, updated_at=$6, completed_at=$7,
		version = version + 1
		WHERE id=$1 AND version=$2`
	tag, err := s.pool.Exec(ctx, q,
		r.ID, r.Version, string(r.Status), r.RetryCount, r.LastError,
		r.UpdatedAt, nullTime(derefTime(r.CompletedAt)),
	)
	if err != nil {
		return fmt.Errorf("update review %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update review %s at version %d: %w", r.ID, r.Version, domain.ErrConflict)
	}
	r.Version++
	return nil
}

// ListReviews returns recent reviews, newest first. An empty status
// matches all statuses.
func (s *Store) ListReviews(ctx context.Context, status review.Status, limit int) ([]review.Review, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `SELECT ` + reviewColumns + ` FROM reviews`
	args := []any{limit}
	if status != "" {
		q += ` WHERE status = $2`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []review.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, *r)
	}
	return reviews, rows.Err()
}

// SaveTaskResults appends agent task results for a review.
func (s *Store) SaveTaskResults(ctx context.Context, results []review.TaskResult) error {
	const q = `INSERT INTO task_results
		(id, review_id, agent_type, tier_used, findings, summary,
		 input_tokens, output_tokens, duration_ms, success, error, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	for _, tr := range results {
		_, err := s.pool.Exec(ctx, q,
			tr.ID, tr.ReviewID, tr.AgentType, string(tr.TierUsed), tr.Findings,
			tr.Summary, tr.InputTokens, tr.OutputTokens, tr.Duration.Milliseconds(),
			tr.Success, tr.Error, tr.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("save task result %s: %w", tr.ID, err)
		}
	}
	return nil
}

func (s *Store) taskResultsFor(ctx context.Context, reviewID string) ([]review.TaskResult, error) {
	const q = `SELECT id, review_id, agent_type, tier_used, findings, summary,
		input_tokens, output_tokens, duration_ms, success, error, created_at
		FROM task_results WHERE review_id = $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, q, reviewID)
	if err != nil {
		return nil, fmt.Errorf("list task results for %s: %w", reviewID, err)
	}
	defer rows.Close()

	var results []review.TaskResult
	for rows.Next() {
		var tr review.TaskResult
		var tierUsed string
		var durationMS int64
		if err := rows.Scan(
			&tr.ID, &tr.ReviewID, &tr.AgentType, &tierUsed, &tr.Findings,
			&tr.Summary, &tr.InputTokens, &tr.OutputTokens, &durationMS,
			&tr.Success, &tr.Error, &tr.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan task result: %w", err)
		}
		tr.TierUsed = tier.Tier(tierUsed)
		tr.Duration = time.Duration(durationMS) * time.Millisecond
		results = append(results, tr)
	}
	return results, rows.Err()
}

func scanReview(row scannable) (*review.Review, error) {
	r := &review.Review{}
	var status string
	var completedAt *time.Time
	if err := row.Scan(
		&r.ID, &r.IdempotencyKey, &r.Repo, &r.PRNumber, &r.HeadSHA, &r.BaseBranch,
		&r.InstallationID, &status, &r.Version, &r.RetryCount, &r.LastError,
		&r.CreatedAt, &r.UpdatedAt, &completedAt,
	); err != nil {
		return nil, err
	}
	r.Status = review.Status(status)
	r.CompletedAt = completedAt
	return r, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
