// Package review defines the review lifecycle aggregate and its state machine.
package review

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gavelhq/gavel/internal/domain"
	"github.com/gavelhq/gavel/internal/domain/tier"
)

// Status represents the lifecycle state of a review.
//
// Lifecycle: RECEIVED → QUEUED → IN_PROGRESS → COMPLETED | FAILED.
// IN_PROGRESS is reachable from RECEIVED or QUEUED (queueing is advisory).
type Status string

const (
	StatusReceived   Status = "received"
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// MaxRetries is the ceiling on orchestration attempts before a review is
// marked permanently failed.
const MaxRetries = 3

// Review is the aggregate root for one pull-request review.
//
// Version is the optimistic-concurrency counter: the store refuses a write
// when the persisted version no longer matches the one that was read.
type Review struct {
	ID             string     `json:"id"`
	IdempotencyKey string     `json:"idempotency_key"`
	Repo           string     `json:"repo"`
	PRNumber       int        `json:"pr_number"`
	HeadSHA        string     `json:"head_sha"`
	BaseBranch     string     `json:"base_branch"`
	InstallationID int64      `json:"installation_id"`
	Status         Status     `json:"status"`
	Version        int64      `json:"version"`
	RetryCount     int        `json:"retry_count"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`

	// Results are owned by the aggregate, ordered by creation time.
	Results []TaskResult `json:"results,omitempty"`
}

// New creates a review in RECEIVED with a fresh identity.
func New(idempotencyKey, repo string, prNumber int, headSHA, baseBranch string, installationID int64) *Review {
	now := time.Now().UTC()
	return &Review{
		ID:             uuid.NewString(),
		IdempotencyKey: idempotencyKey,
		Repo:           repo,
		PRNumber:       prNumber,
		HeadSHA:        headSHA,
		BaseBranch:     baseBranch,
		InstallationID: installationID,
		Status:         StatusReceived,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// MarkQueued transitions RECEIVED → QUEUED.
func (r *Review) MarkQueued() error {
	if err := r.requireStatus(StatusReceived); err != nil {
		return err
	}
	r.Status = StatusQueued
	r.touch()
	return nil
}

// MarkInProgress transitions RECEIVED|QUEUED → IN_PROGRESS.
func (r *Review) MarkInProgress() error {
	if err := r.requireStatus(StatusReceived, StatusQueued); err != nil {
		return err
	}
	r.Status = StatusInProgress
	r.touch()
	return nil
}

// MarkCompleted transitions IN_PROGRESS → COMPLETED and stamps the
// completion time.
func (r *Review) MarkCompleted() error {
	if err := r.requireStatus(StatusInProgress); err != nil {
		return err
	}
	now := time.Now().UTC()
	r.Status = StatusCompleted
	r.CompletedAt = &now
	r.touch()
	return nil
}

// RecordFailure increments the retry counter and records the error.
// Below MaxRetries the review returns to QUEUED so the next queue
// redelivery can re-enter processing; once the counter reaches the
// ceiling it becomes terminally FAILED.
func (r *Review) RecordFailure(cause string) error {
	if r.Status.Terminal() {
		return fmt.Errorf("record failure in %s: %w", r.Status, domain.ErrInvalidState)
	}
	r.RetryCount++
	r.LastError = cause
	if r.RetryCount >= MaxRetries {
		r.Status = StatusFailed
	} else {
		r.Status = StatusQueued
	}
	r.touch()
	return nil
}

// AddResults appends task results to the aggregate.
func (r *Review) AddResults(results []TaskResult) {
	for i := range results {
		results[i].ReviewID = r.ID
	}
	r.Results = append(r.Results, results...)
}

// Snapshot returns an immutable projection of the fields tasks need.
// Parallel task goroutines receive the snapshot, never the live aggregate.
func (r *Review) Snapshot() Snapshot {
	return Snapshot{
		ReviewID:       r.ID,
		Repo:           r.Repo,
		PRNumber:       r.PRNumber,
		HeadSHA:        r.HeadSHA,
		InstallationID: r.InstallationID,
	}
}

func (r *Review) requireStatus(allowed ...Status) error {
	for _, s := range allowed {
		if r.Status == s {
			return nil
		}
	}
	return fmt.Errorf("review %s: expected one of %v but was %s: %w",
		r.ID, allowed, r.Status, domain.ErrInvalidState)
}

func (r *Review) touch() {
	r.UpdatedAt = time.Now().UTC()
}

// Snapshot is a detached, immutable copy of review fields safe to hand
// across goroutine boundaries.
type Snapshot struct {
	ReviewID       string
	Repo           string
	PRNumber       int
	HeadSHA        string
	InstallationID int64
}

// TaskResult stores one agent's analysis output for a review. Created
// once per task execution, immutable thereafter.
type TaskResult struct {
	ID           string        `json:"id"`
	ReviewID     string        `json:"review_id"`
	AgentType    string        `json:"agent_type"`
	TierUsed     tier.Tier     `json:"tier_used"`
	Findings     string        `json:"findings"`
	Summary      string        `json:"summary,omitempty"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Duration     time.Duration `json:"duration"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// SuccessResult builds a successful task result.
func SuccessResult(agentType string, tierUsed tier.Tier, findings, summary string,
	inputTokens, outputTokens int, duration time.Duration) TaskResult {
	return TaskResult{
		ID:           uuid.NewString(),
		AgentType:    agentType,
		TierUsed:     tierUsed,
		Findings:     findings,
		Summary:      summary,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Duration:     duration,
		Success:      true,
		CreatedAt:    time.Now().UTC(),
	}
}

// FailureResult builds a failed task result. The tier is pinned to LOCAL
// (the free tier) since no billable capability produced output.
func FailureResult(agentType string, cause string) TaskResult {
	return TaskResult{
		ID:        uuid.NewString(),
		AgentType: agentType,
		TierUsed:  tier.Local,
		Findings:  "{}",
		Success:   false,
		Error:     cause,
		CreatedAt: time.Now().UTC(),
	}
}
