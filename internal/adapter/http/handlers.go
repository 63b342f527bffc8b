// Package http exposes the REST surface: the GitHub webhook intake, the
// review query API, and health probes.
package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gavelhq/gavel/internal/domain/review"
	"github.com/gavelhq/gavel/internal/port/database"
	"github.com/gavelhq/gavel/internal/port/messagequeue"
	"github.com/gavelhq/gavel/internal/service"
)

const maxListLimit = 100

// Handlers bundles the HTTP handler dependencies.
type Handlers struct {
	intake *service.Intake
	store  database.Store
	queue  messagequeue.Queue
}

// NewHandlers creates the handler set.
func NewHandlers(intake *service.Intake, store database.Store, queue messagequeue.Queue) *Handlers {
	return &Handlers{intake: intake, store: store, queue: queue}
}

// webhookPayload mirrors the fields Gavel reads from a GitHub
// pull_request event.
type webhookPayload struct {
	Action      string `json:"action"`
	PullRequest struct {
		Number int `json:"number"`
		Head   struct {
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Installation struct {
		ID int64 `json:"id"`
	} `json:"installation"`
}

// actionable reports whether the PR action warrants a review.
func (p webhookPayload) actionable() bool {
	return p.Action == "opened" || p.Action == "synchronize"
}

// HandleGitHubWebhook accepts a pull_request event and returns 202
// within milliseconds; orchestration happens async behind the queue.
// The HMAC signature was already verified by middleware against the raw
// body. The delivery GUID is the idempotency key, so GitHub redeliveries
// collapse onto the original review.
func (h *Handlers) HandleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	eventType := r.Header.Get("X-GitHub-Event")
	deliveryID := r.Header.Get("X-GitHub-Delivery")

	if eventType != "pull_request" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "not a PR event"})
		return
	}
	if deliveryID == "" {
		writeError(w, http.StatusBadRequest, "missing X-GitHub-Delivery header")
		return
	}

	payload, ok := readJSON[webhookPayload](w, r)
	if !ok {
		return
	}

	slog.InfoContext(r.Context(), "webhook received",
		"delivery", deliveryID, "action", payload.Action, "repo", payload.Repository.FullName)

	if !payload.actionable() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "action not tracked"})
		return
	}
	if payload.Repository.FullName == "" || payload.PullRequest.Number == 0 || payload.PullRequest.Head.SHA == "" {
		writeError(w, http.StatusBadRequest, "payload missing repository, PR number, or head sha")
		return
	}

	rev, created, err := h.intake.CreateOrGet(r.Context(), service.IntakeRequest{
		IdempotencyKey: deliveryID,
		Repo:           payload.Repository.FullName,
		PRNumber:       payload.PullRequest.Number,
		HeadSHA:        payload.PullRequest.Head.SHA,
		BaseBranch:     payload.PullRequest.Base.Ref,
		InstallationID: payload.Installation.ID,
	})
	if err != nil {
		writeDomainError(w, err, "review not found")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "queued",
		"review_id": rev.ID,
		"duplicate": !created,
	})
}

// GetReview returns one review with its task results.
func (h *Handlers) GetReview(w http.ResponseWriter, r *http.Request) {
	rev, err := h.store.GetReview(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "review not found")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rev))
}

// ListReviews returns recent reviews, optionally filtered by status.
func (h *Handlers) ListReviews(w http.ResponseWriter, r *http.Request) {
	status := review.Status(r.URL.Query().Get("status"))
	if status != "" {
		switch status {
		case review.StatusReceived, review.StatusQueued, review.StatusInProgress,
			review.StatusCompleted, review.StatusFailed:
		default:
			writeError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	reviews, err := h.store.ListReviews(r.Context(), status, limit)
	if err != nil {
		writeDomainError(w, err, "list reviews")
		return
	}

	out := make([]reviewResponse, 0, len(reviews))
	for i := range reviews {
		out = append(out, toResponse(&reviews[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": out})
}

// Health reports liveness of the service and its dependencies.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	dbOK := h.store.Ping(r.Context()) == nil
	natsOK := h.queue.IsConnected()
	if !dbOK || !natsOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"database": dbOK,
		"nats":     natsOK,
	})
}

// reviewResponse is the API projection of a review.
type reviewResponse struct {
	ID          string              `json:"id"`
	Repo        string              `json:"repo"`
	PRNumber    int                 `json:"pr_number"`
	HeadSHA     string              `json:"head_sha"`
	Status      review.Status       `json:"status"`
	RetryCount  int                 `json:"retry_count"`
	LastError   string              `json:"last_error,omitempty"`
	Results     []taskResultSummary `json:"results"`
	CreatedAt   time.Time           `json:"created_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

type taskResultSummary struct {
	AgentType  string `json:"agent_type"`
	Success    bool   `json:"success"`
	Summary    string `json:"summary,omitempty"`
	TierUsed   string `json:"tier_used"`
	DurationMS int64  `json:"duration_ms"`
}

func toResponse(r *review.Review) reviewResponse {
	results := make([]taskResultSummary, 0, len(r.Results))
	for _, tr := range r.Results {
		results = append(results, taskResultSummary{
			AgentType:  tr.AgentType,
			Success:    tr.Success,
			Summary:    tr.Summary,
			TierUsed:   string(tr.TierUsed),
			DurationMS: tr.Duration.Milliseconds(),
		})
	}
	return reviewResponse{
		ID:          r.ID,
		Repo:        r.Repo,
		PRNumber:    r.PRNumber,
		HeadSHA:     r.HeadSHA,
		Status:      r.Status,
		RetryCount:  r.RetryCount,
		LastError:   r.LastError,
		Results:     results,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
	}
}
