package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gavelhq/gavel/internal/agent"
	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/domain"
	"github.com/gavelhq/gavel/internal/domain/diff"
	"github.com/gavelhq/gavel/internal/domain/review"
	"github.com/gavelhq/gavel/internal/domain/tier"
	"github.com/gavelhq/gavel/internal/port/messagequeue"
)

// fakeStore is an in-memory database.Store enforcing the version guard.
type fakeStore struct {
	mu              sync.Mutex
	reviews         map[string]*review.Review
	results         map[string][]review.TaskResult
	failOn          map[string]error // method name → error
	conflictUpdates int              // next N UpdateReview calls lose the version race
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reviews: make(map[string]*review.Review),
		results: make(map[string][]review.TaskResult),
		failOn:  make(map[string]error),
	}
}

func copyReview(r *review.Review) *review.Review {
	cp := *r
	cp.Results = append([]review.TaskResult(nil), r.Results...)
	return &cp
}

func (s *fakeStore) CreateReview(_ context.Context, r *review.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn["CreateReview"]; err != nil {
		return err
	}
	for _, existing := range s.reviews {
		if existing.IdempotencyKey == r.IdempotencyKey {
			return fmt.Errorf("duplicate key: %w", domain.ErrConflict)
		}
	}
	r.Version = 1
	s.reviews[r.ID] = copyReview(r)
	return nil
}

func (s *fakeStore) GetReview(_ context.Context, id string) (*review.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return nil, fmt.Errorf("review %s: %w", id, domain.ErrNotFound)
	}
	out := copyReview(r)
	out.Results = append([]review.TaskResult(nil), s.results[id]...)
	return out, nil
}

func (s *fakeStore) GetReviewByIdempotencyKey(_ context.Context, key string) (*review.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reviews {
		if r.IdempotencyKey == key {
			return copyReview(r), nil
		}
	}
	return nil, fmt.Errorf("key %s: %w", key, domain.ErrNotFound)
}

func (s *fakeStore) UpdateReview(_ context.Context, r *review.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn["UpdateReview"]; err != nil {
		return err
	}
	if s.conflictUpdates > 0 {
		s.conflictUpdates--
		return fmt.Errorf("stale write: %w", domain.ErrConflict)
	}
	stored, ok := s.reviews[r.ID]
	if !ok {
		return fmt.Errorf("review %s: %w", r.ID, domain.ErrNotFound)
	}
	if stored.Version != r.Version {
		return fmt.Errorf("version %d: %w", r.Version, domain.ErrConflict)
	}
	r.Version++
	s.reviews[r.ID] = copyReview(r)
	return nil
}

func (s *fakeStore) ListReviews(_ context.Context, status review.Status, limit int) ([]review.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []review.Review
	for _, r := range s.reviews {
		if status == "" || r.Status == status {
			out = append(out, *copyReview(r))
		}
	}
	return out, nil
}

func (s *fakeStore) SaveTaskResults(_ context.Context, results []review.TaskResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tr := range results {
		s.results[tr.ReviewID] = append(s.results[tr.ReviewID], tr)
	}
	return nil
}

func (s *fakeStore) Ping(context.Context) error { return nil }
func (s *fakeStore) Close()                     {}

// fakeQueue records published messages.
type fakeQueue struct {
	mu        sync.Mutex
	published [][]byte
	failPub   error
}

func (q *fakeQueue) Publish(_ context.Context, _ string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failPub != nil {
		return q.failPub
	}
	q.published = append(q.published, data)
	return nil
}

func (q *fakeQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return true }

// fakeSource serves canned files and records posted verdicts.
type fakeSource struct {
	mu          sync.Mutex
	files       []diff.File
	filesErr    error
	failFetches int // next N ListChangedFiles calls fail, then recover
	guideRaw    []byte
	verdicts    []review.Verdict
	bodies      []string
	verdirErr   error
}

func (f *fakeSource) ListChangedFiles(context.Context, int64, string, int) ([]diff.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFetches > 0 {
		f.failFetches--
		return nil, errors.New("github 502")
	}
	return f.files, f.filesErr
}

func (f *fakeSource) PostVerdict(_ context.Context, _ int64, _ string, _ int, v review.Verdict, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.verdirErr != nil {
		return f.verdirErr
	}
	f.verdicts = append(f.verdicts, v)
	f.bodies = append(f.bodies, body)
	return nil
}

func (f *fakeSource) FetchGuide(context.Context, int64, string, string) ([]byte, error) {
	return f.guideRaw, nil
}

// fakeAgent is a scripted agent.Agent.
type fakeAgent struct {
	typ     string
	minTier tier.Tier
	result  review.TaskResult
	delay   time.Duration
	panics  bool
}

func (a *fakeAgent) Type() string                        { return a.typ }
func (a *fakeAgent) MinimumTier() tier.Tier              { return a.minTier }
func (a *fakeAgent) Supports([]diff.File) bool           { return true }
func (a *fakeAgent) Rank(f []diff.File, _ int) []diff.File { return f }

func (a *fakeAgent) Analyze(ctx context.Context, _ agent.Input) review.TaskResult {
	if a.panics {
		panic("scripted panic")
	}
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return review.FailureResult(a.typ, "timed out")
		}
	}
	res := a.result
	res.AgentType = a.typ
	return res
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Review.AgentTimeout = 2 * time.Second
	cfg.Review.MaxParallel = 4
	return cfg
}

func seedReview(t *testing.T, store *fakeStore, status review.Status) *review.Review {
	t.Helper()
	r := review.New("deliv-1", "acme/widgets", 7, "abc1234def", "main", 42)
	if err := store.CreateReview(context.Background(), r); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if status != review.StatusReceived {
		stored := store.reviews[r.ID]
		stored.Status = status
	}
	return r
}

func intakeRequest() IntakeRequest {
	return IntakeRequest{
		IdempotencyKey: "deliv-1",
		Repo:           "acme/widgets",
		PRNumber:       7,
		HeadSHA:        "abc1234def",
		BaseBranch:     "main",
		InstallationID: 42,
	}
}

func TestIntakeCreatesAndQueues(t *testing.T) {
	store := newFakeStore()
	queue := &fakeQueue{}
	intake := NewIntake(store, queue, nil)

	r, created, err := intake.CreateOrGet(context.Background(), intakeRequest())
	if err != nil || !created {
		t.Fatalf("created = %v, err = %v", created, err)
	}
	if r.Status != review.StatusQueued {
		t.Fatalf("status = %s, want queued", r.Status)
	}
	if len(queue.published) != 1 {
		t.Fatalf("published = %d messages", len(queue.published))
	}
}

func TestIntakeDuplicateDelivery(t *testing.T) {
	store := newFakeStore()
	queue := &fakeQueue{}
	intake := NewIntake(store, queue, nil)

	first, _, _ := intake.CreateOrGet(context.Background(), intakeRequest())
	second, created, err := intake.CreateOrGet(context.Background(), intakeRequest())
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("duplicate must not create")
	}
	if second.ID != first.ID {
		t.Fatalf("ids differ: %s vs %s", first.ID, second.ID)
	}
	if len(queue.published) != 1 {
		t.Fatalf("published = %d, duplicate must not re-publish", len(queue.published))
	}
}

func TestIntakeSurvivesQueueOutage(t *testing.T) {
	store := newFakeStore()
	queue := &fakeQueue{failPub: errors.New("nats down")}
	intake := NewIntake(store, queue, nil)

	r, created, err := intake.CreateOrGet(context.Background(), intakeRequest())
	if err != nil || !created {
		t.Fatalf("created = %v, err = %v", created, err)
	}
	// Publish failed, so the review stays RECEIVED but exists.
	if r.Status != review.StatusReceived {
		t.Fatalf("status = %s, want received", r.Status)
	}
}

func newTestOrchestrator(store *fakeStore, src *fakeSource, agents ...agent.Agent) *Orchestrator {
	lc := NewLifecycle(store, src, nil)
	return NewOrchestrator(lc, agent.NewRegistry(agents...), src, testConfig(), nil)
}

func sourceFiles() []diff.File {
	return []diff.File{{Path: "main.go", Kind: diff.KindGo, Additions: 10}}
}

func TestOrchestratorPartialFailure(t *testing.T) {
	store := newFakeStore()
	r := seedReview(t, store, review.StatusQueued)
	src := &fakeSource{files: sourceFiles()}

	agents := []agent.Agent{
		&fakeAgent{typ: agent.TypeSecurity, minTier: tier.Cheap,
			result: review.SuccessResult("", tier.Cheap, `{"findings":[{"severity":"HIGH"}]}`, "sec done", 10, 5, time.Second)},
		&fakeAgent{typ: agent.TypePerformance, minTier: tier.Cheap, panics: true},
		&fakeAgent{typ: agent.TypeArchitecture, minTier: tier.Smart, delay: 20 * time.Millisecond,
			result: review.SuccessResult("", tier.Smart, `{"findings":[]}`, "arch done", 10, 5, time.Second)},
	}

	o := newTestOrchestrator(store, src, agents...)
	if err := o.Execute(context.Background(), r.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	final, _ := store.GetReview(context.Background(), r.ID)
	if final.Status != review.StatusCompleted {
		t.Fatalf("status = %s", final.Status)
	}
	if len(final.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(final.Results))
	}
	// Submission order, regardless of completion order.
	if final.Results[0].AgentType != agent.TypeSecurity ||
		final.Results[1].AgentType != agent.TypePerformance ||
		final.Results[2].AgentType != agent.TypeArchitecture {
		t.Fatalf("order = %s, %s, %s",
			final.Results[0].AgentType, final.Results[1].AgentType, final.Results[2].AgentType)
	}
	if final.Results[1].Success {
		t.Fatal("panicked agent must yield a failed result")
	}

	// One HIGH finding from a successful agent → COMMENT.
	if len(src.verdicts) != 1 || src.verdicts[0] != review.VerdictComment {
		t.Fatalf("verdicts = %v", src.verdicts)
	}
}

func TestOrchestratorEmptyPR(t *testing.T) {
	store := newFakeStore()
	r := seedReview(t, store, review.StatusQueued)
	src := &fakeSource{files: nil}

	o := newTestOrchestrator(store, src,
		&fakeAgent{typ: agent.TypeSecurity, minTier: tier.Cheap})
	if err := o.Execute(context.Background(), r.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	final, _ := store.GetReview(context.Background(), r.ID)
	if final.Status != review.StatusCompleted {
		t.Fatalf("status = %s", final.Status)
	}
	if len(src.verdicts) != 0 {
		t.Fatal("empty review must not post a verdict")
	}
}

func TestOrchestratorTierCeilingExcludesAgents(t *testing.T) {
	store := newFakeStore()
	r := seedReview(t, store, review.StatusQueued)
	src := &fakeSource{files: sourceFiles()}

	lc := NewLifecycle(store, src, nil)
	cfg := testConfig()
	cfg.AI.MaxTier = tier.Cheap
	o := NewOrchestrator(lc, agent.NewRegistry(
		&fakeAgent{typ: agent.TypeSecurity, minTier: tier.Cheap,
			result: review.SuccessResult("", tier.Cheap, "{}", "ok", 1, 1, 0)},
		&fakeAgent{typ: agent.TypeArchitecture, minTier: tier.Smart},
	), src, cfg, nil)

	if err := o.Execute(context.Background(), r.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	final, _ := store.GetReview(context.Background(), r.ID)
	if len(final.Results) != 1 || final.Results[0].AgentType != agent.TypeSecurity {
		t.Fatalf("results = %+v", final.Results)
	}
}

func TestOrchestratorFetchFailureCountsRetry(t *testing.T) {
	store := newFakeStore()
	r := seedReview(t, store, review.StatusQueued)
	src := &fakeSource{filesErr: errors.New("github 502")}

	o := newTestOrchestrator(store, src,
		&fakeAgent{typ: agent.TypeSecurity, minTier: tier.Cheap})
	if err := o.Execute(context.Background(), r.ID); err == nil {
		t.Fatal("expected error for redelivery")
	}

	final, _ := store.GetReview(context.Background(), r.ID)
	if final.RetryCount != 1 {
		t.Fatalf("RetryCount = %d", final.RetryCount)
	}
	// Back to QUEUED so the next redelivery can re-enter processing.
	if final.Status != review.StatusQueued {
		t.Fatalf("status = %s, want %s", final.Status, review.StatusQueued)
	}
}

func TestOrchestratorRetryCeiling(t *testing.T) {
	store := newFakeStore()
	r := seedReview(t, store, review.StatusQueued)
	src := &fakeSource{filesErr: errors.New("github down")}

	o := newTestOrchestrator(store, src,
		&fakeAgent{typ: agent.TypeSecurity, minTier: tier.Cheap})

	// Each redelivery re-enters on its own; no manual state surgery.
	for i := 0; i < review.MaxRetries; i++ {
		if err := o.Execute(context.Background(), r.ID); err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}
	}

	final, _ := store.GetReview(context.Background(), r.ID)
	if final.Status != review.StatusFailed {
		t.Fatalf("status = %s after %d attempts", final.Status, review.MaxRetries)
	}
	if final.RetryCount != review.MaxRetries {
		t.Fatalf("RetryCount = %d", final.RetryCount)
	}

	// Past the ceiling the review is terminal: redelivery is acked.
	if err := o.Execute(context.Background(), r.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("post-ceiling Execute = %v, want ErrInvalidState", err)
	}
}

func TestOrchestratorRecoversOnRedelivery(t *testing.T) {
	store := newFakeStore()
	r := seedReview(t, store, review.StatusQueued)
	src := &fakeSource{files: sourceFiles(), failFetches: 1}

	o := newTestOrchestrator(store, src,
		&fakeAgent{typ: agent.TypeSecurity, minTier: tier.Cheap,
			result: review.SuccessResult("", tier.Cheap, "{}", "ok", 1, 1, 0)})
	w := NewWorker(o, &fakeQueue{})

	// First delivery hits the transient fetch failure and naks.
	msg := []byte(fmt.Sprintf(`{"review_id":%q}`, r.ID))
	if err := w.handle(context.Background(), messagequeue.SubjectReviewRequested, msg); err == nil {
		t.Fatal("first delivery must nak")
	}

	// Redelivery finds the review QUEUED again and completes it.
	if err := w.handle(context.Background(), messagequeue.SubjectReviewRequested, msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	final, _ := store.GetReview(context.Background(), r.ID)
	if final.Status != review.StatusCompleted {
		t.Fatalf("status = %s, want completed", final.Status)
	}
	if final.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", final.RetryCount)
	}
}

func TestCompleteConflictDoesNotRepeatSideEffects(t *testing.T) {
	store := newFakeStore()
	r := seedReview(t, store, review.StatusInProgress)
	src := &fakeSource{}
	lc := NewLifecycle(store, src, nil)

	store.conflictUpdates = 1
	results := []review.TaskResult{
		review.SuccessResult(agent.TypeSecurity, tier.Cheap, `{"findings":[]}`, "ok", 1, 1, 0),
	}
	if err := lc.Complete(context.Background(), r.ID, results); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// The conflict retried only the status flip; the result rows and the
	// verdict were written exactly once.
	if got := len(store.results[r.ID]); got != 1 {
		t.Fatalf("task rows = %d, want 1", got)
	}
	if len(src.verdicts) != 1 {
		t.Fatalf("verdicts posted = %d, want 1", len(src.verdicts))
	}

	final, _ := store.GetReview(context.Background(), r.ID)
	if final.Status != review.StatusCompleted {
		t.Fatalf("status = %s", final.Status)
	}
}

func TestWorkerAcksInvalidState(t *testing.T) {
	store := newFakeStore()
	r := seedReview(t, store, review.StatusCompleted)
	src := &fakeSource{}

	o := newTestOrchestrator(store, src,
		&fakeAgent{typ: agent.TypeSecurity, minTier: tier.Cheap})
	w := NewWorker(o, &fakeQueue{})

	// Redelivery of a finished review is acked, not retried.
	err := w.handle(context.Background(), messagequeue.SubjectReviewRequested,
		[]byte(fmt.Sprintf(`{"review_id":%q}`, r.ID)))
	if err != nil {
		t.Fatalf("handle = %v, want nil", err)
	}
}

func TestWorkerAcksPoisonMessages(t *testing.T) {
	w := NewWorker(newTestOrchestrator(newFakeStore(), &fakeSource{}), &fakeQueue{})

	if err := w.handle(context.Background(), "reviews.requested", []byte("not json")); err != nil {
		t.Fatalf("malformed: %v", err)
	}
	if err := w.handle(context.Background(), "reviews.requested", []byte(`{}`)); err != nil {
		t.Fatalf("missing id: %v", err)
	}
	if err := w.handle(context.Background(), "reviews.requested",
		[]byte(`{"review_id":"00000000-0000-0000-0000-000000000000"}`)); err != nil {
		t.Fatalf("unknown review: %v", err)
	}
}

func TestWorkerNaksTransientFailure(t *testing.T) {
	store := newFakeStore()
	r := seedReview(t, store, review.StatusQueued)
	src := &fakeSource{filesErr: errors.New("github down")}

	w := NewWorker(newTestOrchestrator(store, src,
		&fakeAgent{typ: agent.TypeSecurity, minTier: tier.Cheap}), &fakeQueue{})

	err := w.handle(context.Background(), messagequeue.SubjectReviewRequested,
		[]byte(fmt.Sprintf(`{"review_id":%q}`, r.ID)))
	if err == nil {
		t.Fatal("transient failure must nak for redelivery")
	}
}
