package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gavelhq/gavel/internal/adapter/otel"
	"github.com/gavelhq/gavel/internal/agent"
	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/domain/diff"
	"github.com/gavelhq/gavel/internal/domain/guide"
	"github.com/gavelhq/gavel/internal/domain/review"
	"github.com/gavelhq/gavel/internal/logger"
	"github.com/gavelhq/gavel/internal/port/source"
)

// Orchestrator runs the multi-agent review pipeline:
//
//	begin → fetch changed files → select agents → fan out in parallel →
//	collect results in submission order → post verdict → complete.
//
// Agents are independent, so they run concurrently under a semaphore;
// one slow or dead agent costs its own timeout, never the pipeline. A
// review with partial agent results still posts: some findings beat none.
type Orchestrator struct {
	lifecycle *Lifecycle
	registry  *agent.Registry
	source    source.Provider
	agentCfg  config.Agents
	aiCfg     config.AI
	timeout   time.Duration
	sem       *semaphore.Weighted
	metrics   *otel.Metrics
}

// NewOrchestrator creates the orchestration service. metrics may be nil.
func NewOrchestrator(lifecycle *Lifecycle, registry *agent.Registry, src source.Provider,
	cfg config.Config, metrics *otel.Metrics) *Orchestrator {
	maxParallel := cfg.Review.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &Orchestrator{
		lifecycle: lifecycle,
		registry:  registry,
		source:    src,
		agentCfg:  cfg.Agents,
		aiCfg:     cfg.AI,
		timeout:   cfg.Review.AgentTimeout,
		sem:       semaphore.NewWeighted(int64(maxParallel)),
		metrics:   metrics,
	}
}

// Execute runs the full pipeline for one review. The returned error
// means the attempt failed and the queue should redeliver; the failure
// has already been counted against the retry ceiling.
func (o *Orchestrator) Execute(ctx context.Context, reviewID string) error {
	ctx = logger.WithReviewID(ctx, reviewID)
	start := time.Now()

	snap, err := o.lifecycle.Begin(ctx, reviewID)
	if err != nil {
		return err
	}

	ctx, span := otel.StartReviewSpan(ctx, snap.ReviewID, snap.Repo, snap.PRNumber)
	defer span.End()

	results, err := o.run(ctx, snap)
	if err != nil {
		if failErr := o.lifecycle.RecordFailure(ctx, reviewID, err.Error()); failErr != nil {
			slog.ErrorContext(ctx, "record failure", "review_id", reviewID, "error", failErr)
		}
		o.countFailure(ctx)
		return err
	}

	if err := o.lifecycle.Complete(ctx, reviewID, results); err != nil {
		if failErr := o.lifecycle.RecordFailure(ctx, reviewID, err.Error()); failErr != nil {
			slog.ErrorContext(ctx, "record failure", "review_id", reviewID, "error", failErr)
		}
		o.countFailure(ctx)
		return err
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	slog.InfoContext(ctx, "review completed",
		"review_id", reviewID, "agents", len(results), "succeeded", succeeded,
		"duration", time.Since(start))

	if o.metrics != nil {
		o.metrics.ReviewsCompleted.Add(ctx, 1)
		o.metrics.ReviewDuration.Record(ctx, time.Since(start).Seconds())
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, snap review.Snapshot) ([]review.TaskResult, error) {
	files, err := o.source.ListChangedFiles(ctx, snap.InstallationID, snap.Repo, snap.PRNumber)
	if err != nil {
		return nil, fmt.Errorf("list changed files: %w", err)
	}
	if len(files) == 0 {
		slog.InfoContext(ctx, "no files to analyze", "review_id", snap.ReviewID)
		return nil, nil
	}
	slog.InfoContext(ctx, "files fetched", "review_id", snap.ReviewID, "count", len(files))

	eligible := o.eligibleAgents(files)
	if len(eligible) == 0 {
		slog.InfoContext(ctx, "no eligible agents", "review_id", snap.ReviewID)
		return nil, nil
	}

	g := o.fetchGuide(ctx, snap)
	in := agent.Input{Snapshot: snap, Files: files, Guide: g}

	// Fan out. results is indexed by submission order so the posted
	// summary renders deterministically regardless of completion order.
	results := make([]review.TaskResult, len(eligible))
	done := make(chan int, len(eligible))

	for i, a := range eligible {
		go func(idx int, a agent.Agent) {
			defer func() { done <- idx }()
			results[idx] = o.runAgent(ctx, a, in)
		}(i, a)
	}
	for range eligible {
		<-done
	}

	return results, nil
}

// runAgent executes one agent under the concurrency semaphore with its
// own timeout. Panics and infrastructure faults become failed results;
// they never escape to sink the sibling tasks.
func (o *Orchestrator) runAgent(ctx context.Context, a agent.Agent, in agent.Input) (res review.TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "agent panicked", "agent", a.Type(), "panic", r)
			res = review.FailureResult(a.Type(), fmt.Sprintf("agent panicked: %v", r))
		}
	}()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return review.FailureResult(a.Type(), fmt.Sprintf("acquire slot: %v", err))
	}
	defer o.sem.Release(1)

	taskCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	taskCtx, span := otel.StartAgentSpan(taskCtx, in.Snapshot.ReviewID, a.Type())
	defer span.End()

	start := time.Now()
	res = a.Analyze(taskCtx, in)

	if o.metrics != nil {
		o.metrics.AgentTasks.Add(ctx, 1)
		o.metrics.AgentTaskDuration.Record(ctx, time.Since(start).Seconds())
		o.metrics.TokensUsed.Add(ctx, int64(res.InputTokens+res.OutputTokens))
	}
	return res
}

// eligibleAgents filters the registry down to agents that are enabled,
// affordable under the tier ceiling, and interested in the changed files.
func (o *Orchestrator) eligibleAgents(files []diff.File) []agent.Agent {
	var out []agent.Agent
	for _, a := range o.registry.Eligible(files) {
		if !o.enabled(a.Type()) {
			continue
		}
		if !a.MinimumTier().WithinBudget(o.aiCfg.MaxTier) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (o *Orchestrator) enabled(typ string) bool {
	switch typ {
	case agent.TypeSecurity:
		return o.agentCfg.Security.Enabled
	case agent.TypePerformance:
		return o.agentCfg.Performance.Enabled
	case agent.TypeArchitecture:
		return o.agentCfg.Architecture.Enabled
	}
	return false
}

// fetchGuide loads the repository guide best-effort: reviews proceed
// without one.
func (o *Orchestrator) fetchGuide(ctx context.Context, snap review.Snapshot) *guide.Guide {
	raw, err := o.source.FetchGuide(ctx, snap.InstallationID, snap.Repo, snap.HeadSHA)
	if err != nil {
		slog.WarnContext(ctx, "fetch guide", "review_id", snap.ReviewID, "error", err)
		return nil
	}
	return guide.Load(string(raw))
}

func (o *Orchestrator) countFailure(ctx context.Context) {
	if o.metrics != nil {
		o.metrics.ReviewsFailed.Add(ctx, 1)
	}
}
