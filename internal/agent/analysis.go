package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/gavelhq/gavel/internal/domain/diff"
	"github.com/gavelhq/gavel/internal/domain/ranking"
	"github.com/gavelhq/gavel/internal/domain/review"
	"github.com/gavelhq/gavel/internal/domain/tier"
	"github.com/gavelhq/gavel/internal/router"
)

// reviewAgent is the shared implementation behind every specialty: a
// relevance heuristic, a capability tier, and a system prompt, executed
// through the model router.
type reviewAgent struct {
	typ             string
	minTier         tier.Tier
	heuristics      ranking.Heuristics
	maxContextFiles int
	systemPrompt    func(repo string) string
	router          *router.ModelRouter
	summary         string
	now             func() time.Time
}

func (a *reviewAgent) Type() string { return a.typ }

func (a *reviewAgent) MinimumTier() tier.Tier { return a.minTier }

func (a *reviewAgent) Supports(files []diff.File) bool {
	for _, f := range files {
		if a.heuristics.Relevant == nil || a.heuristics.Relevant(f) {
			return true
		}
	}
	return false
}

func (a *reviewAgent) Rank(files []diff.File, max int) []diff.File {
	return ranking.Rank(files, a.heuristics, max)
}

func (a *reviewAgent) Analyze(ctx context.Context, in Input) review.TaskResult {
	ranked := a.Rank(in.Files, a.maxContextFiles)
	if len(ranked) == 0 {
		return review.SuccessResult(a.typ, tier.Local, "{}", "No relevant files.", 0, 0, 0)
	}

	slog.InfoContext(ctx, "agent analyzing",
		"agent", a.typ, "selected", len(ranked), "total", len(in.Files), "repo", in.Snapshot.Repo)

	system := a.systemPrompt(in.Snapshot.Repo)
	user := withGuide(in.Guide, ranked)

	start := a.clock()()
	resp := a.router.Route(ctx, router.Request{
		Tier:         a.minTier,
		SystemPrompt: system,
		UserPrompt:   user,
	})
	elapsed := a.clock()().Sub(start)

	if !resp.Success {
		cause := resp.Cause
		if cause == "" {
			cause = resp.Content
		}
		return review.FailureResult(a.typ, cause)
	}

	inTokens := resp.InputTokens
	if inTokens == 0 {
		inTokens = (len(system) + len(user)) / 4
	}
	outTokens := resp.OutputTokens
	if outTokens == 0 {
		outTokens = len(resp.Content) / 4
	}

	return review.SuccessResult(a.typ, resp.TierUsed, resp.Content, a.summary,
		inTokens, outTokens, elapsed)
}

func (a *reviewAgent) clock() func() time.Time {
	if a.now != nil {
		return a.now
	}
	return time.Now
}
