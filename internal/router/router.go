// Package router selects the model tier for each agent task and shields
// callers from inference faults.
package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/domain/tier"
	"github.com/gavelhq/gavel/internal/port/inference"
	"github.com/gavelhq/gavel/internal/resilience"
)

// PlaceholderContent stands in for model output when every eligible tier
// failed. Routing never returns an error: a dead model backend must not
// fail the review, it degrades to this placeholder.
const PlaceholderContent = "AI analysis unavailable."

// Request is one routed inference call.
type Request struct {
	Tier         tier.Tier
	SystemPrompt string
	UserPrompt   string
}

// Response carries model output plus routing metadata. Cause holds the
// last underlying error text when Success is false.
type Response struct {
	Content      string
	TierUsed     tier.Tier
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
	Success      bool
	Cause        string
}

// ModelRouter maps capability tiers to concrete models, clamps requests
// to the configured ceiling, and falls back one tier on failure.
type ModelRouter struct {
	provider inference.Provider
	cfg      config.AI
	breakers *resilience.BreakerSet
	now      func() time.Time
}

// New creates a ModelRouter with per-tier circuit breakers.
func New(provider inference.Provider, cfg config.AI, breakers *resilience.BreakerSet) *ModelRouter {
	return &ModelRouter{
		provider: provider,
		cfg:      cfg,
		breakers: breakers,
		now:      time.Now,
	}
}

// Route invokes the model for the requested tier, clamped to the
// configured ceiling. On failure it steps down exactly one tier and
// retries once; if that also fails the response carries the placeholder
// with Success=false. Route never returns an error.
func (r *ModelRouter) Route(ctx context.Context, req Request) Response {
	requested := req.Tier
	if !requested.Valid() {
		requested = r.cfg.DefaultTier
	}
	effective := clamp(requested, r.cfg.MaxTier)

	start := r.now()
	resp, err := r.invoke(ctx, effective, req)
	if err == nil {
		resp.Latency = r.now().Sub(start)
		return *resp
	}
	slog.Warn("tier invocation failed",
		"tier", effective, "model", r.cfg.ModelFor(effective), "error", err)

	if fallback, ok := effective.StepDown(); ok {
		resp, err = r.invoke(ctx, fallback, req)
		if err == nil {
			resp.Latency = r.now().Sub(start)
			return *resp
		}
		slog.Warn("fallback tier failed",
			"tier", fallback, "model", r.cfg.ModelFor(fallback), "error", err)
	}

	return Response{
		Content:  PlaceholderContent,
		TierUsed: effective,
		Latency:  r.now().Sub(start),
		Success:  false,
		Cause:    err.Error(),
	}
}

func (r *ModelRouter) invoke(ctx context.Context, t tier.Tier, req Request) (*Response, error) {
	model := r.cfg.ModelFor(t)

	var out *inference.Response
	call := func() error {
		var err error
		out, err = r.provider.Invoke(ctx, inference.Request{
			Model:        model,
			SystemPrompt: req.SystemPrompt,
			UserPrompt:   req.UserPrompt,
			MaxTokens:    r.cfg.MaxOutputTokens,
		})
		return err
	}

	var err error
	if r.breakers != nil {
		err = r.breakers.For(string(t)).Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}

	return &Response{
		Content:      out.Content,
		TierUsed:     t,
		InputTokens:  out.InputTokens,
		OutputTokens: out.OutputTokens,
		Success:      true,
	}, nil
}

// clamp lowers the requested tier to the ceiling when it exceeds it.
func clamp(requested, ceiling tier.Tier) tier.Tier {
	if !ceiling.Valid() {
		return requested
	}
	if requested.WithinBudget(ceiling) {
		return requested
	}
	return ceiling
}
