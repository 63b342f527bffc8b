package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/domain/tier"
	"github.com/gavelhq/gavel/internal/port/inference"
)

// scriptedProvider returns canned outcomes per model name.
type scriptedProvider struct {
	calls    []string
	failFor  map[string]bool
	response inference.Response
}

func (p *scriptedProvider) Invoke(_ context.Context, req inference.Request) (*inference.Response, error) {
	p.calls = append(p.calls, req.Model)
	if p.failFor[req.Model] {
		return nil, errors.New("backend down")
	}
	resp := p.response
	if resp.Content == "" {
		resp.Content = "output from " + req.Model
	}
	return &resp, nil
}

func testAIConfig() config.AI {
	return config.AI{
		DefaultTier: tier.Local,
		MaxTier:     tier.Smart,
		SmartModel:  "smart-model",
		CheapModel:  "cheap-model",
		LocalModel:  "local-model",
	}
}

func TestRouteHappyPath(t *testing.T) {
	p := &scriptedProvider{response: inference.Response{Content: "ok", InputTokens: 10, OutputTokens: 5}}
	r := New(p, testAIConfig(), nil)

	resp := r.Route(context.Background(), Request{Tier: tier.Smart, UserPrompt: "x"})

	if !resp.Success || resp.Content != "ok" || resp.TierUsed != tier.Smart {
		t.Fatalf("resp = %+v", resp)
	}
	if len(p.calls) != 1 || p.calls[0] != "smart-model" {
		t.Fatalf("calls = %v", p.calls)
	}
	if resp.InputTokens != 10 || resp.OutputTokens != 5 {
		t.Fatalf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestRouteClampsToCeiling(t *testing.T) {
	p := &scriptedProvider{}
	cfg := testAIConfig()
	cfg.MaxTier = tier.Cheap
	r := New(p, cfg, nil)

	resp := r.Route(context.Background(), Request{Tier: tier.Smart, UserPrompt: "x"})

	if resp.TierUsed != tier.Cheap {
		t.Fatalf("TierUsed = %s, want CHEAP", resp.TierUsed)
	}
	if len(p.calls) != 1 || p.calls[0] != "cheap-model" {
		t.Fatalf("calls = %v", p.calls)
	}
}

func TestRouteFallsBackOneTier(t *testing.T) {
	p := &scriptedProvider{failFor: map[string]bool{"smart-model": true}}
	r := New(p, testAIConfig(), nil)

	resp := r.Route(context.Background(), Request{Tier: tier.Smart, UserPrompt: "x"})

	if !resp.Success || resp.TierUsed != tier.Cheap {
		t.Fatalf("resp = %+v", resp)
	}
	if len(p.calls) != 2 || p.calls[1] != "cheap-model" {
		t.Fatalf("calls = %v", p.calls)
	}
}

func TestRoutePlaceholderAfterFallbackFails(t *testing.T) {
	p := &scriptedProvider{failFor: map[string]bool{"smart-model": true, "cheap-model": true}}
	r := New(p, testAIConfig(), nil)

	resp := r.Route(context.Background(), Request{Tier: tier.Smart, UserPrompt: "x"})

	if resp.Success {
		t.Fatal("expected Success=false")
	}
	if resp.Content != PlaceholderContent {
		t.Fatalf("Content = %q", resp.Content)
	}
	if resp.Cause != "backend down" {
		t.Fatalf("Cause = %q, want underlying error text", resp.Cause)
	}
	// Exactly one step down, never two.
	if len(p.calls) != 2 {
		t.Fatalf("calls = %v, want smart then cheap only", p.calls)
	}
}

func TestRouteLocalHasNoFallback(t *testing.T) {
	p := &scriptedProvider{failFor: map[string]bool{"local-model": true}}
	r := New(p, testAIConfig(), nil)

	resp := r.Route(context.Background(), Request{Tier: tier.Local, UserPrompt: "x"})

	if resp.Success || resp.Content != PlaceholderContent {
		t.Fatalf("resp = %+v", resp)
	}
	if len(p.calls) != 1 {
		t.Fatalf("calls = %v, want one attempt", p.calls)
	}
}

func TestRouteInvalidTierUsesDefault(t *testing.T) {
	p := &scriptedProvider{}
	r := New(p, testAIConfig(), nil)

	resp := r.Route(context.Background(), Request{Tier: tier.Tier("ULTRA"), UserPrompt: "x"})

	if resp.TierUsed != tier.Local {
		t.Fatalf("TierUsed = %s, want LOCAL default", resp.TierUsed)
	}
}

func TestRouteLatencyMeasured(t *testing.T) {
	p := &scriptedProvider{}
	r := New(p, testAIConfig(), nil)
	clock := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(50 * time.Millisecond)
		return clock
	}

	resp := r.Route(context.Background(), Request{Tier: tier.Local, UserPrompt: "x"})
	if resp.Latency <= 0 {
		t.Fatalf("Latency = %v, want > 0", resp.Latency)
	}
}
