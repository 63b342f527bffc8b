// Package agent defines the review agents and their registry. Each agent
// owns a specialty (security, performance, architecture), a minimum
// capability tier, and a heuristic for choosing which changed files fit
// its context window.
package agent

import (
	"context"

	"github.com/gavelhq/gavel/internal/domain/diff"
	"github.com/gavelhq/gavel/internal/domain/guide"
	"github.com/gavelhq/gavel/internal/domain/review"
	"github.com/gavelhq/gavel/internal/domain/tier"
)

// Agent type name constants, persisted in task results.
const (
	TypeSecurity     = "security"
	TypePerformance  = "performance"
	TypeArchitecture = "architecture"
)

// Input is everything one agent task receives: a detached review
// snapshot, the changed files, and the optional repository guide.
type Input struct {
	Snapshot review.Snapshot
	Files    []diff.File
	Guide    *guide.Guide
}

// Agent is one review specialty.
type Agent interface {
	// Type identifies the agent in results and logs.
	Type() string

	// MinimumTier is the capability tier this agent's analysis needs.
	MinimumTier() tier.Tier

	// Supports reports whether any of the changed files are worth this
	// agent's attention.
	Supports(files []diff.File) bool

	// Rank orders files by relevance to this agent and caps the result.
	Rank(files []diff.File, max int) []diff.File

	// Analyze runs the agent against the input and always returns a
	// result; infrastructure faults surface as failed results, not errors.
	Analyze(ctx context.Context, in Input) review.TaskResult
}

// Registry holds the agents enabled at startup, in registration order.
// That order is the submission order of the fan-out, so results render
// deterministically.
type Registry struct {
	agents []Agent
}

// NewRegistry creates a registry from the given agents.
func NewRegistry(agents ...Agent) *Registry {
	return &Registry{agents: agents}
}

// Eligible returns the registered agents that support the changed files,
// preserving registration order.
func (r *Registry) Eligible(files []diff.File) []Agent {
	var out []Agent
	for _, a := range r.agents {
		if a.Supports(files) {
			out = append(out, a)
		}
	}
	return out
}

// All returns every registered agent.
func (r *Registry) All() []Agent {
	return r.agents
}
