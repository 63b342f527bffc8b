package agent

import (
	"fmt"

	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/domain/diff"
	"github.com/gavelhq/gavel/internal/domain/ranking"
	"github.com/gavelhq/gavel/internal/domain/tier"
	"github.com/gavelhq/gavel/internal/router"
)

// NewPerformance creates the performance analysis agent: N+1 queries,
// inefficient loops, missing caching, resource leaks. No path rules; it
// ranks purely by diff size since performance problems concentrate in
// the largest changes. Runs on CHEAP.
func NewPerformance(r *router.ModelRouter, cfg config.AgentConfig) Agent {
	return &reviewAgent{
		typ:     TypePerformance,
		minTier: tier.Cheap,
		heuristics: ranking.Heuristics{
			Relevant: diff.File.IsSource,
		},
		maxContextFiles: cfg.MaxContextFiles,
		router:          r,
		summary:         "Performance analysis complete.",
		systemPrompt: func(repo string) string {
			return fmt.Sprintf(`You are a performance review agent for repository: %s
Analyze for: N+1 queries, inefficient loops, missing caching, resource leaks.
%s`, repo, findingsSchema)
		},
	}
}
