package agent

import (
	"fmt"
	"strings"

	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/domain/diff"
	"github.com/gavelhq/gavel/internal/domain/ranking"
	"github.com/gavelhq/gavel/internal/domain/tier"
	"github.com/gavelhq/gavel/internal/router"
)

// architectureRules rank files by structural impact: build manifests
// first (dependency changes ripple everywhere), then framework wiring,
// entry points, deprecated-API signals in the patch, the API layer, and
// runtime configuration.
var architectureRules = []ranking.Rule{
	{PathContains: []string{"pom.xml", "build.gradle", "go.mod", "package.json"}, Points: 100},
	{PathContains: []string{"securityconfig"}, Points: 90},
	{PathContains: []string{"config"}, Points: 80},
	{PathContains: []string{"application.", "main."}, Points: 70},
	{PatchContains: []string{"javax.", "deprecated"}, Points: 60},
	{PathContains: []string{"controller", "router", "routes"}, Points: 50},
	{PathContains: []string{".yml", ".yaml", ".properties"}, Points: 40},
}

// NewArchitecture creates the architecture review agent: framework
// migrations, pattern violations, structural smells. Needs inter-class
// reasoning, so it requests SMART.
func NewArchitecture(r *router.ModelRouter, cfg config.AgentConfig) Agent {
	return &reviewAgent{
		typ:     TypeArchitecture,
		minTier: tier.Smart,
		heuristics: ranking.Heuristics{
			Relevant: func(f diff.File) bool {
				return f.IsSource() || f.IsConfig() || strings.HasSuffix(f.Path, "go.mod")
			},
			Rules: architectureRules,
		},
		maxContextFiles: cfg.MaxContextFiles,
		router:          r,
		summary:         "Architecture analysis complete.",
		systemPrompt: func(repo string) string {
			return fmt.Sprintf(`You are an architecture review agent. Repository: %s
Analyze for:
1. Framework migrations left half-done (deprecated APIs, renamed properties)
2. Outdated test idioms and assertion libraries
3. Missed modern language features
4. Architecture: circular deps, God classes, business logic in handlers
%s`, repo, findingsSchema)
		},
	}
}
