package agent

import (
	"fmt"

	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/domain/diff"
	"github.com/gavelhq/gavel/internal/domain/ranking"
	"github.com/gavelhq/gavel/internal/domain/tier"
	"github.com/gavelhq/gavel/internal/router"
)

// securityRules rank files by security relevance: the security layer
// itself, secret material in the patch, input-handling code, SQL usage,
// the data layer, configuration, and client-side injection signals.
var securityRules = []ranking.Rule{
	{PathContains: []string{"security", "auth", "filter"}, Points: 100},
	{PatchContains: []string{"password", "secret", "token", "credential"}, Points: 90},
	{PathContains: []string{"controller", "handler", "endpoint"}, Points: 80},
	{PatchContains: []string{"select ", "insert ", "executequery", "preparestatement"}, Points: 70},
	{PathContains: []string{"repository", "dao", "store"}, Points: 60},
	{PathContains: []string{"config"}, Points: 50},
	{PatchContains: []string{"innerhtml", "eval(", "document.write"}, Points: 40},
}

// NewSecurity creates the security scanning agent: secrets, injection,
// XSS, SSRF, framework security misconfiguration. Pattern-matching heavy
// work that smaller models handle well, so it runs on CHEAP.
func NewSecurity(r *router.ModelRouter, cfg config.AgentConfig) Agent {
	return &reviewAgent{
		typ:     TypeSecurity,
		minTier: tier.Cheap,
		heuristics: ranking.Heuristics{
			Relevant: func(f diff.File) bool { return f.IsSource() || f.IsConfig() },
			Rules:    securityRules,
		},
		maxContextFiles: cfg.MaxContextFiles,
		router:          r,
		summary:         "Security analysis complete.",
		systemPrompt: func(repo string) string {
			return fmt.Sprintf(`You are a security code review agent for repository: %s
Analyze for: hardcoded secrets, SQL injection, XSS, SSRF, unsafe deserialization,
framework security misconfigurations, dependency vulnerabilities.
%s`, repo, findingsSchema)
		},
	}
}
