package review

import (
	"fmt"
	"strings"
)

// Verdict classifies the outcome posted back to the pull request. Values
// match the review event names the hosting API expects.
type Verdict string

const (
	VerdictApprove        Verdict = "APPROVE"
	VerdictComment        Verdict = "COMMENT"
	VerdictRequestChanges Verdict = "REQUEST_CHANGES"
)

// severity markers scanned for in raw findings text. Substring matching
// on both compact and spaced JSON is intentional: findings schemas are
// owned by each agent and are opaque here.
var (
	criticalMarkers = []string{`"severity":"CRITICAL"`, `"severity": "CRITICAL"`}
	highMarkers     = []string{`"severity":"HIGH"`, `"severity": "HIGH"`}
)

// Decide applies the worst-finding-wins policy over successful results:
// any critical finding requests changes, any high finding comments,
// otherwise approve. Failed results never influence the verdict.
func Decide(results []TaskResult) Verdict {
	if anySuccessfulContains(results, criticalMarkers) {
		return VerdictRequestChanges
	}
	if anySuccessfulContains(results, highMarkers) {
		return VerdictComment
	}
	return VerdictApprove
}

func anySuccessfulContains(results []TaskResult, markers []string) bool {
	for _, r := range results {
		if !r.Success {
			continue
		}
		for _, m := range markers {
			if strings.Contains(r.Findings, m) {
				return true
			}
		}
	}
	return false
}

// BuildSummary renders the posted review body: a header identifying the
// change-set, one section per task outcome in submission order, and a
// footer. Failed tasks are visible but never suppress the review.
func BuildSummary(r *Review, results []TaskResult) string {
	var sb strings.Builder

	sb.WriteString("## Gavel Code Review\n\n")
	shortSHA := r.HeadSHA
	if len(shortSHA) > 7 {
		shortSHA = shortSHA[:7]
	}
	fmt.Fprintf(&sb, "**Repository**: %s | **PR**: #%d | **Commit**: `%s`\n\n",
		r.Repo, r.PRNumber, shortSHA)

	for _, res := range results {
		icon := ":white_check_mark:"
		if !res.Success {
			icon = ":x:"
		}
		fmt.Fprintf(&sb, "### %s %s\n", icon, titleCase(res.AgentType))
		if res.Success {
			if res.Summary != "" {
				sb.WriteString(res.Summary)
			} else {
				sb.WriteString("Analysis complete.")
			}
		} else {
			fmt.Fprintf(&sb, "*Analysis failed: %s*", res.Error)
		}
		sb.WriteString("\n\n")
	}

	sb.WriteString("---\n*Posted by Gavel, an automated review orchestrator.*")
	return sb.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
