// Package ranking provides deterministic heuristic scoring used by review
// agents to order and cap their file context within a token budget.
package ranking

import (
	"sort"
	"strings"

	"github.com/gavelhq/gavel/internal/domain/diff"
)

// sizeDivisor converts changed-line counts into score points: one point
// per ten changed lines.
const sizeDivisor = 10

// Rule awards Points when the file path contains any of PathContains or
// the patch text contains any of PatchContains. Matching is
// case-insensitive. A rule with both lists empty never matches.
type Rule struct {
	PathContains  []string
	PatchContains []string
	Points        int
}

// Heuristics describes one agent's relevance model: a kind filter plus
// scoring rules. A nil Relevant keeps every file; empty Rules fall back
// to size-proportional scoring alone.
type Heuristics struct {
	Relevant func(diff.File) bool
	Rules    []Rule
}

// Rank filters files by relevance, scores the survivors, sorts them by
// descending score with a stable tie-break on original order, and caps
// the result at max entries. It is a pure function: identical input
// always yields identical output, and the result never exceeds max.
func Rank(files []diff.File, h Heuristics, max int) []diff.File {
	if max <= 0 {
		return nil
	}

	kept := make([]diff.File, 0, len(files))
	for _, f := range files {
		if h.Relevant == nil || h.Relevant(f) {
			kept = append(kept, f)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return Score(kept[i], h.Rules) > Score(kept[j], h.Rules)
	})

	if len(kept) > max {
		kept = kept[:max]
	}
	return kept
}

// Score computes the heuristic score for one file: the sum of matched
// rule points plus a size-proportional bonus. With no rules the size
// signal alone orders the files (bigger diffs carry more context).
func Score(f diff.File, rules []Rule) int {
	pathLower := strings.ToLower(f.Path)
	patchLower := strings.ToLower(f.Patch)

	score := 0
	for _, r := range rules {
		if matchesAny(pathLower, r.PathContains) || matchesAny(patchLower, r.PatchContains) {
			score += r.Points
		}
	}
	score += (f.Additions + f.Deletions) / sizeDivisor
	return score
}

func matchesAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
