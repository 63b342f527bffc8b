package agent

import (
	"fmt"
	"strings"

	"github.com/gavelhq/gavel/internal/domain/diff"
	"github.com/gavelhq/gavel/internal/domain/guide"
)

// findingsSchema is the JSON contract every agent demands from the model.
const findingsSchema = `Respond ONLY with JSON: {"findings":[{"severity":"CRITICAL|HIGH|MEDIUM|LOW","category":"...",` +
	`"file":"...","line":0,"title":"...","description":"...","suggestion":"..."}],"summary":"..."}`

// codeContext renders the ranked files as fenced patch blocks.
func codeContext(files []diff.File) string {
	blocks := make([]string, 0, len(files))
	for _, f := range files {
		blocks = append(blocks, fmt.Sprintf("### %s\n```%s\n%s\n```", f.Path, f.Kind, f.Patch))
	}
	return strings.Join(blocks, "\n\n")
}

// withGuide builds the user prompt: optional repository guide followed by
// the code context. The guide travels with every agent so repo-specific
// conventions shape the findings.
func withGuide(g *guide.Guide, files []diff.File) string {
	var sb strings.Builder
	if g != nil {
		sb.WriteString("--- PROJECT GUIDE ---\n")
		sb.WriteString(g.Content)
		sb.WriteString("\n--- END PROJECT GUIDE ---\n\n")
	}
	sb.WriteString("Code:\n")
	sb.WriteString(codeContext(files))
	return sb.String()
}
