// Package diff defines value objects for changed files in a pull request.
package diff

import "strings"

// Kind is the detected content kind of a changed file.
type Kind string

const (
	KindGo         Kind = "go"
	KindJava       Kind = "java"
	KindKotlin     Kind = "kotlin"
	KindPython     Kind = "python"
	KindJavaScript Kind = "javascript"
	KindTypeScript Kind = "typescript"
	KindSQL        Kind = "sql"
	KindYAML       Kind = "yaml"
	KindJSON       Kind = "json"
	KindTOML       Kind = "toml"
	KindXML        Kind = "xml"
	KindProperties Kind = "properties"
	KindGradle     Kind = "gradle"
	KindMarkdown   Kind = "markdown"
	KindUnknown    Kind = "unknown"
)

// File is an immutable representation of one file in a PR diff.
type File struct {
	Path      string `json:"path"`
	Kind      Kind   `json:"kind"`
	Patch     string `json:"patch"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Content   string `json:"content,omitempty"`
}

// DetectKind maps a file path to its content kind by extension.
func DetectKind(path string) Kind {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".go"):
		return KindGo
	case strings.HasSuffix(lower, ".java"):
		return KindJava
	case strings.HasSuffix(lower, ".kt"), strings.HasSuffix(lower, ".kts"):
		return KindKotlin
	case strings.HasSuffix(lower, ".py"):
		return KindPython
	case strings.HasSuffix(lower, ".js"), strings.HasSuffix(lower, ".jsx"):
		return KindJavaScript
	case strings.HasSuffix(lower, ".ts"), strings.HasSuffix(lower, ".tsx"):
		return KindTypeScript
	case strings.HasSuffix(lower, ".sql"):
		return KindSQL
	case strings.HasSuffix(lower, ".yml"), strings.HasSuffix(lower, ".yaml"):
		return KindYAML
	case strings.HasSuffix(lower, ".json"):
		return KindJSON
	case strings.HasSuffix(lower, ".toml"):
		return KindTOML
	case strings.HasSuffix(lower, ".xml"):
		return KindXML
	case strings.HasSuffix(lower, ".properties"):
		return KindProperties
	case strings.HasSuffix(lower, ".gradle"):
		return KindGradle
	case strings.HasSuffix(lower, ".md"):
		return KindMarkdown
	}
	return KindUnknown
}

// IsSource reports whether the file is program source code.
func (f File) IsSource() bool {
	switch f.Kind {
	case KindGo, KindJava, KindKotlin, KindPython, KindJavaScript, KindTypeScript:
		return true
	}
	return false
}

// IsConfig reports whether the file is build or runtime configuration.
func (f File) IsConfig() bool {
	switch f.Kind {
	case KindYAML, KindJSON, KindTOML, KindXML, KindProperties, KindGradle:
		return true
	}
	return false
}

// EstimateTokens approximates the prompt token cost of including this
// file. Full content when present, patch otherwise, at ~4 chars/token.
func (f File) EstimateTokens() int {
	text := f.Content
	if text == "" {
		text = f.Patch
	}
	return len(text) / 4
}
