// Package guide defines the optional per-repository review guide.
package guide

// FileName is where repositories place their review guide.
const FileName = "GAVEL.md"

// MaxBytes soft-caps the guide to protect agent token budgets.
const MaxBytes = 8192

// Guide is an immutable snippet of repository-supplied review context,
// fetched from GAVEL.md at the repo root.
type Guide struct {
	Content   string
	Truncated bool
}

// Load builds a Guide from raw file content, truncating on a line
// boundary past MaxBytes. Empty content yields nil: a missing guide is
// not an error.
func Load(raw string) *Guide {
	if raw == "" {
		return nil
	}
	if len(raw) <= MaxBytes {
		return &Guide{Content: raw}
	}
	cut := MaxBytes
	for i := MaxBytes; i > 0; i-- {
		if raw[i-1] == '\n' {
			cut = i
			break
		}
	}
	return &Guide{Content: raw[:cut], Truncated: true}
}
