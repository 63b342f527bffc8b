// Package source defines the port for the source hosting provider
// (pull request contents, review verdicts, repository guides).
package source

import (
	"context"

	"github.com/gavelhq/gavel/internal/domain/diff"
	"github.com/gavelhq/gavel/internal/domain/review"
)

// Provider is the port interface for the source hosting platform.
type Provider interface {
	// ListChangedFiles returns the files changed by a pull request.
	ListChangedFiles(ctx context.Context, installationID int64, repo string, prNumber int) ([]diff.File, error)

	// PostVerdict publishes the aggregated review verdict and summary
	// on the pull request.
	PostVerdict(ctx context.Context, installationID int64, repo string, prNumber int, verdict review.Verdict, body string) error

	// FetchGuide retrieves the repository's review guide file, if any.
	// A missing guide is not an error; it returns nil content.
	FetchGuide(ctx context.Context, installationID int64, repo, ref string) ([]byte, error)
}
