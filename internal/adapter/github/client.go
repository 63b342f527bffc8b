// Package github implements the source provider port against the GitHub
// REST API, authenticating as a GitHub App installation.
package github

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/domain/diff"
	"github.com/gavelhq/gavel/internal/domain/guide"
	"github.com/gavelhq/gavel/internal/domain/review"
	"github.com/gavelhq/gavel/internal/port/cache"
	"github.com/gavelhq/gavel/internal/resilience"
)

const (
	defaultAPIBaseURL = "https://api.github.com"

	// filesPerPage and maxFilePages bound the changed-file listing:
	// at most 1000 files per pull request are considered.
	filesPerPage = 100
	maxFilePages = 10
)

// Client implements source.Provider for GitHub.
type Client struct {
	apiBaseURL string
	appID      int64
	privateKey *rsa.PrivateKey
	cache      cache.Cache
	httpClient *http.Client
	breaker    *resilience.Breaker
	now        func() time.Time // injectable for tests
}

// NewClient creates a GitHub client from app credentials. The private
// key may be supplied inline or via a file path; a malformed key fails
// construction, an absent key defers the error to first authenticated use.
func NewClient(cfg config.GitHub, tokenCache cache.Cache) (*Client, error) {
	c := &Client{
		apiBaseURL: cfg.APIBaseURL,
		appID:      cfg.AppID,
		cache:      tokenCache,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	if c.apiBaseURL == "" {
		c.apiBaseURL = defaultAPIBaseURL
	}

	pemBytes := []byte(cfg.PrivateKey)
	if len(pemBytes) == 0 && cfg.PrivateKeyFile != "" {
		var err error
		pemBytes, err = os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
	}
	if len(pemBytes) > 0 {
		key, err := parsePrivateKey(pemBytes)
		if err != nil {
			return nil, err
		}
		c.privateKey = key
	}

	return c, nil
}

// SetBreaker attaches a circuit breaker to all outgoing GitHub calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// prFile mirrors the GitHub pulls/files response item.
type prFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch"`
}

// ListChangedFiles returns the files changed by a pull request, paging
// through the API up to maxFilePages pages.
func (c *Client) ListChangedFiles(ctx context.Context, installationID int64, repo string, prNumber int) ([]diff.File, error) {
	var files []diff.File
	for page := 1; page <= maxFilePages; page++ {
		path := fmt.Sprintf("/repos/%s/pulls/%d/files?per_page=%d&page=%d",
			repo, prNumber, filesPerPage, page)

		body, _, err := c.get(ctx, installationID, path, "")
		if err != nil {
			return nil, fmt.Errorf("list changed files %s#%d: %w", repo, prNumber, err)
		}

		var batch []prFile
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal changed files: %w", err)
		}

		for _, f := range batch {
			if f.Status == "removed" {
				continue
			}
			files = append(files, diff.File{
				Path:      f.Filename,
				Kind:      diff.DetectKind(f.Filename),
				Patch:     f.Patch,
				Additions: f.Additions,
				Deletions: f.Deletions,
			})
		}
		if len(batch) < filesPerPage {
			break
		}
	}
	return files, nil
}

// reviewEvent maps a verdict to the GitHub review event string.
func reviewEvent(v review.Verdict) string {
	switch v {
	case review.VerdictApprove:
		return "APPROVE"
	case review.VerdictRequestChanges:
		return "REQUEST_CHANGES"
	default:
		return "COMMENT"
	}
}

// PostVerdict publishes the review verdict and summary on the pull request.
func (c *Client) PostVerdict(ctx context.Context, installationID int64, repo string, prNumber int, verdict review.Verdict, body string) error {
	payload, err := json.Marshal(map[string]string{
		"event": reviewEvent(verdict),
		"body":  body,
	})
	if err != nil {
		return fmt.Errorf("marshal review payload: %w", err)
	}

	path := fmt.Sprintf("/repos/%s/pulls/%d/reviews", repo, prNumber)
	if _, err := c.post(ctx, installationID, path, payload); err != nil {
		return fmt.Errorf("post verdict %s#%d: %w", repo, prNumber, err)
	}
	return nil
}

// FetchGuide retrieves the repository's review guide at the given ref.
// A missing guide returns nil content without error.
func (c *Client) FetchGuide(ctx context.Context, installationID int64, repo, ref string) ([]byte, error) {
	path := fmt.Sprintf("/repos/%s/contents/%s", repo, guide.FileName)
	if ref != "" {
		path += "?ref=" + ref
	}

	body, status, err := c.get(ctx, installationID, path, "application/vnd.github.raw+json")
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch guide %s: %w", repo, err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, installationID int64, path, accept string) ([]byte, int, error) {
	return c.doRequest(ctx, installationID, http.MethodGet, path, nil, accept)
}

func (c *Client) post(ctx context.Context, installationID int64, path string, body []byte) ([]byte, error) {
	data, _, err := c.doRequest(ctx, installationID, http.MethodPost, path, body, "")
	return data, err
}

func (c *Client) doRequest(ctx context.Context, installationID int64, method, path string, body []byte, accept string) ([]byte, int, error) {
	token, err := c.installationToken(ctx, installationID)
	if err != nil {
		return nil, 0, err
	}

	var result []byte
	var status int
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.apiBaseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if accept == "" {
			accept = "application/vnd.github+json"
		}
		req.Header.Set("Accept", accept)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		status = resp.StatusCode
		if resp.StatusCode >= 400 {
			return fmt.Errorf("github API error %d: %s", resp.StatusCode, string(data))
		}
		result = data
		return nil
	}

	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	return result, status, err
}
