package github

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/domain/review"
)

// memCache is an in-memory cache.Cache for tests.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// fakeGitHub is a minimal GitHub API double tracking token mints.
type fakeGitHub struct {
	t          *testing.T
	mints      int
	tokenExp   time.Time
	filePages  map[int][]prFile
	lastReview map[string]string
}

func (f *fakeGitHub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /app/installations/42/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ey") {
			f.t.Errorf("token mint missing app JWT, got %q", r.Header.Get("Authorization"))
		}
		f.mints++
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(installationToken{
			Token:     fmt.Sprintf("ghs_test%d", f.mints),
			ExpiresAt: f.tokenExp,
		})
	})
	mux.HandleFunc("GET /repos/acme/widgets/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
		page := 1
		fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)
		_ = json.NewEncoder(w).Encode(f.filePages[page])
	})
	mux.HandleFunc("POST /repos/acme/widgets/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastReview = body
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("GET /repos/acme/widgets/contents/GAVEL.md", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Prefer table-driven tests.\n"))
	})
	mux.HandleFunc("GET /repos/acme/bare/contents/GAVEL.md", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return mux
}

func newTestClient(t *testing.T, srvURL string, exp time.Time) (*Client, *time.Time) {
	t.Helper()
	key := generateKey(t)
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	c, err := NewClient(config.GitHub{
		AppID:      1234,
		PrivateKey: string(pemBytes),
		APIBaseURL: srvURL,
	}, newMemCache())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	clock := exp.Add(-time.Hour)
	c.now = func() time.Time { return clock }
	return c, &clock
}

func TestInstallationTokenCaching(t *testing.T) {
	exp := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	fake := &fakeGitHub{t: t, tokenExp: exp}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, clock := newTestClient(t, srv.URL, exp)
	ctx := context.Background()

	tok, err := c.installationToken(ctx, 42)
	if err != nil {
		t.Fatalf("first token: %v", err)
	}
	if tok != "ghs_test1" || fake.mints != 1 {
		t.Fatalf("tok = %q, mints = %d", tok, fake.mints)
	}

	// 301 seconds of life left: still outside the 5-minute margin, reuse.
	*clock = exp.Add(-301 * time.Second)
	if tok, _ = c.installationToken(ctx, 42); tok != "ghs_test1" || fake.mints != 1 {
		t.Fatalf("at 301s: tok = %q, mints = %d, want cached", tok, fake.mints)
	}

	// 299 seconds left crosses the margin: remint.
	*clock = exp.Add(-299 * time.Second)
	fake.tokenExp = exp.Add(time.Hour)
	if tok, _ = c.installationToken(ctx, 42); tok != "ghs_test2" || fake.mints != 2 {
		t.Fatalf("at 299s: tok = %q, mints = %d, want fresh", tok, fake.mints)
	}
}

func TestListChangedFilesPaging(t *testing.T) {
	exp := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)

	fullPage := make([]prFile, filesPerPage)
	for i := range fullPage {
		fullPage[i] = prFile{Filename: fmt.Sprintf("pkg/file%d.go", i), Status: "modified", Additions: 1}
	}
	fake := &fakeGitHub{t: t, tokenExp: exp, filePages: map[int][]prFile{
		1: fullPage,
		2: {
			{Filename: "main.go", Status: "modified", Additions: 3, Deletions: 1, Patch: "@@ -1 +1 @@"},
			{Filename: "gone.go", Status: "removed", Deletions: 10},
		},
	}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, exp)
	files, err := c.ListChangedFiles(context.Background(), 42, "acme/widgets", 7)
	if err != nil {
		t.Fatalf("ListChangedFiles: %v", err)
	}

	// Second page has 2 entries, one removed: 100 + 1 survive.
	if len(files) != filesPerPage+1 {
		t.Fatalf("len(files) = %d, want %d", len(files), filesPerPage+1)
	}
	last := files[len(files)-1]
	if last.Path != "main.go" || last.Additions != 3 || last.Patch != "@@ -1 +1 @@" {
		t.Fatalf("last file = %+v", last)
	}
}

func TestPostVerdict(t *testing.T) {
	exp := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	fake := &fakeGitHub{t: t, tokenExp: exp}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, exp)
	err := c.PostVerdict(context.Background(), 42, "acme/widgets", 7, review.VerdictRequestChanges, "## Review")
	if err != nil {
		t.Fatalf("PostVerdict: %v", err)
	}
	if fake.lastReview["event"] != "REQUEST_CHANGES" || fake.lastReview["body"] != "## Review" {
		t.Fatalf("posted review = %v", fake.lastReview)
	}
}

func TestFetchGuide(t *testing.T) {
	exp := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)
	fake := &fakeGitHub{t: t, tokenExp: exp}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, exp)

	got, err := c.FetchGuide(context.Background(), 42, "acme/widgets", "abc1234")
	if err != nil {
		t.Fatalf("FetchGuide: %v", err)
	}
	if string(got) != "Prefer table-driven tests.\n" {
		t.Fatalf("guide = %q", got)
	}

	// Missing guide is not an error.
	got, err = c.FetchGuide(context.Background(), 42, "acme/bare", "abc1234")
	if err != nil || got != nil {
		t.Fatalf("missing guide: got %q, err %v", got, err)
	}
}
