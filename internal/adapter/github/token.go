package github

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// tokenMargin is how long before expiry a cached installation token is
// considered stale. GitHub tokens live one hour; reminting five minutes
// early keeps long orchestrations from racing the expiry.
const tokenMargin = 5 * time.Minute

// jwtHeader is the fixed base64url-encoded header for RS256.
var jwtHeader = base64URLEncode([]byte(`{"alg":"RS256","typ":"JWT"}`))

type installationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// installationToken returns a token for the given installation, serving
// from cache while the cached token has more than tokenMargin of life
// left, otherwise minting a fresh one.
func (c *Client) installationToken(ctx context.Context, installationID int64) (string, error) {
	key := fmt.Sprintf("ghtoken:%d", installationID)

	if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		var cached installationToken
		if json.Unmarshal(data, &cached) == nil && c.now().Before(cached.ExpiresAt.Add(-tokenMargin)) {
			return cached.Token, nil
		}
	}

	tok, err := c.mintInstallationToken(ctx, installationID)
	if err != nil {
		return "", err
	}

	if data, err := json.Marshal(tok); err == nil {
		ttl := tok.ExpiresAt.Sub(c.now())
		if ttl > 0 {
			_ = c.cache.Set(ctx, key, data, ttl)
		}
	}
	return tok.Token, nil
}

// mintInstallationToken exchanges an app JWT for an installation access token.
func (c *Client) mintInstallationToken(ctx context.Context, installationID int64) (*installationToken, error) {
	appJWT, err := c.appJWT()
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", c.apiBaseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(nil))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mint installation token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("github token API error %d: %s", resp.StatusCode, string(body))
	}

	var tok installationToken
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("unmarshal token response: %w", err)
	}
	return &tok, nil
}

// appJWT signs a short-lived RS256 JWT identifying the GitHub App.
// iat is backdated 60 seconds to absorb clock skew against GitHub.
func (c *Client) appJWT() (string, error) {
	if c.privateKey == nil {
		return "", fmt.Errorf("no app private key configured")
	}

	now := c.now()
	claims, err := json.Marshal(map[string]any{
		"iat": now.Add(-60 * time.Second).Unix(),
		"exp": now.Add(600 * time.Second).Unix(),
		"iss": c.appID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal jwt claims: %w", err)
	}

	signingInput := jwtHeader + "." + base64URLEncode(claims)
	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, c.privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}

	return signingInput + "." + base64URLEncode(sig), nil
}

func base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}
