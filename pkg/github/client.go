// Package github implements the source repository port over the GitHub REST API.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/cache"
)

// DefaultBaseURL is the public GitHub REST endpoint.
const DefaultBaseURL = "https://api.github.com"

// Retry constants.
const (
	maxRetryAttempts  = 25              // Attempts per request before giving up
	initialRetryDelay = 1 * time.Second // First backoff delay
	maxRetryDelay     = 2 * time.Minute // Cap on backoff delay
)

const defaultHTTPTimeout = 30 * time.Second

// Client talks to one GitHub repository.
type Client struct {
	tokenExpiry        time.Time
	installationExpiry time.Time
	httpClient         HTTPDoer
	checks             *cache.DiskCache[CheckSummary]
	baseURL            string
	owner              string
	repo               string
	token              string // personal token, or the app JWT
	installationToken  string
	appID              string
	privateKeyPath     string
	blockerLabels      []string
	privateKeyContent  []byte
	retryAttempts      uint
	retryDelay         time.Duration
	tokenMutex         sync.RWMutex
	isAppAuth          bool
}

// Config holds configuration for creating a new GitHub client.
type Config struct {
	HTTPClient    HTTPDoer // nil uses an http.Client with HTTPTimeout
	BaseURL       string   // empty uses DefaultBaseURL
	Owner         string
	Repo          string
	Token         string // personal access token; empty asks the gh CLI
	AppID         string
	AppKeyPath    string
	CacheDir      string // directory for the check-result disk cache (empty = memory-only)
	BlockerLabels []string
	HTTPTimeout   time.Duration
	CacheTTL      time.Duration
	RetryAttempts uint          // zero uses the default
	RetryDelay    time.Duration // zero uses the default
	UseAppAuth    bool
}

// New creates a GitHub client using a personal token or GitHub App authentication.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, errors.New("repository owner and name are required")
	}

	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.UseAppAuth {
		if err := c.setupAppAuth(cfg.AppID, cfg.AppKeyPath); err != nil {
			return nil, err
		}
		return c, nil
	}

	token, err := resolveToken(ctx, cfg.Token)
	if err != nil {
		return nil, err
	}
	c.token = token
	slog.Info("Using personal access token authentication", "component", "auth")
	return c, nil
}

// newClient builds a client without credentials.
func newClient(cfg Config) (*Client, error) {
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = defaultHTTPTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = cache.TTLCheckResults
	}
	checks, err := cache.NewDiskCache[CheckSummary](ttl, cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("create check cache: %w", err)
	}

	c := &Client{
		httpClient:    httpClient,
		checks:        checks,
		baseURL:       baseURL,
		owner:         cfg.Owner,
		repo:          cfg.Repo,
		blockerLabels: cfg.BlockerLabels,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
	}
	if c.retryAttempts == 0 {
		c.retryAttempts = maxRetryAttempts
	}
	if c.retryDelay == 0 {
		c.retryDelay = initialRetryDelay
	}
	return c, nil
}

// Repository returns "owner/repo".
func (c *Client) Repository() string {
	return c.owner + "/" + c.repo
}

// Token returns the token requests are authorized with (e.g., for sprinkler).
// With App authentication this is the installation token.
func (c *Client) Token(ctx context.Context) (string, error) {
	if c.isAppAuth {
		return c.getInstallationToken(ctx)
	}
	c.tokenMutex.RLock()
	defer c.tokenMutex.RUnlock()
	return c.token, nil
}

// Close releases background resources.
func (c *Client) Close() {
	c.checks.Close()
}

func (c *Client) repoURL(format string, args ...any) string {
	return fmt.Sprintf("%s/repos/%s/%s", c.baseURL, url.PathEscape(c.owner), url.PathEscape(c.repo)) +
		fmt.Sprintf(format, args...)
}

// drainAndCloseBody drains and closes an HTTP response body to prevent resource leaks.
func drainAndCloseBody(body io.ReadCloser) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		slog.Warn("Failed to drain response body", "error", err)
	}
	if err := body.Close(); err != nil {
		slog.Warn("Failed to close response body", "error", err)
	}
}

// doRequest makes an HTTP request to the GitHub API with retry logic.
// Rate limits and server errors are retried. The caller owns the response body.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body any) (*http.Response, error) {
	authHeader, err := c.authorization(ctx)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	sanitizedURL := sanitizeURLForLogging(apiURL)
	slog.Debug("HTTP request", "component", "http", "method", method, "url", sanitizedURL)

	var resp *http.Response
	err = c.retryWithBackoff(ctx, method+" "+sanitizedURL, func() error {
		var bodyReader io.Reader = http.NoBody
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", authHeader)
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		localResp, err := c.httpClient.Do(req) //nolint:bodyclose // body is closed below or passed to caller
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if localResp.StatusCode == http.StatusTooManyRequests {
			drainAndCloseBody(localResp.Body)
			slog.Warn("Rate limited - will retry with backoff", "method", method, "url", sanitizedURL, "status", localResp.StatusCode)
			return fmt.Errorf("http %d: rate limited", localResp.StatusCode)
		}
		if localResp.StatusCode >= http.StatusInternalServerError && localResp.StatusCode < 600 {
			drainAndCloseBody(localResp.Body)
			slog.Warn("Server error - will retry with backoff", "method", method, "url", sanitizedURL, "status", localResp.StatusCode)
			return fmt.Errorf("http %d: server error", localResp.StatusCode)
		}

		resp = localResp
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("HTTP response", "component", "http", "method", method, "url", sanitizedURL, "status", resp.StatusCode)
	return resp, nil
}

// getJSON GETs apiURL and decodes a 200 response into v.
func (c *Client) getJSON(ctx context.Context, apiURL string, v any) error {
	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil) //nolint:bodyclose // closed by drainAndCloseBody
	if err != nil {
		return err
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// send issues a write request and accepts any of the listed status codes.
func (c *Client) send(ctx context.Context, method, apiURL string, body any, accept ...int) error {
	resp, err := c.doRequest(ctx, method, apiURL, body) //nolint:bodyclose // closed by drainAndCloseBody
	if err != nil {
		return err
	}
	defer drainAndCloseBody(resp.Body)

	for _, code := range accept {
		if resp.StatusCode == code {
			return nil
		}
	}
	return statusError(resp)
}

func statusError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("status %d (could not read body: %w)", resp.StatusCode, err)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// retryWithBackoff executes fn with exponential backoff and jitter.
func (c *Client) retryWithBackoff(ctx context.Context, operation string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(c.retryAttempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(c.retryDelay/4),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("Retry attempt", "component", "retry", "operation", operation, "attempt", n+1, "max_attempts", c.retryAttempts, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
	)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "rate limited") ||
		strings.Contains(s, "server error") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "temporary failure") ||
		strings.Contains(s, "EOF")
}

// sanitizeURLForLogging strips query parameters that may carry credentials.
func sanitizeURLForLogging(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[invalid-url]"
	}
	q := u.Query()
	for _, key := range []string{"access_token", "token", "client_secret"} {
		if q.Has(key) {
			q.Set(key, "[REDACTED]")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
