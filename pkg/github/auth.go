package github

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication constants.
const (
	maxTokenLength     = 100 // Maximum expected length for GitHub tokens
	minTokenLength     = 40  // Minimum expected length for GitHub tokens
	classicTokenLength = 40  // Length of classic GitHub tokens
	maxAppID           = 999999999
	filePermReadOnly   = 0o400 // Read-only key file
	filePermOwnerRW    = 0o600 // Owner read-write key file

	jwtLifetime        = 10 * time.Minute // GitHub rejects App JWTs valid for longer
	jwtRefreshAfter    = 9 * time.Minute  // Mint a new JWT before the old one lapses
	installationMargin = 5 * time.Minute  // Refresh installation tokens this long before expiry
)

// generateJWT generates a JWT token for GitHub App authentication.
func generateJWT(appID string, privateKey []byte) (string, error) {
	block, _ := pem.Decode(privateKey)
	if block == nil {
		return "", errors.New("failed to parse PEM block containing the private key")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return "", fmt.Errorf("failed to parse private key: %w", err)
		}
		var ok bool
		key, ok = parsed.(*rsa.PrivateKey)
		if !ok {
			return "", errors.New("private key is not RSA")
		}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iat": now.Add(-time.Minute).Unix(), // tolerate clock drift
		"exp": now.Add(jwtLifetime).Unix(),
		"iss": appID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}

// setupAppAuth configures the client for GitHub App authentication.
func (c *Client) setupAppAuth(appID, appKeyPath string) error {
	creds, err := resolveAppCredentials(appID, appKeyPath)
	if err != nil {
		return err
	}
	if err := validateAppID(creds.appID); err != nil {
		return err
	}
	privateKey, err := loadPrivateKey(creds.privateKeyContent, creds.keyPath)
	if err != nil {
		return err
	}
	token, err := generateJWT(creds.appID, privateKey)
	if err != nil {
		return fmt.Errorf("failed to generate JWT: %w", err)
	}

	c.isAppAuth = true
	c.appID = creds.appID
	c.privateKeyPath = creds.keyPath
	c.privateKeyContent = creds.privateKeyContent
	c.token = token
	c.tokenExpiry = time.Now().Add(jwtRefreshAfter)
	slog.Info("Generated JWT for GitHub App", "component", "auth", "app_id", creds.appID)
	return nil
}

// resolveToken returns the given token, or asks the gh CLI when empty.
func resolveToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		output, err := exec.CommandContext(ctx, "gh", "auth", "token").Output()
		if err != nil {
			return "", fmt.Errorf("failed to get GitHub token: %w", err)
		}
		token = strings.TrimSpace(string(output))
	}
	if err := validateToken(token); err != nil {
		return "", err
	}
	return token, nil
}

type appCredentials struct {
	appID             string
	keyPath           string
	privateKeyContent []byte
}

// resolveAppCredentials resolves app credentials from arguments or environment variables.
// Key content in GITHUB_APP_KEY takes precedence over a key file path.
func resolveAppCredentials(appID, appKeyPath string) (*appCredentials, error) {
	if appID == "" {
		appID = os.Getenv("GITHUB_APP_ID")
	}

	var content []byte
	if appKeyPath == "" {
		if keyContent := os.Getenv("GITHUB_APP_KEY"); keyContent != "" {
			content = []byte(keyContent)
			slog.Info("Using GITHUB_APP_KEY environment variable", "component", "auth", "bytes", len(content))
		} else {
			appKeyPath = os.Getenv("GITHUB_APP_KEY_PATH")
		}
	}

	if appID == "" {
		return nil, errors.New("GitHub App ID is required: use --app-id or set GITHUB_APP_ID")
	}
	if len(content) == 0 && appKeyPath == "" {
		return nil, errors.New("GitHub App private key is required: use --app-key-path, " +
			"set GITHUB_APP_KEY (key content) or GITHUB_APP_KEY_PATH (file path)")
	}
	return &appCredentials{appID: appID, keyPath: appKeyPath, privateKeyContent: content}, nil
}

// validateAppID validates the GitHub App ID.
func validateAppID(appID string) error {
	n, err := strconv.Atoi(appID)
	if err != nil {
		return fmt.Errorf("GITHUB_APP_ID must be numeric: %w", err)
	}
	if n <= 0 || n > maxAppID {
		return errors.New("GITHUB_APP_ID out of valid range")
	}
	return nil
}

// loadPrivateKey loads the private key from content or file path.
func loadPrivateKey(content []byte, keyPath string) ([]byte, error) {
	var key []byte
	switch {
	case len(content) > 0:
		key = content
	case keyPath != "":
		var err error
		key, err = readPrivateKeyFile(keyPath)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("no private key provided (neither content nor path)")
	}

	if !bytes.Contains(key, []byte("BEGIN RSA PRIVATE KEY")) &&
		!bytes.Contains(key, []byte("BEGIN PRIVATE KEY")) {
		return nil, errors.New("private key does not appear to be a valid PEM private key")
	}
	return key, nil
}

// readPrivateKeyFile reads a private key that must be an absolute path with 0600 or 0400 permissions.
func readPrivateKeyFile(keyPath string) ([]byte, error) {
	cleanPath := filepath.Clean(keyPath)
	if !filepath.IsAbs(cleanPath) {
		return nil, errors.New("GITHUB_APP_KEY_PATH must be an absolute path")
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("cannot access private key file: %w", err)
	}
	if info.IsDir() {
		return nil, errors.New("GITHUB_APP_KEY_PATH must be a file, not a directory")
	}
	if perm := info.Mode().Perm(); perm != filePermOwnerRW && perm != filePermReadOnly {
		return nil, fmt.Errorf("private key file has insecure permissions %04o (must be 0600 or 0400)", perm)
	}
	return os.ReadFile(cleanPath)
}

// validateToken validates a GitHub personal access token.
func validateToken(token string) error {
	if token == "" {
		return errors.New("no GitHub token found")
	}
	if len(token) > maxTokenLength || len(token) < minTokenLength {
		return errors.New("invalid token length")
	}

	for _, prefix := range []string{"ghp_", "gho_", "ghu_", "ghs_", "ghr_", "github_pat_"} {
		if strings.HasPrefix(token, prefix) {
			return nil
		}
	}

	// Classic tokens are 40 lowercase hex characters.
	if len(token) != classicTokenLength {
		return errors.New("invalid token format")
	}
	for _, r := range token {
		if (r < 'a' || r > 'f') && (r < '0' || r > '9') {
			return errors.New("invalid classic token format")
		}
	}
	return nil
}

// refreshJWTIfNeeded refreshes the app JWT shortly before it expires.
func (c *Client) refreshJWTIfNeeded() error {
	if !c.isAppAuth {
		return nil
	}

	c.tokenMutex.RLock()
	fresh := time.Now().Before(c.tokenExpiry)
	c.tokenMutex.RUnlock()
	if fresh {
		return nil
	}

	c.tokenMutex.Lock()
	defer c.tokenMutex.Unlock()
	if time.Now().Before(c.tokenExpiry) {
		return nil
	}

	var key []byte
	switch {
	case len(c.privateKeyContent) > 0:
		key = c.privateKeyContent
	case c.privateKeyPath != "":
		var err error
		key, err = os.ReadFile(c.privateKeyPath)
		if err != nil {
			return fmt.Errorf("failed to read private key for refresh: %w", err)
		}
	default:
		return errors.New("no private key available for JWT refresh")
	}

	token, err := generateJWT(c.appID, key)
	if err != nil {
		return fmt.Errorf("failed to generate JWT for refresh: %w", err)
	}
	c.token = token
	c.tokenExpiry = time.Now().Add(jwtRefreshAfter)
	slog.Info("Refreshed GitHub App JWT", "component", "auth")
	return nil
}

// getInstallationToken returns a cached installation token for the configured repository,
// creating a new one when missing or close to expiry.
func (c *Client) getInstallationToken(ctx context.Context) (string, error) {
	c.tokenMutex.RLock()
	token, expiry := c.installationToken, c.installationExpiry
	c.tokenMutex.RUnlock()
	if token != "" && time.Now().Before(expiry) {
		return token, nil
	}

	if err := c.refreshJWTIfNeeded(); err != nil {
		return "", fmt.Errorf("failed to refresh JWT: %w", err)
	}

	c.tokenMutex.Lock()
	defer c.tokenMutex.Unlock()
	if c.installationToken != "" && time.Now().Before(c.installationExpiry) {
		return c.installationToken, nil
	}

	var installation struct {
		ID int64 `json:"id"`
	}
	if err := c.appRequest(ctx, http.MethodGet, c.repoURL("/installation"), http.StatusOK, &installation); err != nil {
		return "", fmt.Errorf("failed to find app installation for %s (is the app installed?): %w", c.Repository(), err)
	}

	var tokenResp struct {
		ExpiresAt time.Time `json:"expires_at"`
		Token     string    `json:"token"`
	}
	tokenURL := fmt.Sprintf("%s/app/installations/%d/access_tokens", c.baseURL, installation.ID)
	if err := c.appRequest(ctx, http.MethodPost, tokenURL, http.StatusCreated, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to create installation token: %w", err)
	}
	if tokenResp.Token == "" {
		return "", errors.New("received empty installation token")
	}

	c.installationToken = tokenResp.Token
	c.installationExpiry = tokenResp.ExpiresAt.Add(-installationMargin)
	slog.Info("Created installation access token", "component", "auth",
		"installation", installation.ID, "expires_at", tokenResp.ExpiresAt.Format(time.RFC3339))
	return tokenResp.Token, nil
}

// appRequest makes a request authorized with the app JWT. Callers hold tokenMutex.
func (c *Client) appRequest(ctx context.Context, method, apiURL string, want int, v any) error {
	req, err := http.NewRequestWithContext(ctx, method, apiURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != want {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return fmt.Errorf("status %d (could not read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// authorization returns the Authorization header value for API requests.
func (c *Client) authorization(ctx context.Context) (string, error) {
	if !c.isAppAuth {
		c.tokenMutex.RLock()
		defer c.tokenMutex.RUnlock()
		return "token " + c.token, nil
	}
	token, err := c.getInstallationToken(ctx)
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}
