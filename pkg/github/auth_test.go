package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return key, pemBytes
}

func TestValidateAppID(t *testing.T) {
	tests := []struct {
		name    string
		appID   string
		wantErr bool
	}{
		{"single digit", "1", false},
		{"typical", "123456", false},
		{"max valid", "999999999", false},
		{"empty", "", true},
		{"non-numeric", "abc", true},
		{"too large", "9999999999", true},
		{"negative", "-1", true},
		{"zero", "0", true},
		{"with spaces", "123 456", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAppID(tt.appID)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAppID(%q) error = %v, wantErr %v", tt.appID, err, tt.wantErr)
			}
		})
	}
}

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"empty token", "", true},
		{"too short token", "abc", true},
		{"valid ghp_ prefix token", "ghp_" + strings.Repeat("a", 36), false},
		{"valid ghs_ prefix token", "ghs_" + strings.Repeat("d", 36), false},
		{"valid fine-grained token", "github_pat_" + strings.Repeat("x", 60), false},
		{"valid classic token", strings.Repeat("a", 40), false},
		{"valid classic token with numbers", strings.Repeat("1", 40), false},
		{"invalid classic token with uppercase", strings.Repeat("A", 40), true},
		{"invalid classic token with invalid char", strings.Repeat("g", 40), true},
		{"no valid prefix and wrong length", "xyz_" + strings.Repeat("a", 40), true},
		{"too long", "ghp_" + strings.Repeat("a", 120), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateToken(tt.token)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateJWT(t *testing.T) {
	key, pemBytes := testKey(t)

	signed, err := generateJWT("4242", pemBytes)
	if err != nil {
		t.Fatalf("generateJWT: %v", err)
	}

	parsed, err := jwt.Parse(signed, func(tok *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		t.Fatalf("parse JWT: %v", err)
	}
	iss, err := parsed.Claims.GetIssuer()
	if err != nil || iss != "4242" {
		t.Errorf("issuer = %q, %v", iss, err)
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(exp.Time) > jwtLifetime {
		t.Errorf("JWT expires too late: %v", exp.Time)
	}
}

func TestGenerateJWT_BadKey(t *testing.T) {
	if _, err := generateJWT("1", []byte("not pem")); err == nil {
		t.Error("expected error for non-PEM key")
	}
}

func TestLoadPrivateKey(t *testing.T) {
	_, pemBytes := testKey(t)

	if _, err := loadPrivateKey(pemBytes, ""); err != nil {
		t.Errorf("content: unexpected error %v", err)
	}
	if _, err := loadPrivateKey([]byte("garbage"), ""); err == nil {
		t.Error("expected error for non-PEM content")
	}
	if _, err := loadPrivateKey(nil, ""); err == nil {
		t.Error("expected error with neither content nor path")
	}
}

func TestReadPrivateKeyFile(t *testing.T) {
	_, pemBytes := testKey(t)
	dir := t.TempDir()

	secure := filepath.Join(dir, "secure.pem")
	if err := os.WriteFile(secure, pemBytes, filePermOwnerRW); err != nil {
		t.Fatal(err)
	}
	insecure := filepath.Join(dir, "insecure.pem")
	if err := os.WriteFile(insecure, pemBytes, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := readPrivateKeyFile(secure); err != nil {
		t.Errorf("secure file: unexpected error %v", err)
	}
	if _, err := readPrivateKeyFile(insecure); err == nil {
		t.Error("expected error for 0644 key file")
	}
	if _, err := readPrivateKeyFile("relative.pem"); err == nil {
		t.Error("expected error for relative path")
	}
	if _, err := readPrivateKeyFile(dir); err == nil {
		t.Error("expected error for directory")
	}
}

func TestResolveAppCredentials(t *testing.T) {
	t.Setenv("GITHUB_APP_ID", "")
	t.Setenv("GITHUB_APP_KEY", "")
	t.Setenv("GITHUB_APP_KEY_PATH", "")

	if _, err := resolveAppCredentials("", ""); err == nil {
		t.Error("expected error without app ID")
	}
	if _, err := resolveAppCredentials("1", ""); err == nil {
		t.Error("expected error without key")
	}

	t.Setenv("GITHUB_APP_ID", "77")
	t.Setenv("GITHUB_APP_KEY", "key-content")
	creds, err := resolveAppCredentials("", "")
	if err != nil {
		t.Fatal(err)
	}
	if creds.appID != "77" || string(creds.privateKeyContent) != "key-content" || creds.keyPath != "" {
		t.Errorf("unexpected credentials %+v", creds)
	}

	creds, err = resolveAppCredentials("", "/keys/app.pem")
	if err != nil {
		t.Fatal(err)
	}
	if creds.keyPath != "/keys/app.pem" || len(creds.privateKeyContent) != 0 {
		t.Errorf("explicit key path should win, got %+v", creds)
	}
}

func TestRefreshJWTIfNeeded(t *testing.T) {
	_, pemBytes := testKey(t)

	c := &Client{isAppAuth: false}
	if err := c.refreshJWTIfNeeded(); err != nil {
		t.Errorf("non-app auth should be a no-op, got %v", err)
	}

	c = &Client{isAppAuth: true, appID: "1", token: "old", tokenExpiry: time.Now().Add(time.Hour), privateKeyContent: pemBytes}
	if err := c.refreshJWTIfNeeded(); err != nil || c.token != "old" {
		t.Errorf("fresh JWT should not be refreshed: token=%q err=%v", c.token, err)
	}

	c.tokenExpiry = time.Now().Add(-time.Second)
	if err := c.refreshJWTIfNeeded(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if c.token == "old" || !c.tokenExpiry.After(time.Now()) {
		t.Error("expected a new JWT with a future expiry")
	}
}

func TestAppAuth_InstallationToken(t *testing.T) {
	_, pemBytes := testKey(t)
	t.Setenv("GITHUB_APP_KEY", string(pemBytes))
	t.Setenv("GITHUB_APP_KEY_PATH", "")

	var tokenRequests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/installation", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ey") {
			t.Errorf("installation lookup should use the JWT, got %q", r.Header.Get("Authorization"))
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"id": 7})
	})
	mux.HandleFunc("POST /app/installations/7/access_tokens", func(w http.ResponseWriter, _ *http.Request) {
		tokenRequests.Add(1)
		writeJSON(t, w, http.StatusCreated, map[string]any{
			"token":      "ghs_installation",
			"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	})
	mux.HandleFunc("POST /repos/acme/widgets/issues/3/labels", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer ghs_installation" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(t, w, http.StatusOK, []any{})
	})
	c := newTestClient(t, mux)
	if err := c.setupAppAuth("12345", ""); err != nil {
		t.Fatalf("setupAppAuth: %v", err)
	}

	ctx := context.Background()
	for range 2 {
		if err := c.AddLabel(ctx, 3, "copilot"); err != nil {
			t.Fatalf("AddLabel: %v", err)
		}
	}
	if n := tokenRequests.Load(); n != 1 {
		t.Errorf("installation token should be cached, got %d requests", n)
	}
	if tok, err := c.Token(ctx); err != nil || tok != "ghs_installation" {
		t.Errorf("Token() = %q, %v", tok, err)
	}
}

func TestAppAuth_NotInstalled(t *testing.T) {
	_, pemBytes := testKey(t)
	t.Setenv("GITHUB_APP_KEY", string(pemBytes))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/installation", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})
	c := newTestClient(t, mux)
	if err := c.setupAppAuth("12345", ""); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Token(context.Background()); err == nil || !strings.Contains(err.Error(), "is the app installed") {
		t.Errorf("expected installation error, got %v", err)
	}
}
