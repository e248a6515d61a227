package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.yaml")
	content := `
repository: acme/widgets
guardian:
  threshold: 85
  blocker_labels: [security-review]
dispatcher:
  strategy: jules-only
  max_issues: 12
github:
  http_timeout: 45s
bot:
  loop_delay: 2m
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Owner() != "acme" || cfg.Repo() != "widgets" {
		t.Errorf("repository = %q / %q", cfg.Owner(), cfg.Repo())
	}
	if cfg.Guardian.Threshold != 85 || len(cfg.Guardian.BlockerLabels) != 1 {
		t.Errorf("guardian = %+v", cfg.Guardian)
	}
	// Unset keys keep their defaults.
	if cfg.Guardian.MergeMethod != "squash" || cfg.Dispatcher.LabelFilter != "ai-agent" {
		t.Errorf("defaults lost: %+v %+v", cfg.Guardian, cfg.Dispatcher)
	}
	if cfg.Dispatcher.Strategy != "jules-only" || cfg.Dispatcher.MaxIssues != 12 {
		t.Errorf("dispatcher = %+v", cfg.Dispatcher)
	}
	if cfg.GitHub.HTTPTimeout != 45*time.Second || cfg.Bot.LoopDelay != 2*time.Minute {
		t.Errorf("durations = %v, %v", cfg.GitHub.HTTPTimeout, cfg.Bot.LoopDelay)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestLoad_MissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Guardian.Threshold != 70 {
		t.Errorf("threshold = %d", cfg.Guardian.Threshold)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("guardian: [not, a, map"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvToken:      "ghp_x",
		EnvRepository: "octo/cat",
		EnvAppID:      "123",
	}
	cfg := Default()
	cfg.Repository = "file/value"
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.GitHub.Token != "ghp_x" || cfg.Repository != "octo/cat" || cfg.GitHub.AppID != "123" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.GitHub.AppKeyPath != "" {
		t.Errorf("unset env var overrode a value: %q", cfg.GitHub.AppKeyPath)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"bad repository", func(c *Config) { c.Repository = "noslash" }, "owner/repo"},
		{"nested repository", func(c *Config) { c.Repository = "a/b/c" }, "owner/repo"},
		{"threshold", func(c *Config) { c.Guardian.Threshold = 101 }, "guardian.threshold"},
		{"merge method", func(c *Config) { c.Guardian.MergeMethod = "yolo" }, "merge_method"},
		{"strategy", func(c *Config) { c.Dispatcher.Strategy = "bogus" }, "invalid strategy"},
		{"max issues", func(c *Config) { c.Dispatcher.MaxIssues = -1 }, "max_issues"},
		{"zero high risk threshold", func(c *Config) { c.Dispatcher.HighRiskThreshold = 0 }, "high_risk_threshold"},
		{"high risk threshold above 100", func(c *Config) { c.Dispatcher.HighRiskThreshold = 101 }, "high_risk_threshold"},
		{"relative cache", func(c *Config) { c.GitHub.CacheDir = "cache" }, "cache_dir"},
		{"loop delay", func(c *Config) { c.Bot.LoopDelay = time.Millisecond }, "loop_delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestGitHubClient(t *testing.T) {
	cfg := Default()
	cfg.Repository = "acme/widgets"
	cfg.GitHub.Token = "ghp_x"
	cfg.Guardian.BlockerLabels = []string{"hold"}

	gh := cfg.GitHubClient()
	if gh.Owner != "acme" || gh.Repo != "widgets" || gh.Token != "ghp_x" {
		t.Errorf("GitHubClient() = %+v", gh)
	}
	if len(gh.BlockerLabels) != 1 || gh.BlockerLabels[0] != "hold" {
		t.Errorf("blocker labels = %v", gh.BlockerLabels)
	}
}

func TestRunnerAndEngine(t *testing.T) {
	cfg := Default()
	cfg.Guardian.Threshold = 85
	cfg.Dispatcher.HighRiskThreshold = 40

	rc := cfg.Runner(nil, true)
	if rc.Guardian.Threshold() != 85 || !rc.DryRun || rc.MergeMethod != "squash" {
		t.Errorf("Runner() = %+v", rc)
	}
	if e := cfg.Engine(); e.HighRiskThreshold() != 40 {
		t.Errorf("Engine().HighRiskThreshold() = %d", e.HighRiskThreshold())
	}
}
