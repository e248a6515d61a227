// Package config loads orchestrator settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/dispatcher"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/github"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/guardian"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvToken       = "GITHUB_TOKEN"
	EnvRepository  = "ORCHESTRATOR_REPO"
	EnvAppID       = "GITHUB_APP_ID"
	EnvAppKeyPath  = "GITHUB_APP_KEY_PATH"
	EnvHistoryPath = "ORCHESTRATOR_HISTORY"
)

// DefaultFile is the config file looked up in the working directory when none is given.
const DefaultFile = ".orchestrator.yaml"

// Config is the full orchestrator configuration.
type Config struct {
	Repository string           `yaml:"repository"` // owner/repo
	Guardian   GuardianConfig   `yaml:"guardian"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	GitHub     GitHubConfig     `yaml:"github"`
	History    HistoryConfig    `yaml:"history"`
	Bot        BotConfig        `yaml:"bot"`
}

// GuardianConfig configures auto-merge decisions.
type GuardianConfig struct {
	EscalationLabel string   `yaml:"escalation_label"`
	MergeMethod     string   `yaml:"merge_method"`
	LabelFilter     string   `yaml:"label_filter"` // only PRs carrying these labels are swept by the bot
	BlockerLabels   []string `yaml:"blocker_labels"`
	Threshold       int      `yaml:"threshold"`
}

// DispatcherConfig configures issue routing.
type DispatcherConfig struct {
	Strategy          string `yaml:"strategy"`
	LabelFilter       string `yaml:"label_filter"`
	MaxIssues         int    `yaml:"max_issues"`
	HighRiskThreshold int    `yaml:"high_risk_threshold"`
}

// GitHubConfig configures the API client.
type GitHubConfig struct {
	Token       string        `yaml:"-"` // environment only
	AppKeyPath  string        `yaml:"app_key_path"`
	AppID       string        `yaml:"app_id"`
	BaseURL     string        `yaml:"base_url"`
	CacheDir    string        `yaml:"cache_dir"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	UseAppAuth  bool          `yaml:"use_app_auth"`
}

// HistoryConfig configures the run ledger.
type HistoryConfig struct {
	Path string `yaml:"path"` // empty disables history
}

// BotConfig configures the long-running bot.
type BotConfig struct {
	Organization string        `yaml:"organization"` // for the event stream
	LoopDelay    time.Duration `yaml:"loop_delay"`
	Concurrency  int           `yaml:"concurrency"`
	Port         int           `yaml:"port"`
	DryRun       bool          `yaml:"dry_run"`
	Events       bool          `yaml:"events"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Guardian: GuardianConfig{
			Threshold:       guardian.DefaultThreshold,
			BlockerLabels:   []string{"high-stakes", "do-not-merge"},
			EscalationLabel: guardian.DefaultEscalationLabel,
			MergeMethod:     guardian.DefaultMergeMethod,
		},
		Dispatcher: DispatcherConfig{
			Strategy:          dispatcher.RoundRobin.String(),
			MaxIssues:         5,
			LabelFilter:       "ai-agent",
			HighRiskThreshold: dispatcher.DefaultHighRiskThreshold,
		},
		GitHub: GitHubConfig{
			HTTPTimeout: 30 * time.Second,
			CacheTTL:    10 * time.Minute,
		},
		Bot: BotConfig{
			LoopDelay:   5 * time.Minute,
			Concurrency: 4,
			Port:        8080,
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path tries DefaultFile and silently falls back to defaults if it does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides settings from the environment. getenv is os.Getenv outside tests.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvToken); v != "" {
		c.GitHub.Token = v
	}
	if v := getenv(EnvRepository); v != "" {
		c.Repository = v
	}
	if v := getenv(EnvAppID); v != "" {
		c.GitHub.AppID = v
	}
	if v := getenv(EnvAppKeyPath); v != "" {
		c.GitHub.AppKeyPath = v
	}
	if v := getenv(EnvHistoryPath); v != "" {
		c.History.Path = v
	}
}

// Owner returns the owner part of Repository, or "" when Repository is malformed.
func (c *Config) Owner() string {
	owner, _, _ := c.split()
	return owner
}

// Repo returns the repository name part of Repository.
func (c *Config) Repo() string {
	_, repo, _ := c.split()
	return repo
}

func (c *Config) split() (owner, repo string, ok bool) {
	owner, repo, ok = strings.Cut(c.Repository, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", false
	}
	return owner, repo, true
}

// Validate checks the configuration for values the engines cannot use.
func (c *Config) Validate() error {
	var errs []error
	if c.Repository != "" {
		if _, _, ok := c.split(); !ok {
			errs = append(errs, fmt.Errorf("repository %q must be owner/repo", c.Repository))
		}
	}
	if c.Guardian.Threshold < 0 || c.Guardian.Threshold > 100 {
		errs = append(errs, fmt.Errorf("guardian.threshold %d out of range [0,100]", c.Guardian.Threshold))
	}
	switch c.Guardian.MergeMethod {
	case "merge", "squash", "rebase":
	default:
		errs = append(errs, fmt.Errorf("guardian.merge_method %q must be merge, squash or rebase", c.Guardian.MergeMethod))
	}
	if _, err := dispatcher.ParseStrategy(c.Dispatcher.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher.strategy: %w", err))
	}
	if c.Dispatcher.MaxIssues < 0 {
		errs = append(errs, fmt.Errorf("dispatcher.max_issues %d must not be negative", c.Dispatcher.MaxIssues))
	}
	if c.Dispatcher.HighRiskThreshold < 1 || c.Dispatcher.HighRiskThreshold > 100 {
		errs = append(errs, fmt.Errorf("dispatcher.high_risk_threshold %d out of range [1,100]", c.Dispatcher.HighRiskThreshold))
	}
	if c.GitHub.CacheDir != "" && !filepath.IsAbs(c.GitHub.CacheDir) {
		errs = append(errs, fmt.Errorf("github.cache_dir %q must be absolute", c.GitHub.CacheDir))
	}
	if c.Bot.LoopDelay < time.Second {
		errs = append(errs, fmt.Errorf("bot.loop_delay %v is too short", c.Bot.LoopDelay))
	}
	return errors.Join(errs...)
}

// GitHubClient returns the API client settings for the configured repository.
func (c *Config) GitHubClient() github.Config {
	return github.Config{
		BaseURL:       c.GitHub.BaseURL,
		Owner:         c.Owner(),
		Repo:          c.Repo(),
		Token:         c.GitHub.Token,
		AppID:         c.GitHub.AppID,
		AppKeyPath:    c.GitHub.AppKeyPath,
		CacheDir:      c.GitHub.CacheDir,
		BlockerLabels: c.Guardian.BlockerLabels,
		HTTPTimeout:   c.GitHub.HTTPTimeout,
		CacheTTL:      c.GitHub.CacheTTL,
		UseAppAuth:    c.GitHub.UseAppAuth,
	}
}

// Runner returns the guardian runner settings. metrics may be nil.
func (c *Config) Runner(metrics guardian.Metrics, dryRun bool) guardian.RunnerConfig {
	return guardian.RunnerConfig{
		Guardian:        guardian.New(c.Guardian.Threshold),
		Metrics:         metrics,
		MergeMethod:     c.Guardian.MergeMethod,
		EscalationLabel: c.Guardian.EscalationLabel,
		Concurrency:     c.Bot.Concurrency,
		DryRun:          dryRun,
	}
}

// Engine returns a dispatch engine with the configured high-risk threshold.
func (c *Config) Engine() *dispatcher.Engine {
	return dispatcher.NewEngine(dispatcher.EngineConfig{HighRiskThreshold: c.Dispatcher.HighRiskThreshold})
}
