// Package main implements a bot that keeps one repository's issues routed to coding
// agents and merges pull requests the guardian approves.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.opentelemetry.io/otel"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/config"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/github"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/history"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/telemetry"
)

var (
	configPath = flag.String("config", "", "Path to the YAML config file (default: "+config.DefaultFile+" if present)")
	repository = flag.String("repo", "", "Repository as owner/repo (overrides config)")
	loopDelay  = flag.Duration("loop-delay", 0, "Delay between polling cycles (default from config: 5m)")
	dryRun     = flag.Bool("dry-run", false, "Evaluate and route without writing to GitHub")
	events     = flag.Bool("events", false, "Subscribe to the sprinkler event stream for immediate runs")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Bot that dispatches issues to coding agents and auto-merges approved pull requests.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  %-22s - GitHub token\n", config.EnvToken)
		fmt.Fprintf(os.Stderr, "  %-22s - GitHub App ID\n", config.EnvAppID)
		fmt.Fprintf(os.Stderr, "  %-22s - Path to GitHub App private key file\n", config.EnvAppKeyPath)
		fmt.Fprintf(os.Stderr, "  %-22s - Repository as owner/repo\n", config.EnvRepository)
		fmt.Fprintf(os.Stderr, "  %-22s - SQLite history path\n", config.EnvHistoryPath)
		fmt.Fprintf(os.Stderr, "  %-22s - HTTP server port (default from config: 8080)\n", "PORT")
	}
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Bot failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig applies flags and PORT over the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if *repository != "" {
		cfg.Repository = *repository
	}
	if *loopDelay > 0 {
		cfg.Bot.LoopDelay = *loopDelay
	}
	if *dryRun {
		cfg.Bot.DryRun = true
	}
	if *events {
		cfg.Bot.Events = true
	}
	if port := os.Getenv("PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Bot.Port = n
	}
	if cfg.Repository == "" {
		return nil, fmt.Errorf("no repository configured: pass --repo owner/repo or set %s", config.EnvRepository)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	client, err := github.New(ctx, cfg.GitHubClient())
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}
	defer client.Close()

	provider := telemetry.NewProvider()
	defer func() {
		if err := provider.Shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Failed to shut down meter provider", "error", err)
		}
	}()
	otel.SetMeterProvider(provider)
	recorder, err := telemetry.New(provider)
	if err != nil {
		return err
	}

	var ledger Ledger
	if cfg.History.Path != "" {
		store, err := history.Open(ctx, cfg.History.Path)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer func() { _ = store.Close() }()
		ledger = store
	}

	bot, err := newBot(client, cfg, ledger, recorder)
	if err != nil {
		return err
	}
	bot.provider = provider

	if cfg.Bot.Events {
		org := cfg.Bot.Organization
		if org == "" {
			org = cfg.Owner()
		}
		bot.monitor = newSprinklerMonitor(bot, bot.metrics, org, client.Repository(), client.Token)
		bot.monitor.start(ctx)
		defer bot.monitor.stop()
	}
	go bot.serve(ctx, cfg.Bot.Port)

	slog.Info("Service started",
		"repo", client.Repository(),
		"loop_delay", cfg.Bot.LoopDelay,
		"dry_run", cfg.Bot.DryRun,
		"events", cfg.Bot.Events)
	bot.run(ctx, cfg.Bot.LoopDelay)
	return nil
}
