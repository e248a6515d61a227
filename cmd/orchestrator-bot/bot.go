package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/config"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/dispatcher"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/github"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/guardian"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/history"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/telemetry"
)

// Ledger persists run results. *history.Store implements it.
type Ledger interface {
	RecordAssignments(ctx context.Context, runID string, results []dispatcher.Result) error
	RecordDecision(ctx context.Context, runID string, out guardian.Outcome) error
}

// Recorder receives counter updates. *telemetry.Recorder implements it.
type Recorder interface {
	guardian.Metrics
	dispatcher.Metrics
}

// Bot runs Guardian and Dispatcher against one repository, on a timer and on events.
type Bot struct {
	repo       github.SourceRepository
	runner     *guardian.Runner
	dispatcher *dispatcher.Dispatcher
	ledger     Ledger              // nil when history is disabled
	provider   *telemetry.Provider // nil disables /_-_/metrics
	monitor    *sprinklerMonitor   // nil when events are disabled
	metrics    *MetricsCollector
	request    dispatcher.Request
	prFilter   string
	staleAfter time.Duration
	mu         sync.Mutex // serializes cycles that write to the repository
}

// newBot wires the engines to repo. ledger and recorder may be nil.
func newBot(repo github.SourceRepository, cfg *config.Config, ledger Ledger, recorder Recorder) (*Bot, error) {
	strategy, err := dispatcher.ParseStrategy(cfg.Dispatcher.Strategy)
	if err != nil {
		return nil, err
	}

	var gm guardian.Metrics
	var dm dispatcher.Metrics
	if recorder != nil {
		gm, dm = recorder, recorder
	}

	return &Bot{
		repo:       repo,
		runner:     guardian.NewRunner(repo, cfg.Runner(gm, cfg.Bot.DryRun)),
		dispatcher: dispatcher.New(repo, cfg.Engine(), dm),
		ledger:     ledger,
		metrics:    NewMetricsCollector(),
		request: dispatcher.Request{
			LabelFilter: cfg.Dispatcher.LabelFilter,
			MaxIssues:   cfg.Dispatcher.MaxIssues,
			Strategy:    strategy,
			DryRun:      cfg.Bot.DryRun,
		},
		prFilter:   cfg.Guardian.LabelFilter,
		staleAfter: 3 * cfg.Bot.LoopDelay,
	}, nil
}

// runCycle sweeps open pull requests and then dispatches open issues.
func (b *Bot) runCycle(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	errs := []error{b.sweep(ctx), b.dispatch(ctx)}
	b.metrics.RecordRunComplete()
	slog.Info("Run completed", "component", "bot", "duration", time.Since(start).Round(time.Millisecond))
	return errors.Join(errs...)
}

func (b *Bot) sweep(ctx context.Context) error {
	prs, err := b.repo.ListOpenPullRequests(ctx, b.prFilter)
	if err != nil {
		return fmt.Errorf("failed to list pull requests: %w", err)
	}
	slog.Info("Sweeping pull requests", "component", "bot", "count", len(prs), "label_filter", b.prFilter)

	outcomes, err := b.runner.ProcessAll(ctx, prs)
	b.record(ctx, history.NewRunID(), outcomes...)
	return err
}

func (b *Bot) dispatch(ctx context.Context) error {
	results, err := b.dispatcher.Dispatch(ctx, b.request)
	if err != nil {
		return fmt.Errorf("failed to dispatch issues: %w", err)
	}
	for _, r := range results {
		b.metrics.RecordAssignment(r)
	}
	if b.ledger != nil && !b.request.DryRun {
		if err := b.ledger.RecordAssignments(ctx, history.NewRunID(), results); err != nil {
			slog.Warn("Failed to record assignments", "component", "bot", "error", err)
		}
	}
	return nil
}

// dispatchNow runs one dispatch cycle on its own, for issue events.
func (b *Bot) dispatchNow(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dispatch(ctx)
}

// processPR evaluates a single pull request, for pull_request events.
// PRs that are closed or do not match the label filter are ignored.
func (b *Bot) processPR(ctx context.Context, pr int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	open, err := b.repo.ListOpenPullRequests(ctx, b.prFilter)
	if err != nil {
		return fmt.Errorf("failed to list pull requests: %w", err)
	}
	if !slices.Contains(open, pr) {
		slog.Debug("Ignoring pull request outside the label filter", "component", "bot", "pr", pr)
		return nil
	}

	out, err := b.runner.Process(ctx, pr)
	if err != nil {
		return err
	}
	b.record(ctx, history.NewRunID(), out)
	return nil
}

func (b *Bot) record(ctx context.Context, runID string, outcomes ...guardian.Outcome) {
	for _, out := range outcomes {
		b.metrics.RecordOutcome(out)
		if b.ledger == nil || b.request.DryRun {
			continue
		}
		if err := b.ledger.RecordDecision(ctx, runID, out); err != nil {
			slog.Warn("Failed to record decision", "component", "bot", "pr", out.PR, "error", err)
		}
	}
}

// run executes a cycle immediately and then every loopDelay until ctx is done.
func (b *Bot) run(ctx context.Context, loopDelay time.Duration) {
	for {
		slog.Info("Starting run", "component", "bot")
		if err := b.runCycle(ctx); err != nil {
			slog.Error("Run failed", "component", "bot", "error", err)
		}

		timer := time.NewTimer(loopDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Context cancelled, shutting down", "component", "bot")
			return
		case <-timer.C:
		}
	}
}

// handler serves the health, poll and metrics endpoints.
func (b *Bot) handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/_-_/health", func(w http.ResponseWriter, _ *http.Request) {
		stats := b.metrics.Stats()

		status := "ok"
		statusCode := http.StatusOK
		if stats.TotalRuns > 0 && b.staleAfter > 0 && time.Since(stats.LastRun) > b.staleAfter {
			status = "stale"
			statusCode = http.StatusServiceUnavailable
		}

		response := fmt.Sprintf("%s - %d PRs seen (%d auto-merge, %d escalated, %d blocked), %d issues dispatched, %d events, %d failures (last: %s, runs: %d)\n",
			status, stats.PRsSeen, stats.AutoMerge, stats.Escalated, stats.Blocked,
			stats.IssuesDispatched, stats.Events, stats.Failures,
			stats.LastRun.Format(time.RFC3339), stats.TotalRuns)
		if b.monitor != nil {
			response = fmt.Sprintf("%s(events connected: %t)\n", response, b.monitor.isConnected())
		}

		w.WriteHeader(statusCode)
		if _, err := w.Write([]byte(response)); err != nil {
			slog.Warn("Failed to write response", "error", err)
		}
	})

	mux.HandleFunc("/_-_/poll", func(w http.ResponseWriter, _ *http.Request) {
		if !b.metrics.pollingMu.TryLock() {
			w.WriteHeader(http.StatusConflict)
			if _, err := w.Write([]byte("Polling already in progress\n")); err != nil {
				slog.Warn("Failed to write response", "error", err)
			}
			return
		}

		// The poll outlives the request.
		go func() {
			defer b.metrics.pollingMu.Unlock()
			slog.Info("Manual poll triggered", "component", "bot")
			if err := b.runCycle(context.WithoutCancel(ctx)); err != nil {
				slog.Error("Manual poll failed", "component", "bot", "error", err)
			}
		}()

		w.WriteHeader(http.StatusAccepted)
		if _, err := w.Write([]byte("Poll triggered\n")); err != nil {
			slog.Warn("Failed to write response", "error", err)
		}
	})

	mux.HandleFunc("/_-_/metrics", func(w http.ResponseWriter, r *http.Request) {
		if b.provider == nil {
			http.NotFound(w, r)
			return
		}
		totals, err := b.provider.Totals(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, t := range totals {
			if _, err := fmt.Fprintf(w, "%s{%s} %d\n", t.Name, t.Attributes, t.Value); err != nil {
				slog.Warn("Failed to write response", "error", err)
				return
			}
		}
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Workflow Orchestrator Bot\n/_-_/health - Health status\n/_-_/poll - Trigger manual poll\n/_-_/metrics - Counter totals\n")); err != nil {
			slog.Warn("Failed to write response", "error", err)
		}
	})

	return mux
}

// serve runs the HTTP server until ctx is done.
func (b *Bot) serve(ctx context.Context, port int) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      b.handler(ctx),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Health server shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting health server", "port", port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Health server failed", "error", err)
	}
}
