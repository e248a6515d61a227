package guardian

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/types"
)

// Runner defaults.
const (
	DefaultMergeMethod     = "squash"
	DefaultEscalationLabel = "needs-human-review"
	defaultConcurrency     = 4
)

// Repository is the subset of the source repository the runner needs.
type Repository interface {
	FetchChangeSet(ctx context.Context, pr int) (*types.ChangeSet, error)
	Merge(ctx context.Context, pr int, method string) error
	AddLabel(ctx context.Context, issue int, label string) error
	Comment(ctx context.Context, issue int, body string) error
}

// Metrics receives one call per evaluated pull request.
type Metrics interface {
	Decision(ctx context.Context, kind string)
}

// Outcome is the result of processing one pull request.
type Outcome struct {
	Decision   Decision // nil when the change set could not be fetched
	Err        error
	Action     string // what was done, e.g. "merged", "escalated", "dry run"
	Assessment Assessment
	PR         int
	Applied    bool
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Guardian        *Guardian
	Metrics         Metrics // optional
	MergeMethod     string  // merge, squash or rebase
	EscalationLabel string
	Concurrency     int // maximum pull requests evaluated at once
	DryRun          bool
}

// Runner fetches change sets, evaluates them and executes the verdicts.
type Runner struct {
	repo            Repository
	guardian        *Guardian
	metrics         Metrics
	mergeMethod     string
	escalationLabel string
	concurrency     int
	dryRun          bool
}

// NewRunner creates a Runner over the given repository.
func NewRunner(repo Repository, cfg RunnerConfig) *Runner {
	r := &Runner{
		repo:            repo,
		guardian:        cfg.Guardian,
		metrics:         cfg.Metrics,
		mergeMethod:     cfg.MergeMethod,
		escalationLabel: cfg.EscalationLabel,
		concurrency:     cfg.Concurrency,
		dryRun:          cfg.DryRun,
	}
	if r.guardian == nil {
		r.guardian = New(DefaultThreshold)
	}
	if r.mergeMethod == "" {
		r.mergeMethod = DefaultMergeMethod
	}
	if r.escalationLabel == "" {
		r.escalationLabel = DefaultEscalationLabel
	}
	if r.concurrency <= 0 {
		r.concurrency = defaultConcurrency
	}
	return r
}

// Process evaluates one pull request and, unless in dry-run mode, executes the decision.
// A failure to fetch the change set is returned as an error. Failures while executing
// the decision are reported in Outcome.Err.
func (r *Runner) Process(ctx context.Context, pr int) (Outcome, error) {
	out := Outcome{PR: pr}

	cs, err := r.repo.FetchChangeSet(ctx, pr)
	if err != nil {
		out.Err = err
		return out, fmt.Errorf("fetch change set for PR #%d: %w", pr, err)
	}

	out.Assessment = Assess(cs)
	out.Decision = r.guardian.Evaluate(cs)
	if r.metrics != nil {
		r.metrics.Decision(ctx, string(out.Decision.Kind()))
	}

	slog.Info("Evaluated pull request",
		"component", "guardian",
		"pr", pr,
		"decision", out.Decision.Kind(),
		"confidence", out.Assessment.Confidence,
		"threshold", r.guardian.Threshold(),
		"paths", len(cs.ChangedPaths))

	if r.dryRun {
		out.Action = "dry run"
		slog.Info("Dry run: not executing decision", "component", "guardian", "pr", pr, "decision", out.Decision)
		return out, nil
	}

	switch d := out.Decision.(type) {
	case AutoMerge:
		r.merge(ctx, cs, d, &out)
	case Escalate:
		r.escalate(ctx, cs, d, &out)
	case Blocked:
		out.Action = "none"
		slog.Info("Pull request blocked from auto-merge", "component", "guardian", "pr", pr, "reason", d.Reason)
	}
	return out, nil
}

func (r *Runner) merge(ctx context.Context, cs *types.ChangeSet, d AutoMerge, out *Outcome) {
	if err := r.repo.Merge(ctx, cs.Number, r.mergeMethod); err != nil {
		out.Err = err
		out.Action = "merge failed"
		slog.Error("Failed to merge pull request", "component", "guardian", "pr", cs.Number, "error", err)
		return
	}
	out.Applied = true
	out.Action = "merged"

	body := fmt.Sprintf("Merged automatically with confidence %d (threshold %d).", d.Confidence, r.guardian.Threshold())
	if err := r.repo.Comment(ctx, cs.Number, body); err != nil {
		out.Err = err
		slog.Warn("Merged but failed to comment", "component", "guardian", "pr", cs.Number, "error", err)
	}
}

func (r *Runner) escalate(ctx context.Context, cs *types.ChangeSet, d Escalate, out *Outcome) {
	if cs.HasLabel(r.escalationLabel) {
		out.Action = "already escalated"
		slog.Debug("Pull request already escalated", "component", "guardian", "pr", cs.Number)
		return
	}
	if err := r.repo.AddLabel(ctx, cs.Number, r.escalationLabel); err != nil {
		out.Err = err
		out.Action = "escalation failed"
		slog.Error("Failed to add escalation label", "component", "guardian", "pr", cs.Number, "error", err)
		return
	}
	out.Applied = true
	out.Action = "escalated"

	if err := r.repo.Comment(ctx, cs.Number, escalationComment(d, out.Assessment)); err != nil {
		out.Err = err
		slog.Warn("Escalated but failed to comment", "component", "guardian", "pr", cs.Number, "error", err)
	}
}

func escalationComment(d Escalate, a Assessment) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Confidence %d is below the auto-merge threshold of %d.\n", d.Confidence, d.Threshold)
	if missing := a.Missing(); len(missing) > 0 {
		sb.WriteString("\nMissing signals:\n")
		for _, m := range missing {
			fmt.Fprintf(&sb, "- %s\n", m)
		}
	}
	return sb.String()
}

// ProcessAll processes pull requests concurrently and returns outcomes in input order.
// Individual failures are reported per outcome. The only returned error is context cancellation.
func (r *Runner) ProcessAll(ctx context.Context, prs []int) ([]Outcome, error) {
	outcomes := make([]Outcome, len(prs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, pr := range prs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = Outcome{PR: pr, Err: err}
				return err
			}
			out, err := r.Process(gctx, pr)
			if err != nil {
				slog.Warn("Failed to process pull request", "component", "guardian", "pr", pr, "error", err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, fmt.Errorf("process pull requests: %w", err)
	}
	return outcomes, nil
}
