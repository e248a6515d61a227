package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/types"
)

// Repository is the subset of the source repository the dispatcher needs.
type Repository interface {
	ListOpenIssues(ctx context.Context, labelFilter string) ([]types.Issue, error)
	AddLabel(ctx context.Context, issue int, label string) error
	Assign(ctx context.Context, issue int, assignee string) error
}

// Metrics receives one call per assignment.
type Metrics interface {
	Assignment(ctx context.Context, agent string, applied bool)
}

// Request describes one dispatch cycle.
type Request struct {
	LabelFilter string
	MaxIssues   int
	Strategy    Strategy
	DryRun      bool
}

// Result is the outcome of one assignment. Err is set when the write-back failed.
type Result struct {
	Err error
	Assignment
	Applied bool
}

// Dispatcher fetches candidate issues, routes them and writes the routing back.
type Dispatcher struct {
	repo    Repository
	engine  *Engine
	metrics Metrics
}

// New creates a Dispatcher. A nil engine gets a default one; metrics may be nil.
func New(repo Repository, engine *Engine, metrics Metrics) *Dispatcher {
	if engine == nil {
		engine = NewEngine(EngineConfig{})
	}
	return &Dispatcher{repo: repo, engine: engine, metrics: metrics}
}

// Engine returns the engine backing the dispatcher.
func (d *Dispatcher) Engine() *Engine {
	return d.engine
}

// IsCandidate reports whether an issue may be dispatched: no agent label and no assignee.
func IsCandidate(issue *types.Issue) bool {
	if len(issue.Assignees) > 0 {
		return false
	}
	for _, l := range issue.Labels {
		if isAgentLabel(l) {
			return false
		}
	}
	return true
}

// Candidates fetches open issues matching the filter and keeps the dispatchable ones, in fetch order.
func (d *Dispatcher) Candidates(ctx context.Context, labelFilter string) ([]types.Issue, error) {
	issues, err := d.repo.ListOpenIssues(ctx, labelFilter)
	if err != nil {
		return nil, fmt.Errorf("fetch candidate issues: %w", err)
	}
	var out []types.Issue
	for i := range issues {
		if IsCandidate(&issues[i]) {
			out = append(out, issues[i])
		}
	}
	slog.Debug("Filtered candidate issues", "component", "dispatcher", "open", len(issues), "candidates", len(out))
	return out, nil
}

// Dispatch runs one dispatch cycle. It returns one Result per routed issue whether or not
// the run is dry. A failed fetch is returned as an error; a failed write-back is reported
// on its Result and does not stop the remaining issues. Successful writes are never undone.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) ([]Result, error) {
	slog.Info("Dispatching issues",
		"component", "dispatcher",
		"strategy", req.Strategy,
		"max_issues", req.MaxIssues,
		"label_filter", req.LabelFilter,
		"dry_run", req.DryRun)

	candidates, err := d.Candidates(ctx, req.LabelFilter)
	if err != nil {
		return nil, err
	}
	if req.MaxIssues < len(candidates) {
		candidates = candidates[:max(req.MaxIssues, 0)]
	}
	if len(candidates) == 0 {
		slog.Info("No issues to dispatch", "component", "dispatcher")
		return []Result{}, nil
	}

	results := make([]Result, len(candidates))
	for i := range candidates {
		results[i] = Result{Assignment: d.engine.Assign(req.Strategy, &candidates[i])}
	}

	if req.DryRun {
		for i := range results {
			slog.Info("Dry run: would assign issue",
				"component", "dispatcher",
				"issue", results[i].Issue,
				"agent", results[i].Agent,
				"risk", results[i].RiskScore)
		}
		return results, nil
	}

	failed := 0
	for i := range results {
		r := &results[i]
		if err := d.apply(ctx, r.Assignment); err != nil {
			r.Err = err
			failed++
			slog.Error("Failed to assign issue",
				"component", "dispatcher", "issue", r.Issue, "agent", r.Agent, "error", err)
		} else {
			r.Applied = true
			slog.Info("Assigned issue",
				"component", "dispatcher", "issue", r.Issue, "agent", r.Agent, "risk", r.RiskScore)
		}
		if d.metrics != nil {
			d.metrics.Assignment(ctx, r.Agent.Label(), r.Applied)
		}
	}

	slog.Info("Dispatch complete",
		"component", "dispatcher", "assigned", len(results)-failed, "failed", failed)
	return results, nil
}

// apply writes the label and, when the agent supports it, the assignee.
func (d *Dispatcher) apply(ctx context.Context, a Assignment) error {
	if err := d.repo.AddLabel(ctx, a.Issue, a.Agent.Label()); err != nil {
		return fmt.Errorf("label issue #%d: %w", a.Issue, err)
	}
	if assignee := a.Agent.Assignee(); assignee != "" {
		if err := d.repo.Assign(ctx, a.Issue, assignee); err != nil {
			return fmt.Errorf("assign issue #%d to %s: %w", a.Issue, assignee, err)
		}
	}
	return nil
}
