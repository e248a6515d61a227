package github

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/cache"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/types"
)

// CheckSummary is the CI state of one commit: check runs plus legacy commit statuses.
type CheckSummary struct {
	SHA           string           `json:"sha"`
	CombinedState string           `json:"combined_state"` // success, failure, error or pending
	Runs          []types.CheckRun `json:"runs"`
	StatusCount   int              `json:"status_count"`
}

var passingConclusions = []string{"success", "neutral", "skipped"}

// Passed reports whether CI passed: at least one signal exists, every check run
// completed with a passing conclusion, and the combined status (if any) is success.
func (s CheckSummary) Passed() bool {
	if len(s.Runs) == 0 && s.StatusCount == 0 {
		return false
	}
	for _, r := range s.Runs {
		if r.Status != "completed" || !slices.Contains(passingConclusions, r.Conclusion) {
			return false
		}
	}
	return s.StatusCount == 0 || s.CombinedState == "success"
}

// settled reports whether nothing is still running, so the summary can be cached.
func (s CheckSummary) settled() bool {
	for _, r := range s.Runs {
		if r.Status != "completed" {
			return false
		}
	}
	return s.StatusCount == 0 || s.CombinedState != "pending"
}

// checkSummary returns the CI state for a commit, cached by SHA once settled.
func (c *Client) checkSummary(ctx context.Context, sha string) (CheckSummary, error) {
	if cached, hit := c.checks.Lookup(sha); hit != cache.Miss {
		slog.Debug("Check summary cache hit", "component", "api", "sha", sha, "source", hit)
		return cached, nil
	}

	runs, err := c.checkRuns(ctx, sha)
	if err != nil {
		return CheckSummary{}, fmt.Errorf("check runs: %w", err)
	}

	var status struct {
		State      string `json:"state"`
		TotalCount int    `json:"total_count"`
	}
	if err := c.getJSON(ctx, c.repoURL("/commits/%s/status", sha), &status); err != nil {
		return CheckSummary{}, fmt.Errorf("combined status: %w", err)
	}

	s := CheckSummary{
		SHA:           sha,
		Runs:          runs,
		CombinedState: status.State,
		StatusCount:   status.TotalCount,
	}
	if s.settled() {
		c.checks.Set(sha, s)
	}
	return s, nil
}

// checkRuns pages through every check run for a commit. A partial listing is an
// error, since a failing run on an unread page would otherwise look like a pass.
func (c *Client) checkRuns(ctx context.Context, sha string) ([]types.CheckRun, error) {
	var runs []types.CheckRun
	total := 0
	for page := 1; page <= maxPages; page++ {
		var batch struct {
			CheckRuns  []types.CheckRun `json:"check_runs"`
			TotalCount int              `json:"total_count"`
		}
		if err := c.getJSON(ctx, c.repoURL("/commits/%s/check-runs?%s", sha, pageQuery(page, nil)), &batch); err != nil {
			return nil, err
		}
		runs = append(runs, batch.CheckRuns...)
		total = batch.TotalCount
		if len(runs) >= total || len(batch.CheckRuns) < perPageLimit {
			break
		}
	}
	if len(runs) < total {
		return nil, fmt.Errorf("read %d of %d check runs for %s", len(runs), total, sha)
	}
	return runs, nil
}

// reviewApproved reports whether at least one reviewer's latest decisive review approves
// and no reviewer's latest decisive review requests changes. Reviews must be in
// submission order. Comments do not change a reviewer's verdict; dismissals clear it.
func reviewApproved(reviews []types.Review) bool {
	latest := make(map[string]string)
	for _, r := range reviews {
		switch r.State {
		case "APPROVED", "CHANGES_REQUESTED", "DISMISSED":
			latest[r.Reviewer] = r.State
		}
	}

	approved := false
	for _, state := range latest {
		switch state {
		case "CHANGES_REQUESTED":
			return false
		case "APPROVED":
			approved = true
		}
	}
	return approved
}
