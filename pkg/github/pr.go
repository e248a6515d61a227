package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/types"
)

// DraftBlocker is the blocker reason reported for draft pull requests.
const DraftBlocker = "draft pull request"

// ListOpenPullRequests returns the numbers of open pull requests, oldest first.
// The pulls endpoint has no label filter, so labels are matched here (all must be present).
func (c *Client) ListOpenPullRequests(ctx context.Context, labelFilter string) ([]int, error) {
	want := splitLabels(labelFilter)
	extra := url.Values{"state": {"open"}, "sort": {"created"}, "direction": {"asc"}}

	var numbers []int
	for page := 1; page <= maxPages; page++ {
		var batch []struct {
			Labels []label `json:"labels"`
			Number int     `json:"number"`
		}
		if err := c.getJSON(ctx, c.repoURL("/pulls?%s", pageQuery(page, extra)), &batch); err != nil {
			return nil, types.NewPortError("list pull requests", err)
		}
		for _, pr := range batch {
			if hasAllLabels(labelNames(pr.Labels), want) {
				numbers = append(numbers, pr.Number)
			}
		}
		if len(batch) < perPageLimit {
			break
		}
	}

	slog.Info("Fetched open pull requests", "component", "api", "repo", c.Repository(), "count", len(numbers))
	return numbers, nil
}

// FetchChangeSet collects diff stats, changed paths, CI state, review state and blocker for a PR.
func (c *Client) FetchChangeSet(ctx context.Context, pr int) (*types.ChangeSet, error) {
	var meta struct {
		UpdatedAt time.Time `json:"updated_at"`
		Title     string    `json:"title"`
		User      user      `json:"user"`
		Head      struct {
			SHA string `json:"sha"`
		} `json:"head"`
		Labels    []label `json:"labels"`
		Additions int     `json:"additions"`
		Deletions int     `json:"deletions"`
		Draft     bool    `json:"draft"`
	}
	if err := c.getJSON(ctx, c.repoURL("/pulls/%d", pr), &meta); err != nil {
		return nil, types.NewPortError("fetch pull request", fmt.Errorf("#%d: %w", pr, err))
	}

	files, err := c.changedFiles(ctx, pr)
	if err != nil {
		return nil, types.NewPortError("fetch changed files", fmt.Errorf("#%d: %w", pr, err))
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Filename)
	}

	checks, err := c.checkSummary(ctx, meta.Head.SHA)
	if err != nil {
		return nil, types.NewPortError("fetch checks", fmt.Errorf("#%d: %w", pr, err))
	}

	reviews, err := c.reviews(ctx, pr)
	if err != nil {
		return nil, types.NewPortError("fetch reviews", fmt.Errorf("#%d: %w", pr, err))
	}

	cs := &types.ChangeSet{
		Number:         pr,
		Title:          meta.Title,
		Author:         meta.User.Login,
		HeadSHA:        meta.Head.SHA,
		UpdatedAt:      meta.UpdatedAt,
		Labels:         labelNames(meta.Labels),
		Additions:      meta.Additions,
		Deletions:      meta.Deletions,
		ChangedPaths:   paths,
		Draft:          meta.Draft,
		CIPassed:       checks.Passed(),
		ReviewApproved: reviewApproved(reviews),
	}
	cs.Blocker = c.blocker(cs)

	slog.Info("Fetched change set", "component", "api", "pr", pr,
		"files", len(paths), "additions", cs.Additions, "deletions", cs.Deletions,
		"ci_passed", cs.CIPassed, "approved", cs.ReviewApproved, "blocker", cs.Blocker)
	return cs, nil
}

// blocker returns the first configured blocker label on the change set, or the
// draft reason. Label matching is case-insensitive.
func (c *Client) blocker(cs *types.ChangeSet) string {
	for _, b := range c.blockerLabels {
		for _, l := range cs.Labels {
			if strings.EqualFold(l, b) {
				return l
			}
		}
	}
	if cs.Draft {
		return DraftBlocker
	}
	return ""
}

// changedFiles returns the files changed in a pull request, in API order.
func (c *Client) changedFiles(ctx context.Context, pr int) ([]types.ChangedFile, error) {
	var files []types.ChangedFile
	for page := 1; page <= maxPages*3; page++ { // the files endpoint caps at 3000 entries
		var batch []types.ChangedFile
		if err := c.getJSON(ctx, c.repoURL("/pulls/%d/files?%s", pr, pageQuery(page, nil)), &batch); err != nil {
			return nil, err
		}
		files = append(files, batch...)
		if len(batch) < perPageLimit {
			break
		}
	}
	return files, nil
}

// reviews returns submitted reviews in submission order.
func (c *Client) reviews(ctx context.Context, pr int) ([]types.Review, error) {
	var reviews []types.Review
	for page := 1; page <= maxPages; page++ {
		var batch []struct {
			SubmittedAt time.Time `json:"submitted_at"`
			User        user      `json:"user"`
			State       string    `json:"state"`
		}
		if err := c.getJSON(ctx, c.repoURL("/pulls/%d/reviews?%s", pr, pageQuery(page, nil)), &batch); err != nil {
			return nil, err
		}
		for _, r := range batch {
			reviews = append(reviews, types.Review{Reviewer: r.User.Login, State: r.State, SubmittedAt: r.SubmittedAt})
		}
		if len(batch) < perPageLimit {
			break
		}
	}
	return reviews, nil
}

// Merge merges a pull request with the given method (merge, squash or rebase).
func (c *Client) Merge(ctx context.Context, pr int, method string) error {
	payload := map[string]any{"merge_method": method}
	if err := c.send(ctx, http.MethodPut, c.repoURL("/pulls/%d/merge", pr), payload, http.StatusOK); err != nil {
		return types.NewPortError("merge", fmt.Errorf("#%d: %w", pr, err))
	}
	slog.Info("Merged pull request", "component", "api", "pr", pr, "method", method)
	return nil
}

func splitLabels(filter string) []string {
	var out []string
	for _, l := range strings.Split(filter, ",") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func hasAllLabels(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if strings.EqualFold(h, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
