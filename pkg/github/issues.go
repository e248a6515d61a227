package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/types"
)

// Pagination constants.
const (
	perPageLimit = 100 // GitHub API per_page limit
	maxPages     = 10  // Stop paginating after this many pages
)

type label struct {
	Name string `json:"name"`
}

type user struct {
	Login string `json:"login"`
}

func labelNames(ls []label) []string {
	names := make([]string, 0, len(ls))
	for _, l := range ls {
		names = append(names, l.Name)
	}
	return names
}

func pageQuery(page int, extra url.Values) string {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("per_page", strconv.Itoa(perPageLimit))
	q.Set("page", strconv.Itoa(page))
	return q.Encode()
}

// ListOpenIssues returns open issues, oldest first, optionally restricted to a label filter
// (comma-separated labels, all of which must be present). Pull requests are excluded.
func (c *Client) ListOpenIssues(ctx context.Context, labelFilter string) ([]types.Issue, error) {
	extra := url.Values{"state": {"open"}, "sort": {"created"}, "direction": {"asc"}}
	if labelFilter != "" {
		extra.Set("labels", labelFilter)
	}

	var issues []types.Issue
	for page := 1; page <= maxPages; page++ {
		var batch []struct {
			CreatedAt   time.Time `json:"created_at"`
			PullRequest *struct{} `json:"pull_request"`
			Title       string    `json:"title"`
			Body        string    `json:"body"`
			Labels      []label   `json:"labels"`
			Assignees   []user    `json:"assignees"`
			Number      int       `json:"number"`
		}
		if err := c.getJSON(ctx, c.repoURL("/issues?%s", pageQuery(page, extra)), &batch); err != nil {
			return nil, types.NewPortError("list issues", err)
		}

		for _, it := range batch {
			if it.PullRequest != nil {
				continue
			}
			assignees := make([]string, 0, len(it.Assignees))
			for _, a := range it.Assignees {
				assignees = append(assignees, a.Login)
			}
			issues = append(issues, types.Issue{
				Number:    it.Number,
				Title:     it.Title,
				Body:      it.Body,
				Labels:    labelNames(it.Labels),
				Assignees: assignees,
				CreatedAt: it.CreatedAt,
			})
		}
		if len(batch) < perPageLimit {
			break
		}
	}

	slog.Info("Fetched open issues", "component", "api", "repo", c.Repository(), "count", len(issues), "label_filter", labelFilter)
	return issues, nil
}

// AddLabel adds a label to an issue or pull request.
func (c *Client) AddLabel(ctx context.Context, issue int, name string) error {
	payload := map[string]any{"labels": []string{name}}
	if err := c.send(ctx, http.MethodPost, c.repoURL("/issues/%d/labels", issue), payload, http.StatusOK); err != nil {
		return types.NewPortError("add label", fmt.Errorf("#%d %q: %w", issue, name, err))
	}
	slog.Info("Added label", "component", "api", "issue", issue, "label", name)
	return nil
}

// Assign adds an assignee to an issue.
func (c *Client) Assign(ctx context.Context, issue int, assignee string) error {
	payload := map[string]any{"assignees": []string{assignee}}
	if err := c.send(ctx, http.MethodPost, c.repoURL("/issues/%d/assignees", issue), payload, http.StatusCreated); err != nil {
		return types.NewPortError("assign", fmt.Errorf("#%d to %s: %w", issue, assignee, err))
	}
	slog.Info("Assigned issue", "component", "api", "issue", issue, "assignee", assignee)
	return nil
}

// Comment posts a comment on an issue or pull request.
func (c *Client) Comment(ctx context.Context, issue int, body string) error {
	payload := map[string]any{"body": body}
	if err := c.send(ctx, http.MethodPost, c.repoURL("/issues/%d/comments", issue), payload, http.StatusCreated); err != nil {
		return types.NewPortError("comment", fmt.Errorf("#%d: %w", issue, err))
	}
	slog.Info("Posted comment", "component", "api", "issue", issue)
	return nil
}
