package github

import (
	"context"
	"net/http"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/types"
)

// HTTPDoer provides an interface for making HTTP requests.
// This allows us to mock HTTP calls in tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SourceRepository is everything the orchestrator reads from or writes to a repository.
// Every failure is a *types.PortError.
type SourceRepository interface {
	// Reads
	ListOpenIssues(ctx context.Context, labelFilter string) ([]types.Issue, error)
	ListOpenPullRequests(ctx context.Context, labelFilter string) ([]int, error)
	FetchChangeSet(ctx context.Context, pr int) (*types.ChangeSet, error)

	// Writes
	AddLabel(ctx context.Context, issue int, label string) error
	Assign(ctx context.Context, issue int, assignee string) error
	Comment(ctx context.Context, issue int, body string) error
	Merge(ctx context.Context, pr int, method string) error
}

var _ SourceRepository = (*Client)(nil)
