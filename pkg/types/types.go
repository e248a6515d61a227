// Package types contains shared data structures used across the orchestrator.
//
//nolint:revive // "types" is a standard Go package name for shared data structures
package types

import "time"

// ChangeSet is the diff, CI and review metadata for one pull request.
type ChangeSet struct {
	UpdatedAt      time.Time
	Title          string
	Author         string
	HeadSHA        string
	Blocker        string   // non-empty forbids auto-merge regardless of confidence
	ChangedPaths   []string // order preserved for display
	Labels         []string
	Number         int
	Additions      int
	Deletions      int
	CIPassed       bool
	ReviewApproved bool
	Draft          bool
}

// HasBlocker reports whether the change set carries a hard merge blocker.
func (cs *ChangeSet) HasBlocker() bool {
	return cs.Blocker != ""
}

// HasLabel reports whether the change set carries the given label.
func (cs *ChangeSet) HasLabel(label string) bool {
	for _, l := range cs.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Issue is a raw open issue record as returned by the source repository.
type Issue struct {
	CreatedAt time.Time
	Title     string
	Body      string // empty when the issue has no body
	Labels    []string
	Assignees []string
	Number    int
}

// ChangedFile represents a file changed in a pull request.
type ChangedFile struct {
	Filename  string
	Status    string // "added", "modified", "removed", "renamed"
	Additions int
	Deletions int
}

// CheckRun is the result of a single CI check on a commit.
type CheckRun struct {
	Name       string
	Status     string // "queued", "in_progress", "completed"
	Conclusion string // "success", "failure", "neutral", "skipped", ...
}

// Review is one submitted pull request review.
type Review struct {
	SubmittedAt time.Time
	Reviewer    string
	State       string // "APPROVED", "CHANGES_REQUESTED", "COMMENTED", "DISMISSED"
}
