// Package testutil provides fakes and testing utilities for the orchestrator.
package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/types"
)

// Operation names used for call recording and error injection.
const (
	OpListOpenIssues       = "ListOpenIssues"
	OpListOpenPullRequests = "ListOpenPullRequests"
	OpFetchChangeSet       = "FetchChangeSet"
	OpAddLabel             = "AddLabel"
	OpAssign               = "Assign"
	OpComment              = "Comment"
	OpMerge                = "Merge"
)

// Call records one invocation of a FakeRepository method.
type Call struct {
	Op     string
	Arg    string // label, assignee, comment body, merge method or label filter
	Number int
}

// FakeRepository is an in-memory source repository.
// It's programmable: seed issues and change sets, inject errors per operation, inspect calls.
// Writes mutate the stored state, so a label added by one call is visible to the next read.
type FakeRepository struct {
	changeSets map[int]*types.ChangeSet
	errors     map[string]error
	issues     []types.Issue
	prs        []int
	calls      []Call
	mu         sync.Mutex
}

// NewFakeRepository creates an empty FakeRepository.
func NewFakeRepository() *FakeRepository {
	return &FakeRepository{
		changeSets: make(map[int]*types.ChangeSet),
		errors:     make(map[string]error),
	}
}

// AddIssue seeds an open issue. Issues are listed in insertion order.
func (f *FakeRepository) AddIssue(issue types.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues = append(f.issues, issue)
}

// SetChangeSet seeds an open pull request.
func (f *FakeRepository) SetChangeSet(cs *types.ChangeSet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.changeSets[cs.Number]; !ok {
		f.prs = append(f.prs, cs.Number)
	}
	c := *cs
	f.changeSets[cs.Number] = &c
}

// FailOn makes op fail with err. number 0 fails the operation for every item.
func (f *FakeRepository) FailOn(op string, number int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[errorKey(op, number)] = err
}

func errorKey(op string, number int) string {
	return fmt.Sprintf("%s:%d", op, number)
}

// failure records the call and returns the injected error, if any. Callers hold mu.
func (f *FakeRepository) failure(op string, number int, arg string) error {
	f.calls = append(f.calls, Call{Op: op, Number: number, Arg: arg})
	err := f.errors[errorKey(op, number)]
	if err == nil {
		err = f.errors[errorKey(op, 0)]
	}
	if err != nil {
		return types.NewPortError(op, err)
	}
	return nil
}

// Calls returns all recorded calls in order.
func (f *FakeRepository) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsFor returns the recorded calls of one operation.
func (f *FakeRepository) CallsFor(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// WriteCount returns the number of mutating calls, failed or not.
func (f *FakeRepository) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		switch c.Op {
		case OpAddLabel, OpAssign, OpComment, OpMerge:
			n++
		}
	}
	return n
}

// Issue returns the current state of a seeded issue.
func (f *FakeRepository) Issue(number int) (types.Issue, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.issues {
		if it.Number == number {
			return it, true
		}
	}
	return types.Issue{}, false
}

// Merged reports whether Merge succeeded for the pull request.
func (f *FakeRepository) Merged(pr int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, open := f.changeSets[pr]
	return !open && slices.ContainsFunc(f.calls, func(c Call) bool { return c.Op == OpMerge && c.Number == pr })
}

// ListOpenIssues returns seeded issues carrying every label in the comma-separated filter.
func (f *FakeRepository) ListOpenIssues(_ context.Context, labelFilter string) ([]types.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(OpListOpenIssues, 0, labelFilter); err != nil {
		return nil, err
	}

	var out []types.Issue
	for _, it := range f.issues {
		if matchesFilter(it.Labels, labelFilter) {
			c := it
			c.Labels = slices.Clone(it.Labels)
			c.Assignees = slices.Clone(it.Assignees)
			out = append(out, c)
		}
	}
	return out, nil
}

// ListOpenPullRequests returns seeded, unmerged pull requests matching the filter.
func (f *FakeRepository) ListOpenPullRequests(_ context.Context, labelFilter string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(OpListOpenPullRequests, 0, labelFilter); err != nil {
		return nil, err
	}

	var out []int
	for _, n := range f.prs {
		if cs, ok := f.changeSets[n]; ok && matchesFilter(cs.Labels, labelFilter) {
			out = append(out, n)
		}
	}
	return out, nil
}

// FetchChangeSet returns a copy of the seeded change set.
func (f *FakeRepository) FetchChangeSet(_ context.Context, pr int) (*types.ChangeSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(OpFetchChangeSet, pr, ""); err != nil {
		return nil, err
	}

	cs, ok := f.changeSets[pr]
	if !ok {
		return nil, types.NewPortError(OpFetchChangeSet, fmt.Errorf("pull request #%d not found", pr))
	}
	c := *cs
	c.Labels = slices.Clone(cs.Labels)
	c.ChangedPaths = slices.Clone(cs.ChangedPaths)
	return &c, nil
}

// AddLabel adds a label to a seeded issue or pull request.
func (f *FakeRepository) AddLabel(_ context.Context, number int, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(OpAddLabel, number, label); err != nil {
		return err
	}

	for i := range f.issues {
		if f.issues[i].Number == number && !slices.Contains(f.issues[i].Labels, label) {
			f.issues[i].Labels = append(f.issues[i].Labels, label)
		}
	}
	if cs, ok := f.changeSets[number]; ok && !cs.HasLabel(label) {
		cs.Labels = append(slices.Clone(cs.Labels), label)
	}
	return nil
}

// Assign adds an assignee to a seeded issue.
func (f *FakeRepository) Assign(_ context.Context, number int, assignee string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(OpAssign, number, assignee); err != nil {
		return err
	}

	for i := range f.issues {
		if f.issues[i].Number == number && !slices.Contains(f.issues[i].Assignees, assignee) {
			f.issues[i].Assignees = append(f.issues[i].Assignees, assignee)
		}
	}
	return nil
}

// Comment records a comment.
func (f *FakeRepository) Comment(_ context.Context, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failure(OpComment, number, body)
}

// Merge closes a seeded pull request.
func (f *FakeRepository) Merge(_ context.Context, pr int, method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(OpMerge, pr, method); err != nil {
		return err
	}
	if _, ok := f.changeSets[pr]; !ok {
		return types.NewPortError(OpMerge, fmt.Errorf("pull request #%d not found", pr))
	}
	delete(f.changeSets, pr)
	return nil
}

func matchesFilter(labels []string, filter string) bool {
	for _, want := range strings.Split(filter, ",") {
		want = strings.TrimSpace(want)
		if want == "" {
			continue
		}
		if !slices.ContainsFunc(labels, func(l string) bool { return strings.EqualFold(l, want) }) {
			return false
		}
	}
	return true
}
