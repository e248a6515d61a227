package github

import (
	"testing"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/types"
)

func TestCheckSummary_Passed(t *testing.T) {
	done := func(conclusion string) types.CheckRun {
		return types.CheckRun{Name: "ci", Status: "completed", Conclusion: conclusion}
	}

	tests := []struct {
		name    string
		summary CheckSummary
		want    bool
	}{
		{"no signals", CheckSummary{}, false},
		{"all runs pass", CheckSummary{Runs: []types.CheckRun{done("success"), done("neutral"), done("skipped")}}, true},
		{"one run failed", CheckSummary{Runs: []types.CheckRun{done("success"), done("failure")}}, false},
		{"run still in progress", CheckSummary{Runs: []types.CheckRun{{Status: "in_progress"}}}, false},
		{"cancelled run", CheckSummary{Runs: []types.CheckRun{done("cancelled")}}, false},
		{"statuses only, success", CheckSummary{StatusCount: 2, CombinedState: "success"}, true},
		{"statuses only, pending", CheckSummary{StatusCount: 1, CombinedState: "pending"}, false},
		{"runs pass but status failed", CheckSummary{Runs: []types.CheckRun{done("success")}, StatusCount: 1, CombinedState: "failure"}, false},
		{"runs pass and no statuses reported as pending", CheckSummary{Runs: []types.CheckRun{done("success")}, CombinedState: "pending"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.summary.Passed(); got != tt.want {
				t.Errorf("Passed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckSummary_Settled(t *testing.T) {
	if (CheckSummary{Runs: []types.CheckRun{{Status: "queued"}}}).settled() {
		t.Error("queued run should not be settled")
	}
	if (CheckSummary{StatusCount: 1, CombinedState: "pending"}).settled() {
		t.Error("pending status should not be settled")
	}
	if !(CheckSummary{Runs: []types.CheckRun{{Status: "completed", Conclusion: "failure"}}}).settled() {
		t.Error("completed failure should be settled")
	}
}

func TestReviewApproved(t *testing.T) {
	r := func(who, state string) types.Review { return types.Review{Reviewer: who, State: state} }

	tests := []struct {
		name    string
		reviews []types.Review
		want    bool
	}{
		{"no reviews", nil, false},
		{"single approval", []types.Review{r("alice", "APPROVED")}, true},
		{"comment only", []types.Review{r("alice", "COMMENTED")}, false},
		{"approval then comment", []types.Review{r("alice", "APPROVED"), r("alice", "COMMENTED")}, true},
		{"changes requested then approved", []types.Review{r("alice", "CHANGES_REQUESTED"), r("alice", "APPROVED")}, true},
		{"approved then changes requested", []types.Review{r("alice", "APPROVED"), r("alice", "CHANGES_REQUESTED")}, false},
		{"one approves one blocks", []types.Review{r("alice", "APPROVED"), r("bob", "CHANGES_REQUESTED")}, false},
		{"approval dismissed", []types.Review{r("alice", "APPROVED"), r("alice", "DISMISSED")}, false},
		{"blocker dismissed", []types.Review{r("alice", "APPROVED"), r("bob", "CHANGES_REQUESTED"), r("bob", "DISMISSED")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reviewApproved(tt.reviews); got != tt.want {
				t.Errorf("reviewApproved() = %v, want %v", got, tt.want)
			}
		})
	}
}
