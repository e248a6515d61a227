package guardian

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/internal/testutil"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/types"
)

type countingMetrics struct {
	kinds map[string]int
	mu    sync.Mutex
}

func (m *countingMetrics) Decision(_ context.Context, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kinds == nil {
		m.kinds = make(map[string]int)
	}
	m.kinds[kind]++
}

func green(pr int) *types.ChangeSet {
	return &types.ChangeSet{
		Number: pr, CIPassed: true, ReviewApproved: true,
		Additions: 10, Deletions: 2,
		ChangedPaths: []string{"pkg/a.go", "pkg/a_test.go"},
	}
}

func TestProcess_AutoMerge(t *testing.T) {
	repo := testutil.NewFakeRepository()
	repo.SetChangeSet(green(1))
	r := NewRunner(repo, RunnerConfig{})

	out, err := r.Process(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := out.Decision.(AutoMerge); !ok {
		t.Fatalf("decision = %v", out.Decision)
	}
	if out.Action != "merged" || !out.Applied || out.Err != nil {
		t.Errorf("outcome = %+v", out)
	}
	if !repo.Merged(1) {
		t.Error("PR was not merged")
	}
	merges := repo.CallsFor(testutil.OpMerge)
	if len(merges) != 1 || merges[0].Arg != DefaultMergeMethod {
		t.Errorf("merge calls = %+v", merges)
	}
	comments := repo.CallsFor(testutil.OpComment)
	if len(comments) != 1 || !strings.Contains(comments[0].Arg, "confidence 100") {
		t.Errorf("comment calls = %+v", comments)
	}
}

func TestProcess_Escalate(t *testing.T) {
	repo := testutil.NewFakeRepository()
	cs := green(2)
	cs.ReviewApproved = false
	repo.SetChangeSet(cs)
	r := NewRunner(repo, RunnerConfig{EscalationLabel: "needs-eyes"})
	ctx := context.Background()

	out, err := r.Process(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if out.Decision != (Escalate{Confidence: 60, Threshold: DefaultThreshold}) {
		t.Fatalf("decision = %v", out.Decision)
	}
	if out.Action != "escalated" || !out.Applied {
		t.Errorf("outcome = %+v", out)
	}
	labels := repo.CallsFor(testutil.OpAddLabel)
	if len(labels) != 1 || labels[0].Arg != "needs-eyes" {
		t.Errorf("label calls = %+v", labels)
	}
	comments := repo.CallsFor(testutil.OpComment)
	if len(comments) != 1 || !strings.Contains(comments[0].Arg, "- no approving review") {
		t.Errorf("comment calls = %+v", comments)
	}

	// A second pass sees the label and does nothing.
	out, err = r.Process(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if out.Action != "already escalated" || out.Applied {
		t.Errorf("second outcome = %+v", out)
	}
	if n := repo.WriteCount(); n != 2 {
		t.Errorf("WriteCount() = %d, want 2", n)
	}
}

func TestProcess_Blocked(t *testing.T) {
	repo := testutil.NewFakeRepository()
	cs := green(3)
	cs.Blocker = "high-stakes"
	repo.SetChangeSet(cs)
	r := NewRunner(repo, RunnerConfig{})

	out, err := r.Process(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if out.Decision != (Blocked{Reason: "high-stakes"}) || out.Action != "none" {
		t.Errorf("outcome = %+v", out)
	}
	if repo.WriteCount() != 0 {
		t.Error("blocked PR must not be written to")
	}
}

func TestProcess_DryRun(t *testing.T) {
	repo := testutil.NewFakeRepository()
	repo.SetChangeSet(green(4))
	metrics := &countingMetrics{}
	r := NewRunner(repo, RunnerConfig{DryRun: true, Metrics: metrics})

	out, err := r.Process(context.Background(), 4)
	if err != nil {
		t.Fatal(err)
	}
	if out.Action != "dry run" || out.Applied {
		t.Errorf("outcome = %+v", out)
	}
	if repo.WriteCount() != 0 {
		t.Error("dry run wrote to the repository")
	}
	if metrics.kinds[string(KindAutoMerge)] != 1 {
		t.Errorf("metrics = %v", metrics.kinds)
	}
}

func TestProcess_FetchError(t *testing.T) {
	repo := testutil.NewFakeRepository()
	r := NewRunner(repo, RunnerConfig{})

	out, err := r.Process(context.Background(), 99)
	if !errors.Is(err, types.ErrPort) {
		t.Fatalf("expected PortError, got %v", err)
	}
	if out.Decision != nil || out.Err == nil {
		t.Errorf("outcome = %+v", out)
	}
}

func TestProcess_MergeFailure(t *testing.T) {
	repo := testutil.NewFakeRepository()
	repo.SetChangeSet(green(5))
	repo.FailOn(testutil.OpMerge, 5, errors.New("merge conflict"))
	r := NewRunner(repo, RunnerConfig{})

	out, err := r.Process(context.Background(), 5)
	if err != nil {
		t.Fatalf("execution failures are reported on the outcome, got %v", err)
	}
	if out.Action != "merge failed" || out.Applied || !errors.Is(out.Err, types.ErrPort) {
		t.Errorf("outcome = %+v", out)
	}
	if len(repo.CallsFor(testutil.OpComment)) != 0 {
		t.Error("no comment expected after a failed merge")
	}
}

func TestProcess_CommentFailureKeepsMerge(t *testing.T) {
	repo := testutil.NewFakeRepository()
	repo.SetChangeSet(green(6))
	repo.FailOn(testutil.OpComment, 6, errors.New("locked"))
	r := NewRunner(repo, RunnerConfig{})

	out, _ := r.Process(context.Background(), 6)
	if !out.Applied || out.Action != "merged" || out.Err == nil {
		t.Errorf("outcome = %+v", out)
	}
	if !repo.Merged(6) {
		t.Error("merge must stand when the comment fails")
	}
}

func TestProcessAll(t *testing.T) {
	repo := testutil.NewFakeRepository()
	metrics := &countingMetrics{}
	prs := []int{10, 11, 12, 13, 14, 15, 16, 17}
	for _, pr := range prs {
		cs := green(pr)
		switch pr % 3 {
		case 1:
			cs.CIPassed = false
		case 2:
			cs.Blocker = "do-not-merge"
		}
		repo.SetChangeSet(cs)
	}
	r := NewRunner(repo, RunnerConfig{Concurrency: 3, Metrics: metrics})

	outcomes, err := r.ProcessAll(context.Background(), append(prs, 404))
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != len(prs)+1 {
		t.Fatalf("got %d outcomes", len(outcomes))
	}
	for i, pr := range prs {
		if outcomes[i].PR != pr {
			t.Errorf("outcome %d is for PR %d, want %d", i, outcomes[i].PR, pr)
		}
	}
	if last := outcomes[len(prs)]; last.Err == nil || last.Decision != nil {
		t.Errorf("missing PR outcome = %+v", last)
	}
	total := 0
	for _, n := range metrics.kinds {
		total += n
	}
	if total != len(prs) {
		t.Errorf("recorded %d decisions, want %d", total, len(prs))
	}
	if metrics.kinds[string(KindBlocked)] != 3 {
		t.Errorf("metrics = %v", metrics.kinds)
	}
}

func TestProcessAll_Canceled(t *testing.T) {
	repo := testutil.NewFakeRepository()
	repo.SetChangeSet(green(1))
	r := NewRunner(repo, RunnerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.ProcessAll(ctx, []int{1}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
