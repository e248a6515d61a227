package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/config"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/dispatcher"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/guardian"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/history"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/types"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"dispatch", "guardian", "history", "version"} {
		if !names[want] {
			t.Errorf("root command missing subcommand %q", want)
		}
	}
}

func TestVersionOutput(t *testing.T) {
	// version vars are set via ldflags; in tests they have their defaults
	if version != "dev" {
		t.Errorf("expected default version %q, got %q", "dev", version)
	}
}

// execute runs the root command in an empty directory with a clean environment.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, k := range []string{config.EnvRepository, config.EnvToken, config.EnvAppID, config.EnvAppKeyPath} {
		t.Setenv(k, "")
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParsePRRef(t *testing.T) {
	tests := []struct {
		ref      string
		wantRepo string
		wantNum  int
		wantErr  bool
	}{
		{"123", "", 123, false},
		{"#7", "", 7, false},
		{"acme/widgets#42", "acme/widgets", 42, false},
		{"https://github.com/acme/widgets/pull/9", "acme/widgets", 9, false},
		{"https://github.com/acme/widgets/pull/9/files", "acme/widgets", 9, false},
		{"https://github.com/acme/widgets/issues/9", "", 0, true},
		{"acme#1", "", 0, true},
		{"abc", "", 0, true},
		{"0", "", 0, true},
		{"-3", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			repo, n, err := parsePRRef(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePRRef(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
			if repo != tt.wantRepo || n != tt.wantNum {
				t.Errorf("parsePRRef(%q) = %q, %d; want %q, %d", tt.ref, repo, n, tt.wantRepo, tt.wantNum)
			}
		})
	}
}

func TestPullRequestArgs(t *testing.T) {
	prs, err := pullRequestArgs([]string{"1", "Acme/Widgets#2", "https://github.com/acme/widgets/pull/3"}, "acme/widgets")
	if err != nil {
		t.Fatalf("pullRequestArgs: %v", err)
	}
	if len(prs) != 3 || prs[0] != 1 || prs[1] != 2 || prs[2] != 3 {
		t.Errorf("prs = %v", prs)
	}

	if _, err := pullRequestArgs([]string{"other/repo#5"}, "acme/widgets"); err == nil {
		t.Error("expected error for a PR in another repository")
	}
}

func TestRenderAssignments(t *testing.T) {
	results := []dispatcher.Result{
		{Assignment: dispatcher.Assignment{Issue: 1, Title: "Fix login", Agent: dispatcher.Copilot, Reason: "Round-robin distribution"}, Applied: true},
		{Assignment: dispatcher.Assignment{Issue: 2, Title: "Add docs", Agent: dispatcher.Jules, Reason: "Round-robin distribution", RiskScore: 10}, Err: errors.New("boom")},
	}
	var buf bytes.Buffer
	renderAssignments(&buf, results, false)
	out := buf.String()
	for _, want := range []string{"#1", "Fix login", "copilot", "#2", "jules", "risk 10", "failed: boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	renderAssignments(&buf, nil, true)
	if !strings.Contains(buf.String(), "No issues") {
		t.Errorf("empty output = %q", buf.String())
	}
}

func TestRenderOutcomes(t *testing.T) {
	outcomes := []guardian.Outcome{
		{PR: 10, Decision: guardian.AutoMerge{Confidence: 90}, Action: "merged", Applied: true},
		{PR: 11, Decision: guardian.Escalate{Confidence: 50, Threshold: 70}, Action: "escalated"},
		{PR: 12, Err: errors.New("not found")},
	}
	var buf bytes.Buffer
	renderOutcomes(&buf, outcomes)
	out := buf.String()
	for _, want := range []string{"#10", "auto-merge (confidence 90)", "merged", "confidence 50 < threshold 70", "#12", "not found"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

const localDiff = `diff --git a/pkg/hello.go b/pkg/hello.go
new file mode 100644
index 0000000..e69de29
--- /dev/null
+++ b/pkg/hello.go
@@ -0,0 +1,3 @@
+package pkg
+
+func Hello() string { return "hello" }
diff --git a/pkg/hello_test.go b/pkg/hello_test.go
index abc1234..def5678 100644
--- a/pkg/hello_test.go
+++ b/pkg/hello_test.go
@@ -1,3 +1,3 @@
 package pkg
-// old
+// new
 import "testing"
`

func TestGuardianLocalDiff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "change.diff")
	if err := os.WriteFile(path, []byte(localDiff), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "guardian", "--diff-file", path, "--ci-passed", "--approved")
	if err != nil {
		t.Fatalf("guardian: %v", err)
	}
	for _, want := range []string{"auto-merge (confidence 100)", "2 files, +4 -1", "Confidence: 100"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHistoryCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()
	store, err := history.Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	results := []dispatcher.Result{
		{Assignment: dispatcher.Assignment{Issue: 4, Title: "Flaky test", Agent: dispatcher.Jules}, Applied: true},
	}
	if err := store.RecordAssignments(ctx, history.NewRunID(), results); err != nil {
		t.Fatal(err)
	}
	outcome := guardian.Outcome{PR: 8, Decision: guardian.Blocked{Reason: "label do-not-merge"}, Action: "none"}
	if err := store.RecordDecision(ctx, history.NewRunID(), outcome); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	t.Setenv(config.EnvHistoryPath, path)
	out, err := execute(t, "history", "--limit", "5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, want := range []string{"#4", "Flaky test", "jules", "#8", "blocked", "label do-not-merge"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderLocalDecision_Blocked(t *testing.T) {
	cs := &types.ChangeSet{ChangedPaths: []string{"a.go"}, Blocker: "frozen"}
	var buf bytes.Buffer
	renderLocalDecision(&buf, guardian.New(70).Evaluate(cs), guardian.Assess(cs), cs)
	if !strings.Contains(buf.String(), "blocked: frozen") {
		t.Errorf("output = %q", buf.String())
	}
}
