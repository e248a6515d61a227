package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/diff"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/guardian"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/history"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/types"
)

var guardianCmd = &cobra.Command{
	Use:   "guardian [PR...]",
	Short: "Decide whether pull requests may merge automatically",
	Long: `Evaluate pull requests and merge, escalate or block each one.

PRs may be given as numbers, owner/repo#123 or full GitHub URLs. With --all every
open PR matching the guardian label filter is evaluated.

With --diff the change set comes from a local git diff instead of GitHub and the
decision is only printed. CI and review state then come from --ci-passed and --approved.`,
	RunE: runGuardian,
}

func init() {
	f := guardianCmd.Flags()
	f.Int("threshold", -1, "auto-merge confidence threshold 0-100 (default from config)")
	f.Bool("dry-run", false, "evaluate without merging, labeling or commenting")
	f.Bool("all", false, "evaluate every open pull request")
	f.String("diff", "", "evaluate a local `range` such as main...HEAD instead of a pull request")
	f.String("diff-file", "", "evaluate a unified diff read from `file` (- for stdin)")
	f.Bool("ci-passed", false, "local mode: treat CI as passed")
	f.Bool("approved", false, "local mode: treat the change as approved")
	f.String("blocker", "", "local mode: block auto-merge with this reason")
}

func runGuardian(cmd *cobra.Command, args []string) error {
	g, err := guardianFromFlags(cmd)
	if err != nil {
		return err
	}

	diffRange, _ := cmd.Flags().GetString("diff")
	diffFile, _ := cmd.Flags().GetString("diff-file")
	if cmd.Flags().Changed("diff") || diffFile != "" {
		cs, err := localChangeSet(cmd, diffRange, diffFile)
		if err != nil {
			return err
		}
		renderLocalDecision(cmd.OutOrStdout(), g.Evaluate(cs), guardian.Assess(cs), cs)
		return nil
	}

	ctx := cmd.Context()
	client, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	prs, err := pullRequestArgs(args, client.Repository())
	if err != nil {
		return err
	}
	if all, _ := cmd.Flags().GetBool("all"); all {
		open, err := client.ListOpenPullRequests(ctx, cfg.Guardian.LabelFilter)
		if err != nil {
			return err
		}
		prs = append(prs, open...)
	}
	if len(prs) == 0 {
		return errors.New("no pull requests given: pass PR numbers or --all")
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	rc := cfg.Runner(nil, dryRun)
	rc.Guardian = g
	outcomes, err := guardian.NewRunner(client, rc).ProcessAll(ctx, prs)
	renderOutcomes(cmd.OutOrStdout(), outcomes)
	if err != nil {
		return err
	}

	if !dryRun {
		recordDecisions(cmd, outcomes)
	}
	return nil
}

func guardianFromFlags(cmd *cobra.Command) (*guardian.Guardian, error) {
	threshold := cfg.Guardian.Threshold
	if cmd.Flags().Changed("threshold") {
		threshold, _ = cmd.Flags().GetInt("threshold")
		if threshold < 0 || threshold > 100 {
			return nil, fmt.Errorf("--threshold %d out of range [0,100]", threshold)
		}
	}
	return guardian.New(threshold), nil
}

// localChangeSet builds a change set from a git range or diff file plus the local-mode flags.
func localChangeSet(cmd *cobra.Command, diffRange, diffFile string) (*types.ChangeSet, error) {
	var raw string
	switch diffFile {
	case "":
		out, err := diff.Git(cmd.Context(), ".", strings.Fields(diffRange)...)
		if err != nil {
			return nil, err
		}
		raw = out
	case "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read diff from stdin: %w", err)
		}
		raw = string(b)
	default:
		b, err := os.ReadFile(diffFile)
		if err != nil {
			return nil, fmt.Errorf("read diff: %w", err)
		}
		raw = string(b)
	}

	cs, err := diff.ChangeSet(raw)
	if err != nil {
		return nil, err
	}
	cs.CIPassed, _ = cmd.Flags().GetBool("ci-passed")
	cs.ReviewApproved, _ = cmd.Flags().GetBool("approved")
	cs.Blocker, _ = cmd.Flags().GetString("blocker")
	return cs, nil
}

// pullRequestArgs parses PR references. References to another repository are rejected.
func pullRequestArgs(args []string, repository string) ([]int, error) {
	prs := make([]int, 0, len(args))
	for _, arg := range args {
		repo, n, err := parsePRRef(arg)
		if err != nil {
			return nil, err
		}
		if repo != "" && !strings.EqualFold(repo, repository) {
			return nil, fmt.Errorf("%s is not in %s", arg, repository)
		}
		prs = append(prs, n)
	}
	return prs, nil
}

// parsePRRef accepts 123, #123, owner/repo#123 or https://github.com/owner/repo/pull/123.
// repo is empty for bare numbers.
func parsePRRef(ref string) (repo string, number int, err error) {
	if rest, ok := strings.CutPrefix(ref, "https://github.com/"); ok {
		parts := strings.Split(rest, "/")
		if len(parts) < 4 || parts[2] != "pull" {
			return "", 0, fmt.Errorf("invalid GitHub PR URL: %s", ref)
		}
		repo, ref = parts[0]+"/"+parts[1], parts[3]
	} else if before, after, ok := strings.Cut(ref, "#"); ok {
		if before != "" && strings.Count(before, "/") != 1 {
			return "", 0, fmt.Errorf("invalid PR shorthand (expected owner/repo#number): %s", ref)
		}
		repo, ref = before, after
	}

	number, err = strconv.Atoi(ref)
	if err != nil || number <= 0 {
		return "", 0, fmt.Errorf("invalid PR number: %q", ref)
	}
	return repo, number, nil
}

func recordDecisions(cmd *cobra.Command, outcomes []guardian.Outcome) {
	store, err := openHistory(cmd.Context())
	if err != nil {
		slog.Warn("Failed to open history", "component", "cli", "error", err)
		return
	}
	if store == nil {
		return
	}
	defer func() { _ = store.Close() }()

	run := history.NewRunID()
	for _, out := range outcomes {
		if err := store.RecordDecision(cmd.Context(), run, out); err != nil {
			slog.Warn("Failed to record decision", "component", "cli", "pr", out.PR, "error", err)
		}
	}
}
