package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/dispatcher"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/history"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Route open issues to coding agents",
	Long: `Fetch open issues matching the label filter that have no agent label and no
assignee, pick an agent for each one and label (and, for Copilot, assign) it.

Strategies: round-robin, random, copilot-only, jules-only.`,
	Args: cobra.NoArgs,
	RunE: runDispatch,
}

var strategyFlag dispatcher.Strategy

func init() {
	dispatchCmd.Flags().VarP(&strategyFlag, "strategy", "s", "dispatch strategy (overrides config)")
	dispatchCmd.Flags().IntP("max-issues", "n", -1, "maximum issues to dispatch (default from config)")
	dispatchCmd.Flags().StringP("label-filter", "l", "", "only consider issues with these comma-separated labels (default from config)")
	dispatchCmd.Flags().Bool("dry-run", false, "show assignments without writing them")
}

func runDispatch(cmd *cobra.Command, _ []string) error {
	req, err := dispatchRequest(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	d := dispatcher.New(client, cfg.Engine(), nil)
	results, err := d.Dispatch(ctx, req)
	if err != nil {
		return err
	}

	renderAssignments(cmd.OutOrStdout(), results, req.DryRun)

	if !req.DryRun {
		if err := recordAssignments(cmd, results); err != nil {
			slog.Warn("Failed to record history", "component", "cli", "error", err)
		}
	}

	if n := failedAssignments(results); n > 0 {
		return fmt.Errorf("%d of %d assignments failed", n, len(results))
	}
	return nil
}

// dispatchRequest merges flags over the config values.
func dispatchRequest(cmd *cobra.Command) (dispatcher.Request, error) {
	strategy := strategyFlag
	if !cmd.Flags().Changed("strategy") {
		var err error
		if strategy, err = dispatcher.ParseStrategy(cfg.Dispatcher.Strategy); err != nil {
			return dispatcher.Request{}, err
		}
	}

	req := dispatcher.Request{
		Strategy:    strategy,
		MaxIssues:   cfg.Dispatcher.MaxIssues,
		LabelFilter: cfg.Dispatcher.LabelFilter,
	}
	if cmd.Flags().Changed("max-issues") {
		req.MaxIssues, _ = cmd.Flags().GetInt("max-issues")
		if req.MaxIssues < 0 {
			return dispatcher.Request{}, fmt.Errorf("--max-issues must not be negative")
		}
	}
	if cmd.Flags().Changed("label-filter") {
		req.LabelFilter, _ = cmd.Flags().GetString("label-filter")
	}
	req.DryRun, _ = cmd.Flags().GetBool("dry-run")
	return req, nil
}

func recordAssignments(cmd *cobra.Command, results []dispatcher.Result) error {
	store, err := openHistory(cmd.Context())
	if err != nil || store == nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return store.RecordAssignments(cmd.Context(), history.NewRunID(), results)
}

func failedAssignments(results []dispatcher.Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
