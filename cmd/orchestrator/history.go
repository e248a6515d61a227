package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/config"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent assignments and guardian decisions",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "number of entries of each kind to show")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", limit)
	}

	ctx := cmd.Context()
	store, err := openHistory(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("history is disabled: set history.path or " + config.EnvHistoryPath)
	}
	defer func() { _ = store.Close() }()

	assignments, err := store.RecentAssignments(ctx, limit)
	if err != nil {
		return err
	}
	decisions, err := store.RecentDecisions(ctx, limit)
	if err != nil {
		return err
	}
	renderHistory(cmd.OutOrStdout(), assignments, decisions)
	return nil
}
