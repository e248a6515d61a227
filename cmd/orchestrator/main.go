// Package main implements the orchestrator CLI: route issues to coding agents and
// decide which pull requests may merge without a human.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/config"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/github"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/history"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "orchestrator",
	Short:         "Dispatch issues to coding agents and gate pull request merges",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if repo, _ := cmd.Flags().GetString("repo"); repo != "" {
			loaded.Repository = repo
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default "+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().StringP("repo", "r", "", "repository as owner/repo (overrides config and "+config.EnvRepository+")")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(dispatchCmd, guardianCmd, historyCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newClient connects to the configured repository.
func newClient(ctx context.Context) (*github.Client, error) {
	if cfg.Repository == "" {
		return nil, fmt.Errorf("no repository configured: pass --repo owner/repo or set %s", config.EnvRepository)
	}
	client, err := github.New(ctx, cfg.GitHubClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	return client, nil
}

// openHistory opens the run ledger, or returns nil when history is disabled.
func openHistory(ctx context.Context) (*history.Store, error) {
	if cfg.History.Path == "" {
		return nil, nil
	}
	store, err := history.Open(ctx, cfg.History.Path)
	if err != nil {
		return nil, err
	}
	return store, nil
}
