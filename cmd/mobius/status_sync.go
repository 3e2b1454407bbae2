package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tubular-health/mobius/internal/issuetracker"
	"github.com/tubular-health/mobius/internal/statussync"
)

var statusSyncCmd = &cobra.Command{
	Use:   "status-sync <parent-id>",
	Short: "Fetch sub-task status from the remote issue tracker",
	Long: `status-sync runs once: it fetches the remote status of every sub-task
under .mobius/issues/<parent-id>/subtasks from the configured tracker
backend and prints synced/skipped/failed counts plus one line per failed
identifier. The local snapshot files are not rewritten. A single issue's
failure is recorded and does not abort the rest of the batch.`,
	Args: cobra.ExactArgs(1),
	RunE: executeStatusSyncCmd,
}

func init() {
	rootCmd.AddCommand(statusSyncCmd)
}

func executeStatusSyncCmd(cmd *cobra.Command, args []string) error {
	parentID := args[0]
	projectDir := viper.GetString("project-dir")
	if projectDir == "" {
		projectDir = "."
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := issuetracker.New(issuetracker.Config{
		Backend:    viper.GetString("tracker.backend"),
		BaseURL:    viper.GetString("tracker.base_url"),
		Username:   viper.GetString("tracker.username"),
		APIToken:   viper.GetString("tracker.api_token"),
		ProjectDir: projectDir,
	})
	if err != nil {
		return fmt.Errorf("status-sync: %w", err)
	}

	issuesRoot := filepath.Join(projectDir, ".mobius", "issues", parentID, "subtasks")
	logger := slog.Default().With("component", "status-sync", "parent", parentID)
	syncer := statussync.New(client, issuesRoot, logger)

	result, err := syncer.Sync(ctx)
	if err != nil {
		return fmt.Errorf("status-sync: %w", err)
	}

	fmt.Printf("%s: synced %d, skipped %d, failed %d\n", parentID, len(result.Synced), len(result.Skipped), len(result.Failed))
	for id, e := range result.Failed {
		fmt.Printf("  %s: %v\n", id, e)
	}
	if len(result.Failed) > 0 {
		exit(1)
	}
	return nil
}
