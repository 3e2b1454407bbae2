package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tubular-health/mobius/internal/dashboard"
	"github.com/tubular-health/mobius/internal/debuglog"
	"github.com/tubular-health/mobius/internal/graphmodel"
	"github.com/tubular-health/mobius/internal/issuetracker"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard <parent-id>",
	Short: "Attach a read-only dashboard to a running or finished execution",
	Long: `dashboard never writes runtime-state.json itself; it reads the graph
snapshot and the scheduler's runtime state produced by a separate
'mobius run' process (or a previous one that already finished). It exits
on its own about two seconds after every sub-task is Done or Failed, and
otherwise runs until the user quits; it exits with status 130 if the
program ends any other way.`,
	Args: cobra.ExactArgs(1),
	RunE: executeDashboardCmd,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func executeDashboardCmd(cmd *cobra.Command, args []string) error {
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
		return fmt.Errorf("dashboard: %w", err)
	}

	parent, subtasks, err := client.FetchParentAndSubtasks(ctx, parentID)
	if err != nil {
		return fmt.Errorf("dashboard: fetch %s: %w", parentID, err)
	}

	records := make([]graphmodel.IssueRecord, 0, len(subtasks))
	for _, st := range subtasks {
		rec := graphmodel.IssueRecord{ID: st.ID, Identifier: st.Identifier, Title: st.Title, Status: st.Status}
		rec.Relations.BlockedBy = st.Relations.BlockedBy
		rec.Relations.Blocks = st.Relations.Blocks
		records = append(records, rec)
	}

	graph, err := graphmodel.Build(parent.ID, parent.Identifier, records)
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}

	executionDir := filepath.Join(projectDir, ".mobius", "issues", parent.Identifier, "execution")

	var debugLogger *debuglog.Logger
	if viper.GetBool("tui.debug_panel") {
		debugLogger, err = debuglog.New(executionDir, verbosityFromConfig())
		if err != nil {
			debugLogger = nil
		}
	}

	m := dashboard.New(executionDir, graph, 0, viper.GetString("tracker.backend"), debugLogger)

	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}

	if dm, ok := finalModel.(dashboard.Model); ok && !dm.Quitting() {
		os.Exit(130)
	}
	return nil
}
