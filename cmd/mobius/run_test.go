package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubular-health/mobius/internal/debuglog"
	"github.com/tubular-health/mobius/internal/graphmodel"
	"github.com/tubular-health/mobius/internal/notify"
	"github.com/tubular-health/mobius/internal/runtimestate"
)

func testGraph(t *testing.T) *graphmodel.TaskGraph {
	t.Helper()
	records := []graphmodel.IssueRecord{
		{ID: "1", Identifier: "ENG-1", Title: "first", Status: "Todo"},
		{ID: "2", Identifier: "ENG-2", Title: "second", Status: "Todo"},
	}
	g, err := graphmodel.Build("p", "ENG", records)
	require.NoError(t, err)
	return g
}

func TestSummarize_NoRuntimeState(t *testing.T) {
	dir := t.TempDir()
	s := summarize(testGraph(t), dir)
	assert.Equal(t, runSummary{}, s)
}

func TestSummarize_DerivesFromPersistedState(t *testing.T) {
	dir := t.TempDir()
	store := runtimestate.NewStore(dir)

	start := time.Now().Add(-time.Minute).UTC()
	state := &runtimestate.State{
		ParentID:  "p",
		StartedAt: start,
		CompletedTasks: []runtimestate.FinishedTask{
			{ID: "1", CompletedAt: start.Add(time.Second), DurationMS: 1000},
		},
		FailedTasks: []runtimestate.FinishedTask{
			{ID: "2", CompletedAt: start.Add(2 * time.Second), Reason: "boom"},
		},
	}
	require.NoError(t, store.Write(state))

	s := summarize(testGraph(t), dir)
	assert.Equal(t, 1, s.Done)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 0, s.Blocked)
	assert.True(t, s.Elapsed >= 0)
}

func TestVerbosityFromConfig(t *testing.T) {
	defer viper.Reset()

	viper.Set("tui.verbosity", "minimal")
	assert.Equal(t, debuglog.Minimal, verbosityFromConfig())

	viper.Set("tui.verbosity", "verbose")
	assert.Equal(t, debuglog.Verbose, verbosityFromConfig())

	viper.Set("tui.verbosity", "")
	assert.Equal(t, debuglog.Normal, verbosityFromConfig())
}

func TestRunCmdFlags(t *testing.T) {
	flag := runCmd.Flags().Lookup("max-parallel")
	assert.NotNil(t, flag, "max-parallel flag should exist")
}

func TestRunCmdArgs(t *testing.T) {
	assert.NoError(t, runCmd.Args(runCmd, []string{"ENG-1"}))
	assert.Error(t, runCmd.Args(runCmd, []string{}))
	assert.Error(t, runCmd.Args(runCmd, []string{"ENG-1", "ENG-2"}))
}

// TestNotifyCompletion_DisabledManagerDoesNotPanic exercises the
// post-run notification path with Slack disabled (no bot token, no
// notifications.slack.enabled) — notifyCompletion must still be safe
// to call with a context.Background(), even after the run ctx that
// drove the scheduler was already cancelled.
func TestNotifyCompletion_DisabledManagerDoesNotPanic(t *testing.T) {
	os.Unsetenv("SLACK_BOT_USER_TOKEN")
	defer viper.Reset()
	viper.Set("notifications.slack.enabled", false)

	m := notify.NewManager(func(string, ...interface{}) {})

	assert.NotPanics(t, func() {
		notifyCompletion(context.Background(), m, "ENG", runSummary{Done: 2, Failed: 1})
	})
}
