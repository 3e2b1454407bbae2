package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tubular-health/mobius/internal/agentcmd"
	"github.com/tubular-health/mobius/internal/debuglog"
	"github.com/tubular-health/mobius/internal/graphmodel"
	"github.com/tubular-health/mobius/internal/issuetracker"
	"github.com/tubular-health/mobius/internal/notify"
	"github.com/tubular-health/mobius/internal/runtimestate"
	"github.com/tubular-health/mobius/internal/sandbox"
	"github.com/tubular-health/mobius/internal/scheduler"
	"github.com/tubular-health/mobius/internal/worktree"
)

var runCmd = &cobra.Command{
	Use:   "run <parent-id>",
	Short: "Decompose a parent issue and run its sub-tasks to completion",
	Long: `run loads configuration, builds the sub-task dependency graph from the
configured issue tracker backend, and drives the Scheduler's admission
loop until every sub-task reaches a terminal state or the process is
cancelled.`,
	Args: cobra.ExactArgs(1),
	RunE: executeRunCmd,
}

func init() {
	runCmd.Flags().Int("max-parallel", 0, "override loop.max_parallel (the parallel agent cap)")
	viper.BindPFlag("execution.max_parallel_agents_flag", runCmd.Flags().Lookup("max-parallel"))
	rootCmd.AddCommand(runCmd)
}

func executeRunCmd(cmd *cobra.Command, args []string) error {
	parentID := args[0]
	projectDir := viper.GetString("project-dir")
	if projectDir == "" {
		projectDir = "."
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default().With("component", "run", "parent", parentID)

	client, err := issuetracker.New(issuetracker.Config{
		Backend:    viper.GetString("tracker.backend"),
		BaseURL:    viper.GetString("tracker.base_url"),
		Username:   viper.GetString("tracker.username"),
		APIToken:   viper.GetString("tracker.api_token"),
		ProjectDir: projectDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(2)
		return nil
	}

	parent, subtasks, err := client.FetchParentAndSubtasks(ctx, parentID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to fetch %s: %v\n", parentID, err)
		exit(2)
		return nil
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
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(2)
		return nil
	}

	executionDir := filepath.Join(projectDir, ".mobius", "issues", parent.Identifier, "execution")
	store := runtimestate.NewStore(executionDir)

	if _, err := debuglog.Initialize(executionDir, verbosityFromConfig()); err != nil {
		logger.Warn("debug logger disabled", "error", err)
	}

	runtime, err := agentcmd.ParseRuntime(viper.GetString("execution.runtime"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(2)
		return nil
	}

	maxParallel := viper.GetInt("loop.max_parallel")
	if f := viper.GetInt("execution.max_parallel_agents_flag"); f > 0 {
		maxParallel = f
	}

	cfg := scheduler.Config{
		MaxParallel:         maxParallel,
		MaxIterations:       viper.GetInt("execution.max_iterations"),
		DelaySeconds:        viper.GetInt("execution.delay_seconds"),
		RetryBackoffSeconds: viper.GetInt("execution.retry_backoff_seconds"),
		MaxRetries:          viper.GetInt("execution.max_retries"),
		Runtime:             runtime,
		Model:               viper.GetString("execution.model"),
		Sandbox:             viper.GetBool("execution.sandbox"),
		DockerImage:         viper.GetString("execution.docker_image"),
		RequireAllTestsPass: viper.GetBool("verification.require_all_tests_pass"),
		CoverageThreshold:   viper.GetFloat64("verification.coverage_threshold"),
	}

	worktreeRoot := viper.GetString("execution.worktree_path")
	if worktreeRoot == "" {
		worktreeRoot = filepath.Join(projectDir, ".mobius", "worktrees")
	}
	baseBranch := viper.GetString("execution.base_branch")
	if baseBranch == "" {
		baseBranch = "main"
	}
	wt := worktree.New(projectDir)

	sched := scheduler.New(cfg, graph, wt, store, projectDir, baseBranch, worktreeRoot, logger)
	if procMetrics != nil {
		sched.WithMetrics(procMetrics)
	}

	if cfg.Sandbox {
		dc, err := sandbox.NewDockerClient()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: sandbox requested but docker unavailable: %v\n", err)
			exit(2)
			return nil
		}
		sched.WithSandbox(sandbox.New(dc, cfg.DockerImage))
	}

	notifier := notify.NewManager(func(format string, a ...interface{}) { logger.Info(fmt.Sprintf(format, a...)) })
	notifier.Start(ctx)
	notifier.Notify(ctx, notify.EventStart, fmt.Sprintf("mobius: starting %s (%d sub-tasks)", parent.Identifier, len(graph.Tasks)), "")

	runErr := sched.Run(ctx, os.Getpid())

	final := summarize(graph, executionDir)
	printSummary(parent.Identifier, final)

	notifyCompletion(context.Background(), notifier, parent.Identifier, final)

	if runErr != nil && ctx.Err() != nil {
		exit(130)
		return nil
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		exit(1)
		return nil
	}
	if final.Failed > 0 {
		exit(1)
		return nil
	}
	return nil
}

type runSummary struct {
	Done, Failed, Blocked int
	Elapsed                time.Duration
}

// summarize re-derives terminal counts from the final runtime-state.json
// the scheduler persisted, the same read-only path the Dashboard uses.
func summarize(graph *graphmodel.TaskGraph, executionDir string) runSummary {
	reader := runtimestate.NewReader(executionDir)
	state, err := reader.Read()
	if err != nil || state == nil {
		return runSummary{}
	}

	completed := make(map[string]bool, len(state.CompletedTasks))
	for _, c := range state.CompletedTasks {
		completed[c.ID] = true
	}
	failed := make(map[string]bool, len(state.FailedTasks))
	for _, f := range state.FailedTasks {
		failed[f.ID] = true
	}

	graphmodel.RecomputeBlocked(graph, completed, failed)
	stats := graphmodel.Stats(graph, map[string]bool{}, completed, failed)

	var elapsed time.Duration
	if !state.StartedAt.IsZero() {
		elapsed = state.UpdatedAt.Sub(state.StartedAt)
	}

	return runSummary{Done: stats.Done, Failed: stats.Failed, Blocked: stats.Blocked, Elapsed: elapsed}
}

func printSummary(parentIdentifier string, s runSummary) {
	fmt.Printf("\n%s: Done %d / Failed %d / Blocked %d (elapsed %s)\n",
		parentIdentifier, s.Done, s.Failed, s.Blocked, s.Elapsed.Round(time.Second))
}

func notifyCompletion(ctx context.Context, m *notify.Manager, parentIdentifier string, s runSummary) {
	eventType := notify.EventSuccess
	if s.Failed > 0 {
		eventType = notify.EventFailure
	}
	msg := fmt.Sprintf("%s complete: Done %d / Failed %d / Blocked %d", parentIdentifier, s.Done, s.Failed, s.Blocked)
	m.Notify(ctx, eventType, msg, "")
	if s.Failed == 0 {
		m.Notify(ctx, notify.EventProjectComplete, msg, "")
	}
}

func verbosityFromConfig() debuglog.Verbosity {
	switch viper.GetString("tui.verbosity") {
	case "minimal":
		return debuglog.Minimal
	case "verbose":
		return debuglog.Verbose
	default:
		return debuglog.Normal
	}
}
