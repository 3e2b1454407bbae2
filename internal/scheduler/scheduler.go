// Package scheduler implements the admission loop: the core
// Scheduler/Executor that turns a TaskGraph's ready frontier into running
// agent processes, respects the configured parallelism cap, retries
// failures with backoff, and persists runtime state once per loop tick
// (completions are written at the next tick, not as they happen).
// Grounded on a ticker-driven loop and a per-item spawn/exec/finalize
// lifecycle, adapted from a poll-and-spawn-container model to a
// DAG-driven host-process model using internal/agentcmd and
// internal/worktree.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/tubular-health/mobius/internal/agentcmd"
	"github.com/tubular-health/mobius/internal/debuglog"
	"github.com/tubular-health/mobius/internal/graphmodel"
	"github.com/tubular-health/mobius/internal/runtimestate"
	"github.com/tubular-health/mobius/internal/sandbox"
	"github.com/tubular-health/mobius/internal/worktree"
)

// Config mirrors the execution section of the loaded configuration.
type Config struct {
	MaxParallel           int
	MaxIterations         int
	DelaySeconds          int
	RetryBackoffSeconds   int
	MaxRetries            int
	Runtime               agentcmd.Runtime
	Model                 string
	Sandbox               bool
	DockerImage           string
	RequireAllTestsPass   bool
	CoverageThreshold     float64
	GracePeriod           time.Duration
}

// Sandbox is the subset of sandbox.Sandbox the scheduler depends on; nil
// when Config.Sandbox is false.
type Sandbox interface {
	EnsureImage(ctx context.Context) error
	Run(ctx context.Context, worktreePath string, runtime agentcmd.Runtime, opts agentcmd.Options, env []string) (sandbox.Result, error)
}

// Metrics is the subset of metrics.Metrics the scheduler records to; a
// nil Metrics (the zero value of the Scheduler field) is a valid no-op.
type Metrics interface {
	IncTask(status string)
	SetActiveAgents(n int)
}

// runner abstracts process execution so tests never spawn a real agent
// CLI; RealRunner shells out via os/exec, matching spawner_docker.go's
// "cd <dir> && <cmd>" shape but on the host instead of inside a container.
type runner interface {
	Start(ctx context.Context, worktreePath, cmdline string) (wait func() error, kill func(), err error)
}

// RealRunner execs the command line via `sh -c`, rooted at worktreePath.
type RealRunner struct{}

func (RealRunner) Start(ctx context.Context, worktreePath, cmdline string) (func() error, func(), error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	cmd.Dir = worktreePath
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("scheduler: start agent process: %w", err)
	}
	kill := func() {
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
		}
	}
	wait := func() error { return cmd.Wait() }
	return wait, kill, nil
}

// Scheduler admits ready sub-tasks up to Config.MaxParallel, running each
// in its own worktree and persisting progress to runtimestate at the end
// of every loop tick; the finalizers do not persist on their own.
type Scheduler struct {
	cfg       Config
	graph     *graphmodel.TaskGraph
	worktrees *worktree.Manager
	store     *runtimestate.Store
	repoDir   string
	baseRef   string
	root      string
	runner    runner
	logger    *slog.Logger

	sandbox Sandbox
	metrics Metrics

	mu             sync.Mutex
	active         map[string]runtimestate.ActiveTask
	completed      map[string]bool
	completedDur   map[string]time.Duration
	failed         map[string]bool
	failReason     map[string]string
	attempts       map[string]int
}

// WithSandbox attaches the sandbox runner used when Config.Sandbox is
// true; sb is ignored when Config.Sandbox is false.
func (s *Scheduler) WithSandbox(sb Sandbox) *Scheduler {
	s.sandbox = sb
	return s
}

// WithMetrics attaches the Prometheus recorder; m may be nil to disable
// metrics recording.
func (s *Scheduler) WithMetrics(m Metrics) *Scheduler {
	s.metrics = m
	return s
}

// New builds a Scheduler over graph, rooted at repoDir with worktrees
// created under root (per task, at root/<identifier>; see worktreeDefaultPath).
func New(cfg Config, graph *graphmodel.TaskGraph, wt *worktree.Manager, store *runtimestate.Store, repoDir, baseRef, root string, logger *slog.Logger) *Scheduler {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 5 * time.Second
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 1000
	}
	return &Scheduler{
		cfg:       cfg,
		graph:     graph,
		worktrees: wt,
		store:     store,
		repoDir:   repoDir,
		baseRef:   baseRef,
		root:      root,
		runner:    RealRunner{},
		logger:    logger,
		active:       make(map[string]runtimestate.ActiveTask),
		completed:    make(map[string]bool),
		completedDur: make(map[string]time.Duration),
		failed:       make(map[string]bool),
		failReason:   make(map[string]string),
		attempts:     make(map[string]int),
	}
}

// Run drives the admission loop until every task is terminal (Done or
// Failed past its retry budget), ctx is cancelled, or MaxIterations is
// exhausted. Each tick is one iteration (compute frontier, admit up to
// capacity, persist); the tick interval is DelaySeconds — "wait for any
// active child to exit, or for delay_seconds to elapse, whichever comes
// first" — approximated here by a fixed poll rather than a per-child
// wait, since admission already runs each task in its own goroutine.
func (s *Scheduler) Run(ctx context.Context, loopPID int) error {
	s.logger.Info("scheduler starting", "max_parallel", s.cfg.MaxParallel, "max_iterations", s.cfg.MaxIterations, "tasks", len(s.graph.Tasks))

	delay := 500 * time.Millisecond
	if s.cfg.DelaySeconds > 0 {
		delay = time.Duration(s.cfg.DelaySeconds) * time.Second
	}

	var wg sync.WaitGroup
	tick := time.NewTicker(delay)
	defer tick.Stop()

	iteration := 0
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-tick.C:
			iteration++
			if s.cfg.MaxIterations > 0 && iteration > s.cfg.MaxIterations {
				wg.Wait()
				s.persist(loopPID)
				return fmt.Errorf("scheduler: exceeded max_iterations (%d) before all tasks reached a terminal state", s.cfg.MaxIterations)
			}

			if s.allTerminal() {
				wg.Wait()
				s.persist(loopPID)
				return nil
			}

			frontier := graphmodel.ReadyFrontier(s.graph, s.activeSet(), s.completed, s.failed)
			for _, task := range frontier {
				if s.atCapacity() {
					break
				}
				s.admit(ctx, &wg, task)
			}
			s.persist(loopPID)
		}
	}
}

func (s *Scheduler) atCapacity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) >= s.cfg.MaxParallel
}

func (s *Scheduler) activeSet() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.active))
	for id := range s.active {
		out[id] = true
	}
	return out
}

func (s *Scheduler) allTerminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.graph.Tasks {
		if !s.completed[id] && !s.failed[id] {
			return false
		}
	}
	return true
}

func (s *Scheduler) admit(ctx context.Context, wg *sync.WaitGroup, task *graphmodel.SubTask) {
	worktreePath := worktreeDefaultPath(s.root, task.Identifier)
	branch := fmt.Sprintf("mobius/%s", task.Identifier)

	if err := s.worktrees.Create(worktreePath, branch, s.baseRef); err != nil {
		s.logger.Error("failed to create worktree", "task", task.Identifier, "error", err)
		debuglog.Emit(debuglog.TaskStateChange, "scheduler", task.Identifier, map[string]any{"error": err.Error()})
		s.markFailed(task.ID, "worktree creation failed")
		return
	}

	s.mu.Lock()
	s.active[task.ID] = runtimestate.ActiveTask{ID: task.ID, StartedAt: time.Now(), Worktree: worktreePath}
	s.mu.Unlock()

	opts := agentcmd.Options{
		Worktree:            worktreePath,
		Skill:               "implement",
		Identifier:          task.Identifier,
		Model:               s.cfg.Model,
		RequireAllTestsPass: s.cfg.RequireAllTestsPass,
		CoverageThreshold:   s.cfg.CoverageThreshold,
		OutputFormat:        "stream-json",
	}

	if s.cfg.Sandbox && s.sandbox != nil {
		wg.Add(1)
		go func(t *graphmodel.SubTask) {
			defer wg.Done()
			s.runTaskSandboxed(ctx, t, worktreePath, opts)
		}(task)
		return
	}

	cmdline := s.cfg.Runtime.BuildCommand(opts)
	wg.Add(1)
	go func(t *graphmodel.SubTask) {
		defer wg.Done()
		s.runTask(ctx, t, worktreePath, cmdline)
	}(task)
}

// runTaskSandboxed executes task inside s.sandbox rather than as a host
// process, for Config.Sandbox deployments (execution.sandbox enabled).
func (s *Scheduler) runTaskSandboxed(ctx context.Context, task *graphmodel.SubTask, worktreePath string, opts agentcmd.Options) {
	start := time.Now()
	if err := s.sandbox.EnsureImage(ctx); err != nil {
		s.finalizeFailure(task, err, nil)
		return
	}
	if _, err := s.sandbox.Run(ctx, worktreePath, s.cfg.Runtime, opts, nil); err != nil {
		s.finalizeFailure(task, err, nil)
		return
	}
	s.finalizeSuccess(task, start)
}

func (s *Scheduler) runTask(ctx context.Context, task *graphmodel.SubTask, worktreePath, cmdline string) {
	start := time.Now()
	wait, kill, err := s.runner.Start(ctx, worktreePath, cmdline)
	if err != nil {
		s.finalizeFailure(task, err, kill)
		return
	}

	done := make(chan error, 1)
	go func() { done <- wait() }()

	select {
	case <-ctx.Done():
		kill()
		time.Sleep(s.cfg.GracePeriod)
		s.finalizeFailure(task, ctx.Err(), nil)
	case err := <-done:
		if err != nil {
			s.finalizeFailure(task, err, nil)
			return
		}
		s.finalizeSuccess(task, start)
	}
}

func (s *Scheduler) finalizeSuccess(task *graphmodel.SubTask, start time.Time) {
	s.mu.Lock()
	delete(s.active, task.ID)
	s.completed[task.ID] = true
	s.completedDur[task.ID] = time.Since(start)
	graphmodel.RecomputeBlocked(s.graph, s.completed, s.failed)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.IncTask("Done")
	}
	debuglog.Emit(debuglog.TaskStateChange, "scheduler", task.Identifier, map[string]any{"status": "Done"})
}

func (s *Scheduler) finalizeFailure(task *graphmodel.SubTask, runErr error, kill func()) {
	if kill != nil {
		kill()
	}

	s.mu.Lock()
	s.attempts[task.ID]++
	attempt := s.attempts[task.ID]
	s.mu.Unlock()

	if attempt <= s.cfg.MaxRetries {
		s.logger.Warn("task failed, retrying", "task", task.Identifier, "attempt", attempt, "error", runErr)
		time.Sleep(time.Duration(s.cfg.RetryBackoffSeconds) * time.Second)
		s.mu.Lock()
		delete(s.active, task.ID)
		s.mu.Unlock()
		return
	}

	s.logger.Error("task failed permanently", "task", task.Identifier, "error", runErr)
	reason := "max retries exceeded"
	if runErr != nil {
		reason = runErr.Error()
	}
	s.markFailed(task.ID, reason)
}

func (s *Scheduler) markFailed(id, reason string) {
	s.mu.Lock()
	delete(s.active, id)
	s.failed[id] = true
	s.failReason[id] = reason
	graphmodel.RecomputeBlocked(s.graph, s.completed, s.failed)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.IncTask("Failed")
	}
}

func (s *Scheduler) persist(loopPID int) {
	s.mu.Lock()
	state := &runtimestate.State{
		ParentID:    s.graph.ParentID,
		ParentTitle: s.graph.ParentIdentifier,
		LoopPID:     loopPID,
		TotalTasks:  len(s.graph.Tasks),
		UpdatedAt:   time.Now(),
	}
	for _, at := range s.active {
		state.ActiveTasks = append(state.ActiveTasks, at)
	}
	for id := range s.completed {
		state.CompletedTasks = append(state.CompletedTasks, runtimestate.FinishedTask{
			ID:          id,
			CompletedAt: time.Now(),
			DurationMS:  s.completedDur[id].Milliseconds(),
		})
	}
	for id := range s.failed {
		state.FailedTasks = append(state.FailedTasks, runtimestate.FinishedTask{ID: id, CompletedAt: time.Now(), Reason: s.failReason[id]})
	}
	activeCount := len(s.active)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetActiveAgents(activeCount)
	}
	if err := s.store.Write(state); err != nil {
		s.logger.Error("failed to persist runtime state", "error", err)
	}
}

func worktreeDefaultPath(root, identifier string) string {
	return root + "/" + identifier
}
