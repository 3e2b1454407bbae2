package sandbox

import (
	"context"
	"fmt"

	"github.com/tubular-health/mobius/internal/agentcmd"
)

// IClient is the subset of DockerClient one sandboxed task run depends
// on; tests substitute a fake to avoid a real daemon.
type IClient interface {
	CheckDaemon(ctx context.Context) error
	ImageExists(ctx context.Context, imageRef string) (bool, error)
	PullImage(ctx context.Context, imageRef string) error
	RunContainer(ctx context.Context, imageRef, workspace string, extraEnv []string) (string, error)
	Exec(ctx context.Context, containerID string, cmd []string) (string, error)
	StopContainer(ctx context.Context, containerID string) error
}

// Sandbox runs one task's agent invocation inside a throwaway container
// instead of directly on the host, per ExecutionConfig.sandbox.
type Sandbox struct {
	Client IClient
	Image  string
}

// New builds a Sandbox bound to image, defaulting to "mobius-agent:latest"
// when unset.
func New(client IClient, image string) *Sandbox {
	if image == "" {
		image = "mobius-agent:latest"
	}
	return &Sandbox{Client: client, Image: image}
}

// EnsureImage pulls the configured image if it is not already present
// locally; the scheduler calls it before each sandboxed task run.
func (s *Sandbox) EnsureImage(ctx context.Context) error {
	if err := s.Client.CheckDaemon(ctx); err != nil {
		return err
	}
	exists, err := s.Client.ImageExists(ctx, s.Image)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.Client.PullImage(ctx, s.Image)
}

// Result carries a sandboxed run's combined output.
type Result struct {
	Output string
}

// Run starts a container mounting worktree at /workspace, builds the
// agent command line via agentcmd, executes it under /bin/sh -c, and
// tears the container down regardless of outcome.
func (s *Sandbox) Run(ctx context.Context, worktree string, runtime agentcmd.Runtime, opts agentcmd.Options, env []string) (Result, error) {
	containerID, err := s.Client.RunContainer(ctx, s.Image, worktree, env)
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: start: %w", err)
	}
	defer s.Client.StopContainer(context.Background(), containerID)

	opts.Worktree = "/workspace"
	cmdline := runtime.BuildCommand(opts)

	output, err := s.Client.Exec(ctx, containerID, []string{"/bin/sh", "-c", cmdline})
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: exec: %w", err)
	}
	return Result{Output: output}, nil
}
