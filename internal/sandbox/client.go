// Package sandbox provides the optional container-isolated agent execution
// backend selected by ExecutionConfig (sandbox bool, docker_image string).
// Adapted from internal/docker/client.go: same low-level Docker API
// wrapper, narrowed to the create/exec/stop lifecycle one sandboxed task
// run needs.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
)

// APIClient is the subset of the Docker SDK the sandbox exercises;
// narrowing to an interface keeps unit tests off a real daemon.
type APIClient interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerExecCreate(ctx context.Context, container string, config container.ExecOptions) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecStartOptions) (types.HijackedResponse, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

// DockerClient wraps the official Docker client with the high-level
// lifecycle operations one sandboxed task run needs.
type DockerClient struct {
	api APIClient
}

// NewDockerClient connects using the ambient Docker environment
// (DOCKER_HOST etc.), negotiating the API version against the daemon.
func NewDockerClient() (*DockerClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox: create docker client: %w", err)
	}
	return &DockerClient{api: cli}, nil
}

// Close releases the underlying daemon connection.
func (c *DockerClient) Close() error {
	return c.api.Close()
}

// CheckDaemon verifies the Docker daemon is reachable before any task
// is admitted into sandboxed mode.
func (c *DockerClient) CheckDaemon(ctx context.Context) error {
	if _, err := c.api.Ping(ctx); err != nil {
		return fmt.Errorf("sandbox: docker daemon not reachable: %w", err)
	}
	return nil
}

// ImageExists reports whether imageRef is already present locally.
func (c *DockerClient) ImageExists(ctx context.Context, imageRef string) (bool, error) {
	images, err := c.api.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return false, fmt.Errorf("sandbox: list images: %w", err)
	}

	normalized := imageRef
	if !strings.Contains(imageRef, ":") {
		normalized = imageRef + ":latest"
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == imageRef || tag == normalized {
				return true, nil
			}
		}
		if len(img.ID) >= 12 && len(imageRef) >= 12 && imageRef == img.ID[:12] {
			return true, nil
		}
		if imageRef == img.ID {
			return true, nil
		}
	}
	return false, nil
}

// PullImage pulls imageRef, draining and discarding the progress stream
// aside from surfacing the first error.
func (c *DockerClient) PullImage(ctx context.Context, imageRef string) error {
	reader, err := c.api.ImagePull(ctx, imageRef, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("sandbox: pull image %s: %w", imageRef, err)
	}
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	for {
		var msg jsonmessage.JSONMessage
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			continue
		}
		if msg.Error != nil {
			return fmt.Errorf("sandbox: pull failed: %s", msg.Error.Message)
		}
	}
	return nil
}

// RunContainer creates and starts a long-lived container with workspace
// bind-mounted at /workspace, ready to receive Exec calls.
func (c *DockerClient) RunContainer(ctx context.Context, imageRef, workspace string, extraEnv []string) (string, error) {
	resp, err := c.api.ContainerCreate(ctx,
		&container.Config{
			Image:      imageRef,
			Tty:        true,
			OpenStdin:  true,
			WorkingDir: "/workspace",
			Cmd:        []string{"/bin/sh"},
			Env:        extraEnv,
		},
		&container.HostConfig{
			Binds: []string{fmt.Sprintf("%s:/workspace", workspace)},
		}, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("sandbox: create container: %w", err)
	}

	if err := c.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("sandbox: start container: %w", err)
	}
	return resp.ID, nil
}

// Exec runs cmd inside containerID and returns its combined stdout+stderr.
func (c *DockerClient) Exec(ctx context.Context, containerID string, cmd []string) (string, error) {
	execConfig := container.ExecOptions{Cmd: cmd, AttachStdout: true, AttachStderr: true}

	created, err := c.api.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		return "", fmt.Errorf("sandbox: create exec: %w", err)
	}

	attached, err := c.api.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return "", fmt.Errorf("sandbox: attach exec: %w", err)
	}
	defer attached.Close()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, attached.Reader); err != nil {
		return "", fmt.Errorf("sandbox: read exec output: %w", err)
	}
	return outBuf.String() + errBuf.String(), nil
}

// StopContainer stops and force-removes containerID, freeing its
// resources once a task's agent run finishes or is cancelled.
func (c *DockerClient) StopContainer(ctx context.Context, containerID string) error {
	_ = c.api.ContainerStop(ctx, containerID, container.StopOptions{})
	return c.api.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}
