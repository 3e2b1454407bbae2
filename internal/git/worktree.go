package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// AddWorktree creates a new worktree at path checked out on branch,
// branching from base if branch does not already exist locally or
// remotely. repoDir is the root of the shared repository the worktree is
// added from.
func (c *Client) AddWorktree(repoDir, path, branch, base string) error {
	localExists, err := c.LocalBranchExists(repoDir, branch)
	if err != nil {
		return fmt.Errorf("check local branch: %w", err)
	}
	remoteExists, err := c.RemoteBranchExists(repoDir, "origin", branch)
	if err != nil {
		remoteExists = false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var args []string
	switch {
	case localExists || remoteExists:
		args = []string{"worktree", "add", path, branch}
	default:
		args = []string{"worktree", "add", "-b", branch, path, base}
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoDir
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git worktree add failed: %w\n%s", err, stderr.String())
	}
	return nil
}

// RemoveWorktree removes the worktree at path. It is best-effort: an
// "already removed" error from git is swallowed.
func (c *Client) RemoveWorktree(repoDir, path string) error {
	cmd := exec.Command("git", "worktree", "remove", "--force", path)
	cmd.Dir = repoDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if strings.Contains(msg, "is not a working tree") || os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("git worktree remove failed: %w\n%s", err, msg)
	}
	return nil
}

// ListWorktrees returns the absolute paths of every worktree registered
// against repoDir, including the main one.
func (c *Client) ListWorktrees(repoDir string) ([]string, error) {
	cmd := exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = repoDir
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git worktree list failed: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(out.String(), "\n") {
		if p, ok := strings.CutPrefix(line, "worktree "); ok {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// MergeStatus reports whether an issue identifier's branch has been merged
// into base: the OR of "remote branch deleted" and "a commit on base
// mentions the identifier" — both squash-merges (which lose branch
// identity) and ordinary merges must be recognized.
type MergeStatus struct {
	IsMerged            bool
	RemoteBranchDeleted bool
	FoundInBaseLog      bool
}

// IsIssueMergedIntoBase implements the Worktree Manager's merge detection.
// If the remote check fails (e.g. no "origin" remote), RemoteBranchDeleted
// stays false and the result rests on the base-log check alone.
func (c *Client) IsIssueMergedIntoBase(repoDir, branch, identifier, base string) (MergeStatus, error) {
	var status MergeStatus
	if remoteExists, err := c.RemoteBranchExists(repoDir, "origin", branch); err == nil {
		status.RemoteBranchDeleted = !remoteExists
	}

	found, err := c.baseLogMentions(repoDir, base, identifier)
	if err != nil {
		return MergeStatus{}, err
	}
	status.FoundInBaseLog = found
	status.IsMerged = status.RemoteBranchDeleted || status.FoundInBaseLog
	return status, nil
}

func (c *Client) baseLogMentions(repoDir, base, identifier string) (bool, error) {
	cmd := exec.Command("git", "log", base, "--oneline", "--grep", identifier, "-n", "1")
	cmd.Dir = repoDir
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return false, fmt.Errorf("git log grep failed: %w", err)
	}
	return strings.TrimSpace(out.String()) != "", nil
}

// WorktreePathFor builds the canonical per-task worktree path from the
// configured template root and a task identifier.
func WorktreePathFor(root, identifier string) string {
	return filepath.Join(root, identifier)
}
