package git

import (
	"os/exec"
)

// Client handles the git interactions the Worktree Manager needs: branch
// existence checks, worktree lifecycle, and merge detection. The worktree
// operations themselves live in worktree.go.
type Client struct{}

// NewClient creates a new Git client.
func NewClient() *Client {
	return &Client{}
}

// RemoteBranchExists checks if a branch exists on the remote.
func (c *Client) RemoteBranchExists(dir, remote, branch string) (bool, error) {
	// git ls-remote --heads remote branch
	cmd := exec.Command("git", "ls-remote", "--heads", remote, branch)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return false, err
	}
	return len(out) > 0, nil
}

// LocalBranchExists checks if a branch exists locally.
func (c *Client) LocalBranchExists(dir, branch string) (bool, error) {
	// git show-ref --verify refs/heads/branch
	cmd := exec.Command("git", "show-ref", "--verify", "refs/heads/"+branch)
	cmd.Dir = dir
	if err := cmd.Run(); err != nil {
		return false, nil
	}
	return true, nil
}
