package git

import (
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupTestRepo(t *testing.T) (string, string) {
	t.Helper()

	remoteDir, err := os.MkdirTemp("", "git-test-remote")
	require.NoError(t, err)

	cmd := exec.Command("git", "init", "--bare")
	cmd.Dir = remoteDir
	require.NoError(t, cmd.Run())

	localDir, err := os.MkdirTemp("", "git-test-local")
	require.NoError(t, err)

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = localDir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test User")
	run("remote", "add", "origin", remoteDir)
	run("commit", "--allow-empty", "-m", "initial commit")

	return localDir, remoteDir
}

func TestClient_LocalBranchExists(t *testing.T) {
	localDir, remoteDir := setupTestRepo(t)
	defer os.RemoveAll(localDir)
	defer os.RemoveAll(remoteDir)

	c := NewClient()

	exists, err := c.LocalBranchExists(localDir, "main")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = c.LocalBranchExists(localDir, "agent/MOB-1")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestClient_RemoteBranchExists(t *testing.T) {
	localDir, remoteDir := setupTestRepo(t)
	defer os.RemoveAll(localDir)
	defer os.RemoveAll(remoteDir)

	c := NewClient()

	cmd := exec.Command("git", "push", "origin", "main")
	cmd.Dir = localDir
	require.NoError(t, cmd.Run())

	exists, err := c.RemoteBranchExists(localDir, "origin", "main")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = c.RemoteBranchExists(localDir, "origin", "agent/MOB-1")
	require.NoError(t, err)
	require.False(t, exists)
}
