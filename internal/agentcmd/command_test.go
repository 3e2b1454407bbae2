package agentcmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCommand_BasicShape(t *testing.T) {
	restore := hasCclean
	hasCclean = func() bool { return false }
	defer func() { hasCclean = restore }()

	cmd := Claude.BuildCommand(Options{
		Worktree:   "/work/MOB-1",
		Skill:      "implement",
		Identifier: "MOB-1",
		Model:      "sonnet",
	})

	assert.Equal(t, "cd /work/MOB-1 && echo 'implement MOB-1' | claude -p --model sonnet", cmd)
}

func TestBuildCommand_WithCclean(t *testing.T) {
	restore := hasCclean
	hasCclean = func() bool { return true }
	defer func() { hasCclean = restore }()

	cmd := Opencode.BuildCommand(Options{
		Worktree:   "/work/MOB-2",
		Skill:      "implement",
		Identifier: "MOB-2",
		Model:      "gpt-5",
	})

	assert.Contains(t, cmd, "| opencode -p --model gpt-5 | cclean")
}

func TestBuildCommand_VerificationFlags(t *testing.T) {
	restore := hasCclean
	hasCclean = func() bool { return false }
	defer func() { hasCclean = restore }()

	cmd := Claude.BuildCommand(Options{
		Worktree:            "/w",
		Skill:               "implement",
		Identifier:          "MOB-3",
		Model:               "opus",
		RequireAllTestsPass: true,
		CoverageThreshold:   0.8,
	})

	assert.Contains(t, cmd, "--require-tests")
	assert.Contains(t, cmd, "--min-coverage 0.8")
}

func TestParseRuntime(t *testing.T) {
	r, err := ParseRuntime("claude")
	require.NoError(t, err)
	assert.Equal(t, Claude, r)

	_, err = ParseRuntime("gpt-cli")
	require.Error(t, err)
}
