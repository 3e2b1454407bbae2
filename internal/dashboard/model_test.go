package dashboard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubular-health/mobius/internal/runtimestate"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	return Model{
		reader:   runtimestate.NewReader(t.TempDir()),
		graph:    testGraph(),
		loopPID:  0,
		backend:  "local",
		waiting:  true,
		spinners: make(map[string]spinner.Model),
		changed:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		ready:    true,
	}
}

func TestHandleKey_QuitsDirectlyWhenNoActiveAgents(t *testing.T) {
	m := newTestModel(t)

	next, cmd := m.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	mm := next.(Model)

	assert.True(t, mm.quit)
	assert.NotNil(t, cmd)
}

func TestHandleKey_ShowsExitModalWhenAgentsActive(t *testing.T) {
	m := newTestModel(t)
	m.state = &runtimestate.State{
		ActiveTasks: []runtimestate.ActiveTask{{ID: "a"}},
	}

	next, cmd := m.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	mm := next.(Model)

	assert.True(t, mm.showExitModal)
	assert.False(t, mm.quit)
	assert.Nil(t, cmd)
}

func TestHandleKey_ModalConfirmQuits(t *testing.T) {
	m := newTestModel(t)
	m.showExitModal = true
	m.loopPID = 0

	next, cmd := m.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	mm := next.(Model)

	assert.True(t, mm.quit)
	assert.NotNil(t, cmd)
}

func TestHandleKey_ModalCancelReturnsToDashboard(t *testing.T) {
	m := newTestModel(t)
	m.showExitModal = true

	next, _ := m.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	mm := next.(Model)

	assert.False(t, mm.showExitModal)
	assert.False(t, mm.quit)
}

func TestHandleKey_TogglesDebugPanel(t *testing.T) {
	m := newTestModel(t)

	next, _ := m.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	mm := next.(Model)
	assert.True(t, mm.showDebugPanel)

	next2, _ := mm.handleKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	mm2 := next2.(Model)
	assert.False(t, mm2.showDebugPanel)
}

func TestDetectCompletion_AllTasksTerminal(t *testing.T) {
	m := newTestModel(t)
	m.state = &runtimestate.State{
		CompletedTasks: []runtimestate.FinishedTask{{ID: "a"}, {ID: "b"}},
		FailedTasks:    []runtimestate.FinishedTask{{ID: "c"}},
	}

	assert.True(t, m.detectCompletion())
}

func TestDetectCompletion_FalseWhileTasksOutstanding(t *testing.T) {
	m := newTestModel(t)
	m.state = &runtimestate.State{
		CompletedTasks: []runtimestate.FinishedTask{{ID: "a"}},
	}

	assert.False(t, m.detectCompletion())
}

func TestApplyOverrides_ReadsTokenUsageForActiveTask(t *testing.T) {
	m := newTestModel(t)
	streamPath := filepath.Join(m.reader.Dir(), "a.stream.jsonl")
	require.NoError(t, os.WriteFile(streamPath, []byte(
		`{"type":"progress","usage":{"input_tokens":100,"output_tokens":20}}`+"\n"+
			`{"type":"progress","usage":{"input_tokens":250,"output_tokens":60}}`+"\n",
	), 0o644))

	m.state = &runtimestate.State{
		ActiveTasks: []runtimestate.ActiveTask{{ID: "a"}},
	}
	m.applyOverrides()

	info, ok := m.treeInfo["a"]
	require.True(t, ok)
	require.NotNil(t, info.tokens)
	assert.Equal(t, int64(250), info.tokens.InputTokens)
	assert.Equal(t, int64(60), info.tokens.OutputTokens)
}

func TestApplyOverrides_NoStreamFileYieldsNilTokens(t *testing.T) {
	m := newTestModel(t)
	m.state = &runtimestate.State{
		ActiveTasks: []runtimestate.ActiveTask{{ID: "a"}},
	}
	m.applyOverrides()

	info, ok := m.treeInfo["a"]
	require.True(t, ok)
	assert.Nil(t, info.tokens)
}

func TestApplyOverrides_DoesNotMutateStoredStatus(t *testing.T) {
	m := newTestModel(t)
	m.state = &runtimestate.State{
		ActiveTasks: []runtimestate.ActiveTask{{ID: "a"}},
	}

	before := m.graph.Tasks["a"].Status
	m.applyOverrides()

	assert.Equal(t, before, m.graph.Tasks["a"].Status)
	info, ok := m.treeInfo["a"]
	if assert.True(t, ok) {
		assert.NotEqual(t, before, info.status)
	}
}
