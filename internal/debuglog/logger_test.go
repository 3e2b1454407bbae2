package debuglog

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesSessionLogFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, Verbose)
	require.NoError(t, err)
	defer l.Close()

	l.Emit(TaskStateChange, "scheduler", "MOB-1", map[string]any{"status": "Ready"})

	entries := l.Events()
	require.Len(t, entries, 1)
	assert.Equal(t, TaskStateChange, entries[0].EventType)
	assert.Equal(t, "MOB-1", entries[0].TaskID)
}

func TestVerbosityFiltersEventTypes(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, Minimal)
	require.NoError(t, err)
	defer l.Close()

	l.Emit(LockAcquire, "gitlock", "", nil)
	assert.Empty(t, l.Events(), "Minimal tier must not record LockAcquire")

	l.Emit(TaskStateChange, "scheduler", "", nil)
	assert.Len(t, l.Events(), 1)
}

func TestRingBufferEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, Minimal)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < ringSize+10; i++ {
		l.Emit(RuntimeStateWrite, "store", "", map[string]any{"i": i})
	}

	events := l.Events()
	require.Len(t, events, ringSize)
	assert.Equal(t, 10, events[0].Data["i"])
}

func TestInitialize_Idempotent(t *testing.T) {
	defer resetGlobalForTest()
	dir := t.TempDir()

	l1, err := Initialize(dir, Normal)
	require.NoError(t, err)
	l2, err := Initialize(dir, Verbose)
	require.NoError(t, err)

	assert.Same(t, l1, l2, "second Initialize must return the same instance")
}

func TestEmitGlobal_NoopWithoutInitialize(t *testing.T) {
	defer resetGlobalForTest()
	assert.NotPanics(t, func() {
		Emit(TaskStateChange, "scheduler", "", nil)
	})
}

func TestTuiModeSuppressesStderr(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, Minimal)
	require.NoError(t, err)
	defer l.Close()

	old := os.Getenv("MOBIUS_TUI_MODE")
	defer os.Setenv("MOBIUS_TUI_MODE", old)
	os.Setenv("MOBIUS_TUI_MODE", "true")

	r, w, err := os.Pipe()
	require.NoError(t, err)
	oldStderr := os.Stderr
	os.Stderr = w
	assert.NotPanics(t, func() {
		l.Emit(TaskStateChange, "scheduler", "", nil)
	})
	os.Stderr = oldStderr
	w.Close()
	out, _ := io.ReadAll(r)
	assert.Empty(t, string(out), "TUI mode must not write events to stderr")
}
