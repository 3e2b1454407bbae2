package gitlock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	h, err := Acquire(dir, time.Second)
	require.NoError(t, err)
	assert.DirExists(t, lockDir(dir))

	require.NoError(t, h.Release())
	assert.NoDirExists(t, lockDir(dir))
}

func TestAcquire_ConflictTimesOut(t *testing.T) {
	dir := t.TempDir()

	holder, err := Acquire(dir, time.Second)
	require.NoError(t, err)
	defer holder.Release()

	_, err = Acquire(dir, 150*time.Millisecond)
	require.Error(t, err)
	var timeoutErr *LockTimeout
	require.ErrorAs(t, err, &timeoutErr)
	assert.True(t, timeoutErr.HasOwner)
	assert.Equal(t, os.Getpid(), timeoutErr.OwnerPID)
}

func TestAcquire_ReclaimsStaleDeadPID(t *testing.T) {
	dir := t.TempDir()
	ld := lockDir(dir)
	require.NoError(t, os.Mkdir(ld, 0o755))

	meta := Metadata{PID: 999999999, Acquired: time.Now().UTC(), Hostname: "stale-host"}
	b, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ld, "lock.json"), b, 0o644))

	start := time.Now()
	h, err := Acquire(dir, 2*time.Second)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	require.NoError(t, h.Release())
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	dir := t.TempDir()

	err := WithLock(dir, time.Second, func() error {
		assert.DirExists(t, lockDir(dir))
		return assert.AnError
	})
	require.Error(t, err)
	assert.NoDirExists(t, lockDir(dir))
}
