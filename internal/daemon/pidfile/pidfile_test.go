package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWritesPidAndLocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "claudiad.pid")

	h, err := Acquire(path)
	require.NoError(t, err)

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	running, runningPid, err := IsRunning(path)
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), runningPid)

	_, err = Acquire(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), strconv.Itoa(os.Getpid()))

	require.NoError(t, h.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	h2, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, h2.Release())
}

func TestIsRunningWithoutFile(t *testing.T) {
	running, pid, err := IsRunning(filepath.Join(t.TempDir(), "missing.pid"))
	require.NoError(t, err)
	assert.False(t, running)
	assert.Zero(t, pid)
}

func TestStalePidFileIsReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claudiad.pid")
	require.NoError(t, os.WriteFile(path, []byte("999999"), 0644))

	h, err := Acquire(path)
	require.NoError(t, err)
	defer h.Release()

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}
