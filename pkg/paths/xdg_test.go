package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortableHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnv, home)

	assert.Equal(t, filepath.Join(home, "config"), ConfigDir())
	assert.Equal(t, filepath.Join(home, "state"), StateDir())
	assert.Equal(t, filepath.Join(home, "run", "claudiad.sock"), SocketPath())
	assert.Equal(t, filepath.Join(home, "state", "sessions.json"), SessionsFile())
	assert.Equal(t, filepath.Join(home, "config", "workspaces.yml"), WorkspacesFile())

	require.NoError(t, EnsureDirs())
	for _, dir := range []string{ConfigDir(), StateDir(), RuntimeDir(), LogDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestXDGOverrides(t *testing.T) {
	t.Setenv(HomeEnv, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")
	t.Setenv("XDG_RUNTIME_DIR", "")

	assert.Equal(t, "/xdg/config/claudia", ConfigDir())
	assert.Equal(t, "/xdg/state/claudia", StateDir())
	assert.Equal(t, "/xdg/state/claudia", RuntimeDir())
	assert.Equal(t, "/xdg/state/claudia/claudiad.pid", PidFilePath())
}
