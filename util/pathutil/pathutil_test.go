package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := Expand("~/.claudia/run.sock")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".claudia", "run.sock"), got)

	t.Setenv("CLAUDIA_TEST_DIR", "/srv/claudia")
	got, err = Expand("$CLAUDIA_TEST_DIR/logs")
	require.NoError(t, err)
	assert.Equal(t, "/srv/claudia/logs", got)

	got, err = Expand("")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Expand("relative")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.True(t, filepath.IsAbs(MustExpand("~other/x")), "only the caller's home is expanded")
}

func TestCanonicalPath(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	real := filepath.Join(dir, "project")
	require.NoError(t, os.Mkdir(real, 0755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(real, link))

	got, err := CanonicalPath(link)
	require.NoError(t, err)
	assert.Equal(t, real, got)

	missing := filepath.Join(dir, "missing", "child")
	got, err = CanonicalPath(missing)
	require.NoError(t, err)
	assert.Equal(t, missing, got)
}
