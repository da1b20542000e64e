package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thisislance98/claudia/errors"
)

func TestRegistryOperations(t *testing.T) {
	tmp := t.TempDir()
	reg := NewRegistry(filepath.Join(tmp, "config", "workspaces.yml"))

	t.Run("empty registry", func(t *testing.T) {
		list, err := reg.List()
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	projectA := filepath.Join(tmp, "a")
	projectB := filepath.Join(tmp, "b")
	require.NoError(t, os.MkdirAll(projectA, 0755))
	require.NoError(t, os.MkdirAll(projectB, 0755))

	t.Run("add and resolve", func(t *testing.T) {
		w, err := reg.Add("beta", projectB, "Beta")
		require.NoError(t, err)
		assert.Equal(t, projectB, w.Path)

		_, err = reg.Add("alpha", projectA, "")
		require.NoError(t, err)

		path, err := reg.Resolve("alpha")
		require.NoError(t, err)
		assert.Equal(t, projectA, path)

		list, err := reg.List()
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "alpha", list[0].ID)
		assert.Equal(t, "Beta", list[1].Name)
	})

	t.Run("reloads from disk", func(t *testing.T) {
		other := NewRegistry(reg.Path())
		path, err := other.Resolve("beta")
		require.NoError(t, err)
		assert.Equal(t, projectB, path)
	})

	t.Run("absolute path fallback", func(t *testing.T) {
		path, err := reg.Resolve(projectA + "/")
		require.NoError(t, err)
		assert.Equal(t, projectA, path)
	})

	t.Run("unknown workspace", func(t *testing.T) {
		_, err := reg.Resolve("missing")
		assert.True(t, errors.Is(err, errors.ErrCodeWorkspaceNotFound))

		_, err = reg.Resolve(filepath.Join(tmp, "does-not-exist"))
		assert.True(t, errors.Is(err, errors.ErrCodeWorkspaceNotFound))
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, reg.Remove("alpha"))
		err := reg.Remove("alpha")
		assert.True(t, errors.Is(err, errors.ErrCodeWorkspaceNotFound))

		list, err := reg.List()
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		_, err := reg.Add("", projectA, "")
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

		_, err = reg.Add("x", filepath.Join(tmp, "nope"), "")
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	})
}

func TestRegistryCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspaces.yml")
	require.NoError(t, os.WriteFile(path, []byte("workspaces: [not, a, map"), 0644))

	_, err := NewRegistry(path).List()
	assert.Error(t, err)
}
