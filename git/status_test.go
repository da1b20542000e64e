package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thisislance98/claudia/testutil"
)

func TestGetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("non-git directory", func(t *testing.T) {
		_, err := GetStatus(ctx, t.TempDir())
		assert.Error(t, err)
	})

	t.Run("clean repo", func(t *testing.T) {
		dir := t.TempDir()
		testutil.InitRepo(t, dir)
		testutil.CommitFile(t, dir, "file.txt", "content")

		status, err := GetStatus(ctx, dir)
		require.NoError(t, err)
		assert.False(t, status.IsDirty)
		assert.Empty(t, status.Files)
		assert.False(t, status.HasUpstream)
		assert.NotEmpty(t, status.Branch)
	})

	t.Run("dirty repo", func(t *testing.T) {
		dir := t.TempDir()
		testutil.InitRepo(t, dir)
		testutil.CommitFile(t, dir, "tracked.txt", "v1")
		testutil.CommitFile(t, dir, "old name.txt", "rename me")

		require.NoError(t, os.WriteFile(filepath.Join(dir, "tracked.txt"), []byte("v2"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "new file.txt"), []byte("x"), 0644))
		testutil.Git(t, dir, "mv", "old name.txt", "new name.txt")

		status, err := GetStatus(ctx, dir)
		require.NoError(t, err)
		assert.True(t, status.IsDirty)
		assert.Equal(t, 1, status.UntrackedCount)
		assert.Equal(t, 1, status.StagedCount)
		assert.Equal(t, 1, status.ModifiedCount)
		assert.ElementsMatch(t, []string{"tracked.txt", "new file.txt", "new name.txt"}, status.Files)
	})
}

func TestRepoHelpers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	assert.False(t, IsGitRepo(ctx, dir))
	_, err := GetHeadCommit(ctx, dir)
	assert.Error(t, err)

	testutil.InitRepo(t, dir)
	assert.True(t, IsGitRepo(ctx, dir))

	head, err := GetHeadCommit(ctx, dir)
	require.NoError(t, err)
	assert.Empty(t, head, "no commits yet")

	testutil.CommitFile(t, dir, "a.txt", "a")
	head, err = GetHeadCommit(ctx, dir)
	require.NoError(t, err)
	assert.Len(t, head, 40)

	root, err := GetGitRoot(ctx, dir)
	require.NoError(t, err)
	wantRoot, _ := filepath.EvalSymlinks(dir)
	gotRoot, _ := filepath.EvalSymlinks(root)
	assert.Equal(t, wantRoot, gotRoot)

	_, err = ResolveRef(ctx, dir, "--upload-pack=evil")
	assert.Error(t, err)
}
