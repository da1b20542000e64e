package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thisislance98/claudia/pkg/models"
	"github.com/thisislance98/claudia/testutil"
)

func newTestSnapshotter() *Snapshotter {
	return NewSnapshotter(testutil.Logger("git"))
}

func TestCaptureNonRepo(t *testing.T) {
	s := newTestSnapshotter()
	before, err := s.CaptureBefore(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, before)
}

func TestCaptureAndRevert(t *testing.T) {
	ctx := context.Background()
	s := newTestSnapshotter()
	dir := t.TempDir()
	testutil.InitRepo(t, dir)
	testutil.CommitFile(t, dir, "main.go", "package main\n")

	before, err := s.CaptureBefore(ctx, dir)
	require.NoError(t, err)
	require.NotNil(t, before)
	assert.Len(t, before.CommitBefore, 40)
	assert.False(t, before.UncommittedBefore)

	// The agent commits one change and leaves another uncommitted.
	testutil.CommitFile(t, dir, "handler.go", "package main\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n// edited\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scratch.txt"), []byte("tmp"), 0644))

	after, err := s.CaptureAfter(ctx, dir, before)
	require.NoError(t, err)
	assert.Equal(t, before.CommitBefore, after.CommitBefore)
	assert.NotEqual(t, after.CommitBefore, after.CommitAfter)
	assert.Equal(t, []string{"handler.go", "main.go", "scratch.txt"}, after.ModifiedFiles)
	assert.True(t, after.CanRevert)

	res := s.Revert(ctx, dir, after, true)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 3, res.FilesReverted)

	head, err := GetHeadCommit(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, before.CommitBefore, head)
	assert.NoFileExists(t, filepath.Join(dir, "scratch.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "handler.go"))

	content, err := os.ReadFile(filepath.Join(dir, "main.go"))
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(content))
}

func TestRevertKeepsUntrackedWithoutClean(t *testing.T) {
	ctx := context.Background()
	s := newTestSnapshotter()
	dir := t.TempDir()
	testutil.InitRepo(t, dir)
	testutil.CommitFile(t, dir, "a.txt", "a")

	before, err := s.CaptureBefore(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("k"), 0644))

	res := s.Revert(ctx, dir, before, false)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, res.FilesReverted)
	assert.FileExists(t, filepath.Join(dir, "keep.txt"))
}

func TestUncommittedBeforeIsNeverRevertable(t *testing.T) {
	ctx := context.Background()
	s := newTestSnapshotter()
	dir := t.TempDir()
	testutil.InitRepo(t, dir)
	testutil.CommitFile(t, dir, "a.txt", "a")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("dirty"), 0644))

	before, err := s.CaptureBefore(ctx, dir)
	require.NoError(t, err)
	assert.True(t, before.UncommittedBefore)

	// Later commits do not make the session revertable.
	testutil.Git(t, dir, "commit", "-am", "agent work")
	testutil.CommitFile(t, dir, "b.txt", "b")

	after, err := s.CaptureAfter(ctx, dir, before)
	require.NoError(t, err)
	assert.True(t, after.UncommittedBefore)
	assert.False(t, after.CanRevert)

	res := s.Revert(ctx, dir, after, true)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "uncommitted changes")
	assert.FileExists(t, filepath.Join(dir, "b.txt"))
}

func TestRevertWithoutSnapshot(t *testing.T) {
	s := newTestSnapshotter()
	res := s.Revert(context.Background(), t.TempDir(), nil, false)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)

	res = s.Revert(context.Background(), t.TempDir(), &models.GitState{CommitBefore: "not-a-hash"}, false)
	assert.False(t, res.Success)
}
