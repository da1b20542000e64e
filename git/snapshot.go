package git

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thisislance98/claudia/command"
	"github.com/thisislance98/claudia/pkg/models"
)

// Snapshotter records the repository state around an agent session and can
// roll the work tree back to the pre-session commit.
type Snapshotter struct {
	builder *command.SafeBuilder
	logger  *logrus.Entry
	now     func() time.Time
}

// NewSnapshotter creates a Snapshotter that runs the git CLI.
func NewSnapshotter(logger *logrus.Entry) *Snapshotter {
	return &Snapshotter{
		builder: command.NewSafeBuilder(),
		logger:  logger,
		now:     time.Now,
	}
}

// CaptureBefore records HEAD and whether the work tree was already dirty.
// It returns nil for directories that are not inside a git work tree.
func (s *Snapshotter) CaptureBefore(ctx context.Context, path string) (*models.GitState, error) {
	if !IsGitRepo(ctx, path) {
		return nil, nil
	}
	head, err := GetHeadCommit(ctx, path)
	if err != nil {
		return nil, err
	}
	status, err := GetStatus(ctx, path)
	if err != nil {
		return nil, err
	}

	return &models.GitState{
		CommitBefore:      head,
		UncommittedBefore: status.IsDirty,
		CapturedAt:        s.now(),
	}, nil
}

// CaptureAfter records HEAD and the files changed since before, committed or
// not. A nil before yields a state that cannot be reverted.
func (s *Snapshotter) CaptureAfter(ctx context.Context, path string, before *models.GitState) (*models.GitState, error) {
	if !IsGitRepo(ctx, path) {
		return nil, nil
	}
	head, err := GetHeadCommit(ctx, path)
	if err != nil {
		return nil, err
	}

	files := map[string]struct{}{}
	state := &models.GitState{CommitAfter: head, CapturedAt: s.now()}
	if before != nil {
		state.CommitBefore = before.CommitBefore
		state.UncommittedBefore = before.UncommittedBefore
	}

	if state.CommitBefore != "" && head != "" && head != state.CommitBefore {
		if err := s.builder.Validate("commitHash", state.CommitBefore); err != nil {
			return nil, err
		}
		out, err := run(ctx, s.builder, path, "diff", "--name-only", state.CommitBefore, head)
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Failed to diff session commits")
		} else {
			addLines(files, out)
		}
	}

	status, err := GetStatus(ctx, path)
	if err != nil {
		return nil, err
	}
	for _, f := range status.Files {
		files[f] = struct{}{}
	}

	for f := range files {
		state.ModifiedFiles = append(state.ModifiedFiles, f)
	}
	sort.Strings(state.ModifiedFiles)

	state.CanRevert = state.CommitBefore != "" && !state.UncommittedBefore && len(state.ModifiedFiles) > 0
	return state, nil
}

// Revert resets the work tree to snap.CommitBefore and optionally removes
// untracked files. Failures are reported in the result.
func (s *Snapshotter) Revert(ctx context.Context, path string, snap *models.GitState, cleanUntracked bool) *models.RevertResult {
	fail := func(msg string) *models.RevertResult {
		s.logger.WithField("path", path).Warnf("Revert refused: %s", msg)
		return &models.RevertResult{Error: msg}
	}

	switch {
	case snap == nil || snap.CommitBefore == "":
		return fail("no git snapshot recorded for this session")
	case snap.UncommittedBefore:
		return fail("workspace had uncommitted changes before the session started")
	}
	if err := s.builder.Validate("commitHash", snap.CommitBefore); err != nil {
		return fail(err.Error())
	}

	files := map[string]struct{}{}
	out, err := run(ctx, s.builder, path, "diff", "--name-only", snap.CommitBefore)
	if err != nil {
		return fail(err.Error())
	}
	addLines(files, out)
	if cleanUntracked {
		out, err := run(ctx, s.builder, path, "ls-files", "--others", "--exclude-standard")
		if err != nil {
			return fail(err.Error())
		}
		addLines(files, out)
	}

	if _, err := run(ctx, s.builder, path, "reset", "--hard", snap.CommitBefore); err != nil {
		return fail(err.Error())
	}
	if cleanUntracked {
		if _, err := run(ctx, s.builder, path, "clean", "-fd"); err != nil {
			return fail(err.Error())
		}
	}

	s.logger.WithFields(logrus.Fields{
		"path":   path,
		"commit": snap.CommitBefore,
		"files":  len(files),
	}).Info("Reverted workspace")
	return &models.RevertResult{Success: true, FilesReverted: len(files)}
}

func addLines(set map[string]struct{}, out string) {
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			set[line] = struct{}{}
		}
	}
}
