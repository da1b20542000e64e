package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/thisislance98/claudia/command"
)

// run executes git with args in dir and returns trimmed stdout.
func run(ctx context.Context, builder *command.SafeBuilder, dir string, args ...string) (string, error) {
	cmd, err := builder.Build(ctx, "git", args...)
	if err != nil {
		return "", fmt.Errorf("failed to build command: %w", err)
	}
	out, err := cmd.InDir(dir).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// IsGitRepo checks if the given directory is inside a git work tree.
func IsGitRepo(ctx context.Context, dir string) bool {
	out, err := run(ctx, command.NewSafeBuilder(), dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// GetGitRoot returns the root directory of the git repository
func GetGitRoot(ctx context.Context, dir string) (string, error) {
	root, err := run(ctx, command.NewSafeBuilder(), dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("get git root: %w", err)
	}
	return root, nil
}

// ResolveRef resolves a git ref (branch name, tag, or commit) to its full commit hash.
func ResolveRef(ctx context.Context, dir, ref string) (string, error) {
	builder := command.NewSafeBuilder()
	if err := builder.Validate("gitRef", ref); err != nil {
		return "", err
	}
	hash, err := run(ctx, builder, dir, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("resolve ref %s: %w", ref, err)
	}
	return hash, nil
}

// GetHeadCommit returns the current HEAD commit hash, or "" for a repository
// without commits.
func GetHeadCommit(ctx context.Context, dir string) (string, error) {
	hash, err := ResolveRef(ctx, dir, "HEAD")
	if err != nil {
		if IsGitRepo(ctx, dir) {
			return "", nil
		}
		return "", err
	}
	return hash, nil
}
