package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/thisislance98/claudia/errors"
)

const (
	// DefaultTimeout is the default command execution timeout
	DefaultTimeout = 2 * time.Minute

	// MaxTimeout is the maximum allowed timeout
	MaxTimeout = 10 * time.Minute
)

var (
	gitRefRe     = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	commitHashRe = regexp.MustCompile(`^[0-9a-f]{7,64}$`)
)

// SafeBuilder provides secure command execution with validation
type SafeBuilder struct {
	defaultTimeout time.Duration
	validators     map[string]func(string) error
	executor       Executor
}

// NewSafeBuilder creates a new SafeBuilder instance with a RealExecutor
func NewSafeBuilder() *SafeBuilder {
	return NewSafeBuilderWithExecutor(&RealExecutor{})
}

// NewSafeBuilderWithExecutor creates a new SafeBuilder with a custom Executor
func NewSafeBuilderWithExecutor(exec Executor) *SafeBuilder {
	return &SafeBuilder{
		defaultTimeout: DefaultTimeout,
		validators: map[string]func(string) error{
			"fileName":   validateFileName,
			"gitRef":     validateGitRef,
			"commitHash": validateCommitHash,
		},
		executor: exec,
	}
}

// validateFileName ensures file paths are safe
func validateFileName(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("file path cannot contain '..'")
	}
	if strings.ContainsAny(path, ";|&$`") {
		return fmt.Errorf("file path contains invalid characters")
	}
	return nil
}

// validateGitRef ensures git references are safe
func validateGitRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("git ref cannot be empty")
	}
	if strings.HasPrefix(ref, "-") || !gitRefRe.MatchString(ref) {
		return fmt.Errorf("invalid git ref: %s", ref)
	}
	return nil
}

func validateCommitHash(hash string) error {
	if !commitHashRe.MatchString(hash) {
		return fmt.Errorf("invalid commit hash: %q", hash)
	}
	return nil
}

// Command represents a safe command configuration
type Command struct {
	parent   context.Context
	ctx      context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
	name     string
	args     []string
	dir      string
	executor Executor
}

// Build creates a new command bound to ctx with the builder's default timeout.
func (sb *SafeBuilder) Build(ctx context.Context, name string, args ...string) (*Command, error) {
	if name == "" {
		return nil, fmt.Errorf("command name cannot be empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c := &Command{
		parent:   ctx,
		name:     name,
		args:     args,
		executor: sb.executor,
	}
	return c.WithTimeout(sb.defaultTimeout), nil
}

// WithTimeout sets a custom timeout for the command
func (c *Command) WithTimeout(timeout time.Duration) *Command {
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithTimeout(c.parent, timeout)
	c.timeout = timeout
	return c
}

// InDir sets the working directory.
func (c *Command) InDir(dir string) *Command {
	c.dir = dir
	return c
}

// Validate validates specific arguments
func (sb *SafeBuilder) Validate(argType string, value string) error {
	validator, exists := sb.validators[argType]
	if !exists {
		return fmt.Errorf("no validator for argument type: %s", argType)
	}

	return validator(value)
}

// Exec creates and returns an exec.Cmd. The caller owns its lifetime; the
// command's timeout context is released by Output or Close.
func (c *Command) Exec() *exec.Cmd {
	cmd := c.executor.CommandContext(c.ctx, c.name, c.args...) //nolint:gosec // SafeBuilder provides validation
	cmd.Dir = c.dir
	return cmd
}

// Close releases the command's timeout context.
func (c *Command) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Output runs the command and returns its stdout. A non-zero exit becomes a
// COMMAND_FAILED error carrying the trimmed stderr.
func (c *Command) Output() ([]byte, error) {
	defer c.Close()

	cmd := c.Exec()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		line := strings.TrimSpace(c.name + " " + strings.Join(c.args, " "))
		return out, errors.CommandFailed(line, err).
			WithDetail("stderr", strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
