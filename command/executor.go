package command

import (
	"context"
	"os"
	"os/exec"
	"time"
)

// waitDelay bounds how long Wait blocks on inherited pipes after the
// process is killed.
const waitDelay = 2 * time.Second

// Executor creates the processes a Command runs.
type Executor interface {
	CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// CommandContext calls f.
func (f ExecutorFunc) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return f(ctx, name, args...)
}

// RealExecutor starts programs from PATH. Git never prompts for credentials
// and never takes optional index locks, so a snapshot cannot block on a
// terminal or race the agent's own git calls.
type RealExecutor struct {
	// Env is appended to the inherited environment.
	Env []string
}

var nonInteractiveEnv = []string{
	"GIT_TERMINAL_PROMPT=0",
	"GIT_OPTIONAL_LOCKS=0",
}

// CommandContext builds a context-bound command.
func (e *RealExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	env := append(os.Environ(), nonInteractiveEnv...)
	cmd.Env = append(env, e.Env...)
	cmd.WaitDelay = waitDelay
	return cmd
}
