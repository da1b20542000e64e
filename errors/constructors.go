package errors

import (
	"fmt"
	"os/exec"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *Error {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *Error {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// SessionNotFound creates a session not found error
func SessionNotFound(id string) *Error {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("session '%s' not found", id)).
		WithDetail("session", id)
}

// InvalidState reports an operation that is not allowed in the session's current state
func InvalidState(id, state, op string) *Error {
	return New(ErrCodeInvalidState, fmt.Sprintf("cannot %s session '%s' in state %s", op, id, state)).
		WithDetail("session", id).
		WithDetail("state", state).
		WithDetail("operation", op)
}

// SpawnFailed creates a process spawn failure error
func SpawnFailed(command string, err error) *Error {
	return Wrap(err, ErrCodeSpawnFailed, fmt.Sprintf("failed to start agent process: %s", command)).
		WithDetail("command", command)
}

// WorkspaceNotFound creates a workspace not found error
func WorkspaceNotFound(id string) *Error {
	return New(ErrCodeWorkspaceNotFound, fmt.Sprintf("workspace '%s' not found", id)).
		WithDetail("workspace", id)
}

// InvalidInput creates an invalid input error
func InvalidInput(reason string) *Error {
	return New(ErrCodeInvalidInput, reason)
}

// CommandFailed creates a command execution failure error
func CommandFailed(cmd string, err error) *Error {
	e := Wrap(err, ErrCodeCommandFailed, fmt.Sprintf("command failed: %s", cmd)).
		WithDetail("command", cmd)

	// Extract exit code if available
	if exitErr, ok := err.(*exec.ExitError); ok {
		e = e.WithDetail("exitCode", exitErr.ExitCode())
	}

	return e
}

// DaemonUnavailable reports that the daemon socket could not be reached
func DaemonUnavailable(socket string, err error) *Error {
	return Wrap(err, ErrCodeDaemonUnavailable, "daemon is not running").
		WithDetail("socket", socket)
}
