// Package paths resolves claudia's on-disk locations.
//
// Resolution order:
// 1. CLAUDIA_HOME (portable root) → $CLAUDIA_HOME/{config,state,run}
// 2. XDG env vars → $XDG_*_HOME/claudia
// 3. Platform defaults → ~/.config/claudia, ~/.local/state/claudia
package paths

import (
	"os"
	"path/filepath"
)

const appName = "claudia"

// HomeEnv names the portable-root override.
const HomeEnv = "CLAUDIA_HOME"

func xdgBase(portableSub, xdgEnv string, fallback ...string) string {
	if home := os.Getenv(HomeEnv); home != "" {
		return filepath.Join(home, portableSub)
	}
	if dir := os.Getenv(xdgEnv); dir != "" {
		return filepath.Join(dir, appName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(append(append([]string{homeDir}, fallback...), appName)...)
	}
	return ""
}

// ConfigDir holds claudia.yml and workspaces.yml.
func ConfigDir() string {
	return xdgBase("config", "XDG_CONFIG_HOME", ".config")
}

// StateDir holds the session store, logs and the PID file.
func StateDir() string {
	return xdgBase("state", "XDG_STATE_HOME", ".local", "state")
}

// RuntimeDir returns the directory for the daemon socket.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return filepath.Join(home, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// SocketPath returns the path to the daemon unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "claudiad.sock")
}

// PidFilePath returns the path to the daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "claudiad.pid")
}

// SessionsFile returns the default session store location.
func SessionsFile() string {
	return filepath.Join(StateDir(), "sessions.json")
}

// WorkspacesFile returns the workspace registry location.
func WorkspacesFile() string {
	return filepath.Join(ConfigDir(), "workspaces.yml")
}

// LogDir returns the directory for log files.
func LogDir() string {
	return filepath.Join(StateDir(), "logs")
}

// EnsureDirs creates all claudia directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), StateDir(), RuntimeDir(), LogDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
