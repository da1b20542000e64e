// Package pidfile provides single-instance locking and PID file management
// for the claudia daemon.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"github.com/thisislance98/claudia/pkg/process"
)

// Handle is a held daemon lock. The PID file is valid while it is held.
type Handle struct {
	path string
	lock *flock.Flock
}

// Acquire takes an exclusive advisory lock next to path and writes the
// current PID to path. It fails if another daemon holds the lock.
func Acquire(path string) (*Handle, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create pid directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock pid file: %w", err)
	}
	if !locked {
		if pid, rerr := Read(path); rerr == nil && process.IsProcessAlive(pid) {
			return nil, fmt.Errorf("daemon already running with PID %d", pid)
		}
		return nil, fmt.Errorf("daemon lock %s is held by another process", lock.Path())
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to write pid file: %w", err)
	}

	return &Handle{path: path, lock: lock}, nil
}

// Release removes the PID file and drops the lock.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	err := os.Remove(h.path)
	if uerr := h.lock.Unlock(); uerr != nil && err == nil {
		err = uerr
	}
	return err
}

// Read returns the PID recorded in the file.
func Read(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(content)))
}

// IsRunning checks if the daemon described by the pidfile is active.
func IsRunning(path string) (bool, int, error) {
	pid, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return process.IsProcessAlive(pid), pid, nil
}
