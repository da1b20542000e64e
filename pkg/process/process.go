package process

import (
	"os"
	"syscall"
	"time"
)

// IsProcessAlive checks if a process with the given PID is still running.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	// FindProcess never fails on Unix.
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 probes for existence. EPERM still means the process exists.
	err = process.Signal(syscall.Signal(0))
	return err == nil || os.IsPermission(err)
}

// TerminateGroup signals the process group led by pid with SIGTERM and sends
// SIGKILL to the group if done is not closed within grace. It does not block.
func TerminateGroup(pid int, grace time.Duration, done <-chan struct{}) error {
	if pid <= 0 {
		return nil
	}
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return err
	}
	go func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			_ = syscall.Kill(-pid, syscall.SIGKILL)
		}
	}()
	return nil
}
