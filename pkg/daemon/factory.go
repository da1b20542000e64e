package daemon

import (
	"net"
	"os"
	"time"
)

// New returns a Client that will use the daemon if available,
// otherwise falls back to LocalClient.
//
// Callers don't need to know whether the daemon is running: workspace
// operations work in both modes, session operations fail with
// DAEMON_UNAVAILABLE when it is not.
func New(socketPath, workspacesFile string) Client {
	if Reachable(socketPath) {
		if client, err := NewRemoteClient(socketPath); err == nil {
			return client
		}
	}
	return NewLocalClient(socketPath, workspacesFile)
}

// Reachable reports whether something accepts connections on socketPath.
func Reachable(socketPath string) bool {
	if _, err := os.Stat(socketPath); err != nil {
		return false
	}
	conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
