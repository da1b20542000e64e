// Package daemon provides a client for the claudia daemon API.
// It implements a transparent fallback pattern: if the daemon is running,
// calls go over its socket; if not, workspace operations run in-process and
// session operations report that the daemon is unavailable.
package daemon

import (
	"context"
	"time"

	"github.com/thisislance98/claudia/pkg/models"
	"github.com/thisislance98/claudia/state"
)

// Client defines the interface for interacting with the claudia daemon.
// Both RemoteClient (socket) and LocalClient (in-process) implement it.
type Client interface {
	// CreateSession starts a new agent session.
	CreateSession(ctx context.Context, req CreateRequest) (*models.Session, error)
	ListSessions(ctx context.Context) (models.Listing, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)
	// Output returns everything the session printed.
	Output(ctx context.Context, id string) ([]byte, error)
	SendInput(ctx context.Context, id, text string) error
	Write(ctx context.Context, id string, data []byte) error
	Resize(ctx context.Context, id string, cols, rows uint16) error
	// Interrupt reports whether the interrupt key was sent.
	Interrupt(ctx context.Context, id string) (bool, error)
	Destroy(ctx context.Context, id string) error
	Disconnect(ctx context.Context, id string) (*models.Session, error)
	Reconnect(ctx context.Context, id string) (*models.Session, error)
	// ReconnectAll blocks until every disconnected session was tried.
	ReconnectAll(ctx context.Context) (*models.ReconnectReport, error)
	Archive(ctx context.Context, id string) (*models.Session, error)
	Restore(ctx context.Context, id string) (*models.Session, error)
	DeleteArchived(ctx context.Context, id string) error
	Revert(ctx context.Context, id string, cleanUntracked bool) (*models.RevertResult, error)

	ListWorkspaces(ctx context.Context) ([]state.Workspace, error)
	AddWorkspace(ctx context.Context, id, path, name string) (*state.Workspace, error)
	RemoveWorkspace(ctx context.Context, id string) error

	// StreamEvents subscribes to engine notifications, optionally for one
	// session. The channel is closed when ctx is cancelled or the
	// connection is lost.
	StreamEvents(ctx context.Context, sessionID string) (<-chan models.Event, error)

	// GetConfig returns the configuration of the running daemon.
	GetConfig(ctx context.Context) (*RunningConfig, error)

	// IsRunning returns true if the daemon is available and responding.
	IsRunning() bool

	// Close cleans up any resources used by the client.
	Close() error
}

// CreateRequest describes a new session.
type CreateRequest struct {
	Prompt       string `json:"prompt"`
	WorkspaceID  string `json:"workspace_id"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// RunningConfig describes the running daemon.
type RunningConfig struct {
	PID          int           `json:"pid"`
	Version      string        `json:"version"`
	Socket       string        `json:"socket"`
	ConfigFile   string        `json:"config_file,omitempty"`
	SessionsFile string        `json:"sessions_file"`
	AgentCommand string        `json:"agent_command"`
	PollInterval time.Duration `json:"poll_interval"`
	StartedAt    time.Time     `json:"started_at"`
}
