package daemon

import (
	"context"

	"github.com/thisislance98/claudia/errors"
	"github.com/thisislance98/claudia/pkg/models"
	"github.com/thisislance98/claudia/state"
)

// LocalClient implements Client without a daemon. Workspace operations use
// the registry file directly; everything that needs a running session
// returns DAEMON_UNAVAILABLE.
type LocalClient struct {
	socketPath string
	registry   *state.Registry
}

// NewLocalClient creates a LocalClient over the given workspace registry.
func NewLocalClient(socketPath, workspacesFile string) *LocalClient {
	return &LocalClient{
		socketPath: socketPath,
		registry:   state.NewRegistry(workspacesFile),
	}
}

func (c *LocalClient) unavailable() error {
	return errors.DaemonUnavailable(c.socketPath, nil)
}

func (c *LocalClient) CreateSession(ctx context.Context, req CreateRequest) (*models.Session, error) {
	return nil, c.unavailable()
}

func (c *LocalClient) ListSessions(ctx context.Context) (models.Listing, error) {
	return models.Listing{}, c.unavailable()
}

func (c *LocalClient) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return nil, c.unavailable()
}

func (c *LocalClient) Output(ctx context.Context, id string) ([]byte, error) {
	return nil, c.unavailable()
}

func (c *LocalClient) SendInput(ctx context.Context, id, text string) error {
	return c.unavailable()
}

func (c *LocalClient) Write(ctx context.Context, id string, data []byte) error {
	return c.unavailable()
}

func (c *LocalClient) Resize(ctx context.Context, id string, cols, rows uint16) error {
	return c.unavailable()
}

func (c *LocalClient) Interrupt(ctx context.Context, id string) (bool, error) {
	return false, c.unavailable()
}

func (c *LocalClient) Destroy(ctx context.Context, id string) error {
	return c.unavailable()
}

func (c *LocalClient) Disconnect(ctx context.Context, id string) (*models.Session, error) {
	return nil, c.unavailable()
}

func (c *LocalClient) Reconnect(ctx context.Context, id string) (*models.Session, error) {
	return nil, c.unavailable()
}

func (c *LocalClient) ReconnectAll(ctx context.Context) (*models.ReconnectReport, error) {
	return nil, c.unavailable()
}

func (c *LocalClient) Archive(ctx context.Context, id string) (*models.Session, error) {
	return nil, c.unavailable()
}

func (c *LocalClient) Restore(ctx context.Context, id string) (*models.Session, error) {
	return nil, c.unavailable()
}

func (c *LocalClient) DeleteArchived(ctx context.Context, id string) error {
	return c.unavailable()
}

func (c *LocalClient) Revert(ctx context.Context, id string, cleanUntracked bool) (*models.RevertResult, error) {
	return nil, c.unavailable()
}

// ListWorkspaces reads the registry file.
func (c *LocalClient) ListWorkspaces(ctx context.Context) ([]state.Workspace, error) {
	return c.registry.List()
}

// AddWorkspace writes the registry file; a running daemon re-reads it on
// every lookup.
func (c *LocalClient) AddWorkspace(ctx context.Context, id, path, name string) (*state.Workspace, error) {
	ws, err := c.registry.Add(id, path, name)
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (c *LocalClient) RemoveWorkspace(ctx context.Context, id string) error {
	return c.registry.Remove(id)
}

// StreamEvents returns an error for LocalClient since streaming is only available via daemon.
func (c *LocalClient) StreamEvents(ctx context.Context, sessionID string) (<-chan models.Event, error) {
	return nil, c.unavailable()
}

// GetConfig returns an error for LocalClient since config is only available via daemon.
func (c *LocalClient) GetConfig(ctx context.Context) (*RunningConfig, error) {
	return nil, c.unavailable()
}

// IsRunning returns false since this is the local fallback client.
func (c *LocalClient) IsRunning() bool {
	return false
}

// Close is a no-op for LocalClient.
func (c *LocalClient) Close() error {
	return nil
}

// Ensure LocalClient implements Client interface.
var _ Client = (*LocalClient)(nil)
