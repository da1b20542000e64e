package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/thisislance98/claudia/errors"
	"github.com/thisislance98/claudia/pkg/models"
	"github.com/thisislance98/claudia/state"
)

// RemoteClient implements Client by calling the daemon's HTTP API over a Unix socket.
type RemoteClient struct {
	httpClient *http.Client
	socketPath string
}

// NewRemoteClient creates a new RemoteClient connected to the daemon socket.
func NewRemoteClient(socketPath string) (*RemoteClient, error) {
	// Create HTTP client that dials Unix socket
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		DisableKeepAlives: false,
		MaxIdleConns:      10,
		IdleConnTimeout:   90 * time.Second,
	}

	// No client timeout: ReconnectAll and Create may legitimately take a
	// while. Callers bound requests with their context.
	client := &http.Client{
		Transport: transport,
	}

	return &RemoteClient{
		httpClient: client,
		socketPath: socketPath,
	}, nil
}

// Connect returns a RemoteClient if the daemon answers on socketPath.
func Connect(socketPath string) (*RemoteClient, error) {
	if !Reachable(socketPath) {
		return nil, errors.DaemonUnavailable(socketPath, nil)
	}
	return NewRemoteClient(socketPath)
}

// baseURL is the dummy host used for Unix socket HTTP requests.
// The actual connection goes through the Unix socket, not this URL.
const baseURL = "http://unix"

// do sends a request and decodes a JSON response into out, if non-nil.
// Error responses are turned back into *errors.Error.
func (c *RemoteClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// send performs the request and returns the response on a 2xx status.
func (c *RemoteClient) send(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.DaemonUnavailable(c.socketPath, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeError(resp)
}

// decodeError rebuilds the daemon's structured error from a response.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var body struct {
		Error *errors.Error `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != nil && body.Error.Code != "" {
		return body.Error
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return errors.New(errors.ErrCodeInternal, fmt.Sprintf("daemon returned status %d: %s", resp.StatusCode, msg))
}

func sessionPath(id string, parts ...string) string {
	p := "/api/sessions/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func (c *RemoteClient) CreateSession(ctx context.Context, req CreateRequest) (*models.Session, error) {
	var s models.Session
	if err := c.do(ctx, http.MethodPost, "/api/sessions", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *RemoteClient) ListSessions(ctx context.Context) (models.Listing, error) {
	var l models.Listing
	err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &l)
	return l, err
}

func (c *RemoteClient) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	if err := c.do(ctx, http.MethodGet, sessionPath(id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *RemoteClient) Output(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, sessionPath(id, "output"), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *RemoteClient) SendInput(ctx context.Context, id, text string) error {
	return c.do(ctx, http.MethodPost, sessionPath(id, "input"), map[string]string{"text": text}, nil)
}

func (c *RemoteClient) Write(ctx context.Context, id string, data []byte) error {
	return c.do(ctx, http.MethodPost, sessionPath(id, "write"), map[string][]byte{"data": data}, nil)
}

func (c *RemoteClient) Resize(ctx context.Context, id string, cols, rows uint16) error {
	body := map[string]uint16{"cols": cols, "rows": rows}
	return c.do(ctx, http.MethodPost, sessionPath(id, "resize"), body, nil)
}

func (c *RemoteClient) Interrupt(ctx context.Context, id string) (bool, error) {
	var out struct {
		Interrupted bool `json:"interrupted"`
	}
	err := c.do(ctx, http.MethodPost, sessionPath(id, "interrupt"), nil, &out)
	return out.Interrupted, err
}

func (c *RemoteClient) Destroy(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(id), nil, nil)
}

func (c *RemoteClient) sessionOp(ctx context.Context, id, op string) (*models.Session, error) {
	var s models.Session
	if err := c.do(ctx, http.MethodPost, sessionPath(id, op), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *RemoteClient) Disconnect(ctx context.Context, id string) (*models.Session, error) {
	return c.sessionOp(ctx, id, "disconnect")
}

func (c *RemoteClient) Reconnect(ctx context.Context, id string) (*models.Session, error) {
	return c.sessionOp(ctx, id, "reconnect")
}

func (c *RemoteClient) ReconnectAll(ctx context.Context) (*models.ReconnectReport, error) {
	var r models.ReconnectReport
	if err := c.do(ctx, http.MethodPost, "/api/reconnect", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *RemoteClient) Archive(ctx context.Context, id string) (*models.Session, error) {
	return c.sessionOp(ctx, id, "archive")
}

func (c *RemoteClient) Restore(ctx context.Context, id string) (*models.Session, error) {
	return c.sessionOp(ctx, id, "restore")
}

func (c *RemoteClient) DeleteArchived(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/archive/"+url.PathEscape(id), nil, nil)
}

func (c *RemoteClient) Revert(ctx context.Context, id string, cleanUntracked bool) (*models.RevertResult, error) {
	var r models.RevertResult
	body := map[string]bool{"clean_untracked": cleanUntracked}
	if err := c.do(ctx, http.MethodPost, sessionPath(id, "revert"), body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *RemoteClient) ListWorkspaces(ctx context.Context) ([]state.Workspace, error) {
	var ws []state.Workspace
	err := c.do(ctx, http.MethodGet, "/api/workspaces", nil, &ws)
	return ws, err
}

func (c *RemoteClient) AddWorkspace(ctx context.Context, id, path, name string) (*state.Workspace, error) {
	var ws state.Workspace
	body := map[string]string{"id": id, "path": path, "name": name}
	if err := c.do(ctx, http.MethodPost, "/api/workspaces", body, &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

func (c *RemoteClient) RemoveWorkspace(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/workspaces/"+url.PathEscape(id), nil, nil)
}

// GetConfig returns the running configuration of the daemon.
func (c *RemoteClient) GetConfig(ctx context.Context) (*RunningConfig, error) {
	var cfg RunningConfig
	if err := c.do(ctx, http.MethodGet, "/api/config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsRunning returns true if the daemon is available and responding.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// StreamEvents subscribes to engine notifications via Server-Sent Events (SSE).
// The channel is closed when the context is cancelled or the connection is lost.
func (c *RemoteClient) StreamEvents(ctx context.Context, sessionID string) (<-chan models.Event, error) {
	path := "/api/events"
	if sessionID != "" {
		path += "?session=" + url.QueryEscape(sessionID)
	}
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	ch := make(chan models.Event, 64)

	go func() {
		defer resp.Body.Close()
		defer close(ch)

		scanner := bufio.NewScanner(resp.Body)
		// Output events can be large
		buf := make([]byte, 0, 256*1024)
		scanner.Buffer(buf, 16*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()

			// Skip comments and empty lines
			if strings.HasPrefix(line, ":") || line == "" {
				continue
			}

			if strings.HasPrefix(line, "data: ") {
				var ev models.Event
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
					continue // Skip malformed data
				}

				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close cleans up any resources used by the client.
func (c *RemoteClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Ensure RemoteClient implements Client interface.
var _ Client = (*RemoteClient)(nil)
