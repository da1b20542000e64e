// Package server provides the HTTP API of the claudia daemon over a Unix
// socket.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/thisislance98/claudia/internal/daemon/engine"
	"github.com/thisislance98/claudia/pkg/models"
	"github.com/thisislance98/claudia/state"
)

// Sessions is the engine surface the API exposes.
type Sessions interface {
	Create(ctx context.Context, req engine.CreateRequest) (*models.Session, error)
	Get(id string) (*models.Session, error)
	List() models.Listing
	Output(id string) ([]byte, error)
	OutputAndSubscribe(id string, subscribe func()) ([]byte, error)
	Write(id string, data []byte) error
	SendInput(id, text string) error
	Resize(id string, cols, rows uint16) error
	Interrupt(id string) (bool, error)
	Destroy(id string) error
	Disconnect(id string) (*models.Session, error)
	Reconnect(ctx context.Context, id string) (*models.Session, error)
	ReconnectAll(ctx context.Context) models.ReconnectReport
	Archive(id string) (*models.Session, error)
	Restore(id string) (*models.Session, error)
	DeleteArchived(id string) error
	Revert(ctx context.Context, id string, cleanUntracked bool) (*models.RevertResult, error)
}

// Workspaces is the workspace registry.
type Workspaces interface {
	List() ([]state.Workspace, error)
	Add(id, dir, name string) (state.Workspace, error)
	Remove(id string) error
}

// Events hands out event subscriptions.
type Events interface {
	Subscribe() chan models.Event
	Unsubscribe(ch chan models.Event)
}

// RunningConfig describes the running daemon. It is exposed via /api/config
// so clients can verify what is active.
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

// Server manages the daemon's HTTP server over a Unix socket.
type Server struct {
	logger        *logrus.Entry
	server        *http.Server
	sessions      Sessions
	workspaces    Workspaces
	events        Events
	runningConfig *RunningConfig

	// done ends open event streams and attachments on shutdown.
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new Server instance.
func New(logger *logrus.Entry) *Server {
	return &Server{
		logger: logger,
		done:   make(chan struct{}),
	}
}

// SetSessions sets the session engine served by the API.
func (s *Server) SetSessions(sessions Sessions) {
	s.sessions = sessions
}

// SetWorkspaces sets the workspace registry.
func (s *Server) SetWorkspaces(ws Workspaces) {
	s.workspaces = ws
}

// SetEvents sets the event source for streaming endpoints.
func (s *Server) SetEvents(ev Events) {
	s.events = ev
}

// SetRunningConfig sets the running configuration for the server.
func (s *Server) SetRunningConfig(cfg *RunningConfig) {
	s.runningConfig = cfg
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/config", s.handleGetConfig)

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDestroySession)
	mux.HandleFunc("GET /api/sessions/{id}/output", s.handleOutput)
	mux.HandleFunc("POST /api/sessions/{id}/input", s.handleSendInput)
	mux.HandleFunc("POST /api/sessions/{id}/write", s.handleWrite)
	mux.HandleFunc("POST /api/sessions/{id}/resize", s.handleResize)
	mux.HandleFunc("POST /api/sessions/{id}/interrupt", s.handleInterrupt)
	mux.HandleFunc("POST /api/sessions/{id}/disconnect", s.handleDisconnect)
	mux.HandleFunc("POST /api/sessions/{id}/reconnect", s.handleReconnect)
	mux.HandleFunc("POST /api/sessions/{id}/archive", s.handleArchive)
	mux.HandleFunc("POST /api/sessions/{id}/restore", s.handleRestore)
	mux.HandleFunc("POST /api/sessions/{id}/revert", s.handleRevert)
	mux.HandleFunc("GET /api/sessions/{id}/attach", s.handleAttach)
	mux.HandleFunc("DELETE /api/archive/{id}", s.handleDeleteArchived)
	mux.HandleFunc("POST /api/reconnect", s.handleReconnectAll)

	mux.HandleFunc("GET /api/events", s.handleEvents)

	mux.HandleFunc("GET /api/workspaces", s.handleListWorkspaces)
	mux.HandleFunc("POST /api/workspaces", s.handleAddWorkspace)
	mux.HandleFunc("DELETE /api/workspaces/{id}", s.handleRemoveWorkspace)

	return mux
}

// ListenAndServe starts the daemon on the given unix socket path.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(socketPath string) error {
	listener, err := Listen(socketPath)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Listen creates the Unix socket, replacing a stale one.
func Listen(socketPath string) (net.Listener, error) {
	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return nil, fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Set restrictive permissions on socket
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}
	return listener, nil
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.server = &http.Server{
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.WithField("socket", l.Addr().String()).Info("Daemon listening")
	err := s.server.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	s.stopOnce.Do(func() { close(s.done) })
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleGetConfig returns the running configuration as JSON.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.runningConfig == nil {
		http.Error(w, "config not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.runningConfig)
}
