package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thisislance98/claudia/config"
	"github.com/thisislance98/claudia/errors"
	"github.com/thisislance98/claudia/internal/daemon/engine"
	"github.com/thisislance98/claudia/internal/daemon/events"
	"github.com/thisislance98/claudia/internal/daemon/server"
	"github.com/thisislance98/claudia/pkg/models"
	"github.com/thisislance98/claudia/pkg/ptyproc"
	"github.com/thisislance98/claudia/state"
)

// echoProcess prints the agent prompt on start and echoes every write.
type echoProcess struct {
	onData ptyproc.DataFunc
	onExit ptyproc.ExitFunc
	once   sync.Once
}

func (p *echoProcess) Pid() int { return 4242 }

func (p *echoProcess) Write(b []byte) (int, error) {
	p.onData(append([]byte(nil), b...))
	return len(b), nil
}

func (p *echoProcess) Resize(cols, rows uint16) error { return nil }

func (p *echoProcess) Kill() error {
	go p.once.Do(func() { p.onExit(137) })
	return nil
}

type echoSpawner struct{}

func (echoSpawner) Spawn(opts ptyproc.Options, onData ptyproc.DataFunc, onExit ptyproc.ExitFunc) (ptyproc.Process, error) {
	p := &echoProcess{onData: onData, onExit: onExit}
	onData([]byte("  ? for shortcuts\r\n"))
	return p, nil
}

type fixture struct {
	socket     string
	workspaces string
	project    string
	hub        *events.Hub
}

// startDaemon serves a real engine on a Unix socket.
func startDaemon(t *testing.T) *fixture {
	t.Helper()
	// Socket paths are length-limited, so keep this one short.
	dir, err := os.MkdirTemp("", "cl")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	f := &fixture{
		socket:     filepath.Join(dir, "d.sock"),
		workspaces: filepath.Join(dir, "workspaces.yml"),
		project:    filepath.Join(dir, "project"),
		hub:        events.New(),
	}
	require.NoError(t, os.MkdirAll(f.project, 0755))

	logger, _ := test.NewNullLogger()
	log := logrus.NewEntry(logger)
	registry := state.NewRegistry(f.workspaces)

	eng := engine.New(engine.Options{
		Command:         "agent",
		PollInterval:    time.Hour,
		TypingThreshold: 50,
		TypingDelay:     time.Millisecond,
		EnterDelay:      time.Millisecond,
		EnterRetryDelay: 20 * time.Millisecond,
		EnterRetries:    1,
	}, engine.Deps{
		Spawner:    echoSpawner{},
		Workspaces: registry,
		Events:     f.hub,
	}, log)

	srv := server.New(log)
	srv.SetSessions(eng)
	srv.SetWorkspaces(registry)
	srv.SetEvents(f.hub)
	srv.SetRunningConfig(&server.RunningConfig{PID: os.Getpid(), Socket: f.socket, AgentCommand: "agent"})

	l, err := server.Listen(f.socket)
	require.NoError(t, err)
	go func() { _ = srv.Serve(l) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = eng.Shutdown(ctx)
	})
	require.Eventually(t, func() bool { return Reachable(f.socket) }, 2*time.Second, 10*time.Millisecond)
	return f
}

func TestRemoteClientRoundTrip(t *testing.T) {
	f := startDaemon(t)
	ctx := context.Background()

	c, err := Connect(f.socket)
	require.NoError(t, err)
	defer c.Close()
	assert.True(t, c.IsRunning())

	_, isRemote := New(f.socket, f.workspaces).(*RemoteClient)
	assert.True(t, isRemote)

	ws, err := c.AddWorkspace(ctx, "proj", f.project, "Project")
	require.NoError(t, err)
	assert.Equal(t, f.project, ws.Path)

	list, err := c.ListWorkspaces(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "proj", list[0].ID)

	_, err = c.CreateSession(ctx, CreateRequest{Prompt: "hello", WorkspaceID: "missing"})
	assert.True(t, errors.Is(err, errors.ErrCodeWorkspaceNotFound), "error codes survive the round trip")

	s, err := c.CreateSession(ctx, CreateRequest{Prompt: "hello", WorkspaceID: "proj"})
	require.NoError(t, err)
	assert.Equal(t, models.StateBusy, s.State)
	assert.Equal(t, f.project, s.WorkspacePath)

	require.Eventually(t, func() bool {
		out, err := c.Output(ctx, s.ID)
		return err == nil && strings.Contains(string(out), "hello\r")
	}, 2*time.Second, 10*time.Millisecond, "the prompt is typed once the agent is ready")

	evs, err := c.StreamEvents(ctx, s.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Write(ctx, s.ID, []byte("ping")))
	deadline := time.After(2 * time.Second)
	for found := false; !found; {
		select {
		case ev := <-evs:
			found = ev.Type == models.EventOutput && strings.Contains(string(ev.Data), "ping")
		case <-deadline:
			t.Fatal("no echoed output event")
		}
	}

	l, err := c.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, l.Live, 1)

	cfg, err := c.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "agent", cfg.AgentCommand)

	d, err := c.Disconnect(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDisconnected, d.State)

	err = c.SendInput(ctx, s.ID, "more")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidState))

	r, err := c.Reconnect(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, r.State)

	ok, err := c.Interrupt(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	a, err := c.Archive(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateArchived, a.State)

	report, err := c.ReconnectAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Total)

	require.NoError(t, c.DeleteArchived(ctx, s.ID))
	_, err = c.GetSession(ctx, s.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeSessionNotFound))

	require.NoError(t, c.RemoveWorkspace(ctx, "proj"))
}

func TestAttachRoundTrip(t *testing.T) {
	f := startDaemon(t)
	ctx := context.Background()

	c, err := Connect(f.socket)
	require.NoError(t, err)
	_, err = c.AddWorkspace(ctx, "proj", f.project, "")
	require.NoError(t, err)
	s, err := c.CreateSession(ctx, CreateRequest{Prompt: "hello", WorkspaceID: "proj"})
	require.NoError(t, err)

	att, err := c.Attach(ctx, s.ID)
	require.NoError(t, err)

	first, err := att.Recv()
	require.NoError(t, err)
	assert.Contains(t, string(first), "for shortcuts")

	require.NoError(t, att.Resize(120, 40))
	require.NoError(t, att.Send([]byte("typed")))
	for {
		chunk, err := att.Recv()
		require.NoError(t, err)
		if strings.Contains(string(chunk), "typed") {
			break
		}
	}

	require.NoError(t, c.Destroy(ctx, s.ID))
	for {
		_, err := att.Recv()
		if err != nil {
			assert.Equal(t, "session destroyed", att.Reason())
			break
		}
	}
	_ = att.Close()

	_, err = c.Attach(ctx, "nope")
	assert.True(t, errors.Is(err, errors.ErrCodeSessionNotFound))
}

func TestLocalFallback(t *testing.T) {
	dir := t.TempDir()
	socket := filepath.Join(dir, "missing.sock")
	wsFile := filepath.Join(dir, "workspaces.yml")

	c := New(socket, wsFile)
	_, isLocal := c.(*LocalClient)
	require.True(t, isLocal)
	assert.False(t, c.IsRunning())

	_, err := c.CreateSession(context.Background(), CreateRequest{Prompt: "x", WorkspaceID: "y"})
	assert.True(t, errors.Is(err, errors.ErrCodeDaemonUnavailable))

	_, err = Connect(socket)
	assert.True(t, errors.Is(err, errors.ErrCodeDaemonUnavailable))

	ws, err := c.AddWorkspace(context.Background(), "here", dir, "")
	require.NoError(t, err)
	assert.Equal(t, dir, ws.Path)
	list, err := c.ListWorkspaces(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestConfigWatcher(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "claudia.yml")
	require.NoError(t, os.WriteFile(file, []byte("engine:\n  poll_interval: 3s\n"), 0644))

	var (
		reloads atomic.Int32
		mu      sync.Mutex
		last    *config.Config
	)
	logger, _ := test.NewNullLogger()
	w, err := NewConfigWatcher(file, 20*time.Millisecond, logrus.NewEntry(logger), func(cfg *config.Config, _ string) {
		mu.Lock()
		last = cfg
		mu.Unlock()
		reloads.Add(1)
	})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(file, []byte("engine:\n  poll_interval: 5s\n"), 0644))
	}
	require.Eventually(t, func() bool { return reloads.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	n := reloads.Load()
	mu.Lock()
	assert.Equal(t, 5*time.Second, last.Engine.PollInterval.Std())
	mu.Unlock()

	require.NoError(t, os.WriteFile(file, []byte("engine:\n  poll_interval: nope\n"), 0644))
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, n, reloads.Load(), "invalid files are ignored")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yml"), []byte("x: 1\n"), 0644))
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, n, reloads.Load(), "unrelated files are ignored")
}
