package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/thisislance98/claudia/errors"
	"github.com/thisislance98/claudia/internal/daemon/persist"
	"github.com/thisislance98/claudia/pkg/models"
	"github.com/thisislance98/claudia/pkg/ptyproc"
)

const banner = "\x1b[2m╭──────╮\r\n│ >    │\r\n╰──────╯\r\n  ? for shortcuts\x1b[0m\r\n"

type fakeProcess struct {
	pid    int
	opts   ptyproc.Options
	onData ptyproc.DataFunc
	onExit ptyproc.ExitFunc

	mu      sync.Mutex
	writes  []string
	onWrite func(p *fakeProcess, b []byte)

	killed   atomic.Bool
	exitOnce sync.Once
	exited   atomic.Bool
	spawned  time.Time

	// holdExit stops Kill from reporting the exit; the test calls exit.
	holdExit atomic.Bool
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.writes = append(p.writes, string(b))
	hook := p.onWrite
	p.mu.Unlock()
	if hook != nil {
		hook(p, b)
	}
	return len(b), nil
}

func (p *fakeProcess) Resize(cols, rows uint16) error { return nil }

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	if !p.holdExit.Load() {
		go p.exit(137)
	}
	return nil
}

func (p *fakeProcess) emit(s string) { p.onData([]byte(s)) }

func (p *fakeProcess) exit(code int) {
	p.exitOnce.Do(func() {
		p.onExit(code)
		p.exited.Store(true)
	})
}

func (p *fakeProcess) Writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}

type fakeSpawner struct {
	mu    sync.Mutex
	procs []*fakeProcess

	// fail rejects a spawn when it returns true.
	fail func(opts ptyproc.Options) bool
	// onSpawn runs before Spawn returns, like output racing registration.
	onSpawn func(p *fakeProcess)
	onWrite func(p *fakeProcess, b []byte)
}

func (s *fakeSpawner) Spawn(opts ptyproc.Options, onData ptyproc.DataFunc, onExit ptyproc.ExitFunc) (ptyproc.Process, error) {
	s.mu.Lock()
	if s.fail != nil && s.fail(opts) {
		s.mu.Unlock()
		return nil, fmt.Errorf("exec: %q: executable file not found in $PATH", opts.Command)
	}
	p := &fakeProcess{
		pid:     1000 + len(s.procs),
		opts:    opts,
		onData:  onData,
		onExit:  onExit,
		onWrite: s.onWrite,
		spawned: time.Now(),
	}
	s.procs = append(s.procs, p)
	hook := s.onSpawn
	s.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return p, nil
}

func (s *fakeSpawner) all() []*fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeProcess(nil), s.procs...)
}

func (s *fakeSpawner) last(t *testing.T) *fakeProcess {
	t.Helper()
	procs := s.all()
	require.NotEmpty(t, procs)
	return procs[len(procs)-1]
}

type fakeGit struct {
	mu        sync.Mutex
	before    *models.GitState
	beforeErr error
	after     *models.GitState
	reverts   int
	result    *models.RevertResult
}

func (g *fakeGit) CaptureBefore(ctx context.Context, path string) (*models.GitState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.before == nil {
		return nil, g.beforeErr
	}
	cp := *g.before
	return &cp, g.beforeErr
}

func (g *fakeGit) CaptureAfter(ctx context.Context, path string, before *models.GitState) (*models.GitState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.after == nil {
		return nil, fmt.Errorf("no after state")
	}
	cp := *g.after
	return &cp, nil
}

func (g *fakeGit) Revert(ctx context.Context, path string, snap *models.GitState, cleanUntracked bool) *models.RevertResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reverts++
	if g.result != nil {
		return g.result
	}
	return &models.RevertResult{Success: true, FilesReverted: 2}
}

type dirResolver struct{}

func (dirResolver) Resolve(id string) (string, error) {
	if id == "missing" {
		return "", errors.WorkspaceNotFound(id)
	}
	return "/work/" + id, nil
}

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) Publish(e models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.events...)
}

func (r *recorder) count(t models.EventType, id string) int {
	n := 0
	for _, e := range r.all() {
		if e.Type == t && (id == "" || e.SessionID == id) {
			n++
		}
	}
	return n
}

// exits counts state changes that report session id as exited.
func (r *recorder) exits(id string) int {
	n := 0
	for _, e := range r.all() {
		if e.Type == models.EventStateChanged && e.SessionID == id &&
			e.Session != nil && e.Session.State == models.StateExited {
			n++
		}
	}
	return n
}

type memStore struct {
	mu    sync.Mutex
	load  *persist.Snapshot
	saved *persist.Snapshot
	build persist.BuildFunc
}

func (m *memStore) Schedule(build persist.BuildFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.build = build
}

func (m *memStore) Flush() {
	m.mu.Lock()
	build := m.build
	m.build = nil
	m.mu.Unlock()
	if build != nil {
		snap := build()
		m.mu.Lock()
		m.saved = snap
		m.mu.Unlock()
	}
}

func (m *memStore) Load() *persist.Snapshot {
	if m.load == nil {
		return &persist.Snapshot{}
	}
	return m.load
}

type fakeFinder struct {
	id string
}

func (f fakeFinder) Find(workspace string, since time.Time) (string, error) {
	return f.id, nil
}

func testOptions() Options {
	return Options{
		Command:           "agent",
		Args:              []string{"--verbose"},
		ResumeFlag:        "--resume",
		SystemPromptFlag:  "--append-system-prompt",
		InterruptKey:      "\x1b",
		PollInterval:      time.Hour,
		HistoryBytes:      1 << 20,
		TypingThreshold:   50,
		TypingDelay:       time.Millisecond,
		EnterDelay:        5 * time.Millisecond,
		EnterRetryDelay:   40 * time.Millisecond,
		EnterRetries:      3,
		ReconnectAttempts: 2,
		ReconnectBackoff:  20 * time.Millisecond,
		ReconnectGap:      50 * time.Millisecond,
		GitTimeout:        time.Second,
	}
}

type harness struct {
	e       *Engine
	spawner *fakeSpawner
	git     *fakeGit
	events  *recorder
	store   *memStore
	logs    *test.Hook
}

func newHarness(t *testing.T, mutate ...func(*Options, *Deps)) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	h := &harness{
		spawner: &fakeSpawner{},
		git:     &fakeGit{},
		events:  &recorder{},
		store:   &memStore{},
		logs:    hook,
	}
	opts := testOptions()
	deps := Deps{
		Spawner:    h.spawner,
		Git:        h.git,
		Workspaces: dirResolver{},
		Store:      h.store,
		Events:     h.events,
	}
	for _, m := range mutate {
		m(&opts, &deps)
	}
	h.e = New(opts, deps, logrus.NewEntry(logger))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.e.Shutdown(ctx)
	})
	return h
}

// ackEnter makes the fake agent print something whenever Enter is pressed.
func ackEnter(p *fakeProcess, b []byte) {
	if string(b) == "\r" {
		go p.emit("working on it\r\n")
	}
}

func (h *harness) state(t *testing.T, id string) models.State {
	t.Helper()
	s, err := h.e.Get(id)
	require.NoError(t, err)
	return s.State
}

func (h *harness) submissionDone(id string) bool {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	ls, ok := h.e.reg.live[id]
	return ok && !ls.submissionActive()
}

// settled creates a session whose prompt has been submitted and acknowledged.
func (h *harness) settled(t *testing.T, workspace string) (*models.Session, *fakeProcess) {
	t.Helper()
	h.spawner.onSpawn = func(p *fakeProcess) { p.emit(banner) }
	h.spawner.onWrite = ackEnter

	s, err := h.e.Create(context.Background(), CreateRequest{Prompt: "fix the flaky test", WorkspaceID: workspace})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.submissionDone(s.ID) }, 2*time.Second, 5*time.Millisecond)
	return s, h.spawner.last(t)
}
