// Package engine is the task orchestration engine: it owns every agent
// session, feeds prompts to the agent, infers session state from terminal
// output and keeps the session store up to date.
//
// All state mutations happen under a single mutex. Process I/O, git commands
// and store writes run outside it, as do all waits.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thisislance98/claudia/config"
	"github.com/thisislance98/claudia/internal/daemon/persist"
	"github.com/thisislance98/claudia/pkg/detect"
	"github.com/thisislance98/claudia/pkg/models"
	"github.com/thisislance98/claudia/pkg/ptyproc"
)

// GitCollaborator captures and reverts workspace repository state.
type GitCollaborator interface {
	CaptureBefore(ctx context.Context, path string) (*models.GitState, error)
	CaptureAfter(ctx context.Context, path string, before *models.GitState) (*models.GitState, error)
	Revert(ctx context.Context, path string, snap *models.GitState, cleanUntracked bool) *models.RevertResult
}

// WorkspaceResolver maps a workspace id to a directory.
type WorkspaceResolver interface {
	Resolve(id string) (string, error)
}

// IdentifierFinder discovers the agent's conversation id from a side channel.
type IdentifierFinder interface {
	Find(workspace string, since time.Time) (string, error)
}

// Persister stores session snapshots.
type Persister interface {
	Schedule(build persist.BuildFunc)
	Flush()
	Load() *persist.Snapshot
}

// Publisher receives engine notifications. Publish must not block.
type Publisher interface {
	Publish(e models.Event)
}

// Options tunes the engine.
type Options struct {
	Command          string
	Args             []string
	ResumeFlag       string
	SystemPromptFlag string
	Env              []string
	Cols             uint16
	Rows             uint16
	InterruptKey     string

	PollInterval      time.Duration
	HistoryBytes      int
	TypingThreshold   int
	TypingDelay       time.Duration
	EnterDelay        time.Duration
	EnterRetryDelay   time.Duration
	EnterRetries      int
	ReadinessTimeout  time.Duration
	ReconnectAttempts int
	ReconnectBackoff  time.Duration
	ReconnectGap      time.Duration
	GitTimeout        time.Duration

	// ReconnectOnStart makes Run reconnect every disconnected session.
	ReconnectOnStart bool
}

// OptionsFromConfig builds Options from a loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Command:           cfg.Agent.Command,
		Args:              cfg.Agent.Args,
		ResumeFlag:        cfg.Agent.ResumeFlag,
		SystemPromptFlag:  cfg.Agent.SystemPromptFlag,
		Env:               cfg.Agent.Env,
		Cols:              uint16(cfg.Agent.Cols),
		Rows:              uint16(cfg.Agent.Rows),
		InterruptKey:      cfg.Agent.InterruptKey,
		PollInterval:      cfg.Engine.PollInterval.Std(),
		HistoryBytes:      cfg.Engine.HistoryBytes,
		TypingThreshold:   cfg.Engine.TypingThreshold,
		TypingDelay:       cfg.Engine.TypingDelay.Std(),
		EnterDelay:        cfg.Engine.EnterDelay.Std(),
		EnterRetryDelay:   cfg.Engine.EnterRetryDelay.Std(),
		EnterRetries:      derefInt(cfg.Engine.EnterRetries),
		ReadinessTimeout:  derefDuration(cfg.Engine.ReadinessTimeout),
		ReconnectAttempts: cfg.Engine.ReconnectAttempts,
		ReconnectBackoff:  cfg.Engine.ReconnectBackoff.Std(),
		ReconnectGap:      cfg.Engine.ReconnectGap.Std(),
		GitTimeout:        cfg.Engine.GitTimeout.Std(),
		ReconnectOnStart:  true,
	}
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func derefDuration(v *config.Duration) time.Duration {
	if v == nil {
		return 0
	}
	return v.Std()
}

// Deps are the engine's collaborators. Spawner, Workspaces and Events are
// required; the rest may be nil.
type Deps struct {
	Spawner     ptyproc.Spawner
	Git         GitCollaborator
	Workspaces  WorkspaceResolver
	Identifiers IdentifierFinder
	Store       Persister
	Events      Publisher
	Detector    *detect.Detector
}

// Engine manages all agent sessions.
type Engine struct {
	opts   Options
	deps   Deps
	logger *logrus.Entry

	mu           sync.Mutex
	reg          *registry
	detector     *detect.Detector
	nextGen      uint64
	reconnecting map[string]bool
	closed       bool

	// bg tracks goroutines started by the engine (git capture, identifier lookup).
	bg sync.WaitGroup
}

// New creates an Engine.
func New(opts Options, deps Deps, logger *logrus.Entry) *Engine {
	det := deps.Detector
	if det == nil {
		det = detect.Default()
	}
	if opts.ReconnectAttempts < 1 {
		opts.ReconnectAttempts = 1
	}
	return &Engine{
		opts:         opts,
		deps:         deps,
		logger:       logger,
		reg:          newRegistry(),
		detector:     det,
		reconnecting: make(map[string]bool),
	}
}

// SetDetector replaces the pattern table used for classification.
func (e *Engine) SetDetector(d *detect.Detector) {
	if d == nil {
		return
	}
	e.mu.Lock()
	e.detector = d
	e.mu.Unlock()
	e.logger.Info("Detector patterns reloaded")
}

// LoadPersisted restores disconnected and archived sessions from the store.
// Sessions already known to the engine are left alone.
func (e *Engine) LoadPersisted() int {
	if e.deps.Store == nil {
		return 0
	}
	snap := e.deps.Store.Load()

	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for i := range snap.Disconnected {
		r := snap.Disconnected[i]
		if e.reg.has(r.ID) {
			continue
		}
		e.reg.putDisconnected(&r)
		n++
	}
	for i := range snap.Archived {
		r := snap.Archived[i]
		if e.reg.has(r.ID) {
			continue
		}
		e.reg.putArchived(&r)
		n++
	}
	e.logger.WithFields(logrus.Fields{
		"disconnected": len(snap.Disconnected),
		"archived":     len(snap.Archived),
	}).Info("Loaded persisted sessions")
	return n
}

// Run polls sessions until ctx is cancelled. When ReconnectOnStart is set it
// first starts reconnecting every disconnected session in the background.
func (e *Engine) Run(ctx context.Context) {
	if e.opts.ReconnectOnStart {
		e.bg.Add(1)
		go func() {
			defer e.bg.Done()
			report := e.ReconnectAll(ctx)
			if report.Total > 0 {
				e.logger.WithFields(logrus.Fields{
					"total":  report.Total,
					"failed": report.Failed,
				}).Info("Startup reconnection finished")
			}
		}()
	}

	interval := e.opts.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Poll()
		}
	}
}

// Shutdown demotes every live session to disconnected, kills the processes
// and flushes the store. It is safe to call more than once.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true

	var procs []ptyproc.Process
	for _, ls := range e.reg.liveSessions() {
		if p := e.demoteLocked(ls, models.StateDisconnected); p != nil {
			procs = append(procs, p)
		}
	}
	e.scheduleSaveLocked()
	e.mu.Unlock()

	for _, p := range procs {
		_ = p.Kill()
	}
	if e.deps.Store != nil {
		e.deps.Store.Flush()
	}

	done := make(chan struct{})
	go func() {
		e.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.logger.WithField("sessions", len(procs)).Info("Engine stopped")
	return nil
}

// publishLocked emits e; callers hold e.mu so events keep their order.
func (e *Engine) publishLocked(ev models.Event) {
	if e.deps.Events == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	e.deps.Events.Publish(ev)
}

func (e *Engine) publishSessionLocked(t models.EventType, s *models.Session) {
	e.publishLocked(models.Event{Type: t, SessionID: s.ID, Session: s})
}

// scheduleSaveLocked asks the store for a debounced write.
func (e *Engine) scheduleSaveLocked() {
	if e.deps.Store == nil {
		return
	}
	e.deps.Store.Schedule(e.snapshot)
}

// snapshot builds the persisted form of every session. It is called from the
// store's timer goroutine and takes the engine lock itself.
func (e *Engine) snapshot() *persist.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := &persist.Snapshot{SavedAt: time.Now().UTC()}
	for _, ls := range e.reg.liveSessions() {
		snap.Live = append(snap.Live, ls.record())
	}
	for _, r := range e.reg.disconnectedRecords() {
		snap.Disconnected = append(snap.Disconnected, *r)
	}
	for _, r := range e.reg.archivedRecords() {
		snap.Archived = append(snap.Archived, *r)
	}
	return snap
}

func (e *Engine) gitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.GitTimeout > 0 {
		return context.WithTimeout(ctx, e.opts.GitTimeout)
	}
	return context.WithCancel(ctx)
}
