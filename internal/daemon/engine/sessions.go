package engine

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/thisislance98/claudia/errors"
	"github.com/thisislance98/claudia/pkg/models"
	"github.com/thisislance98/claudia/pkg/ptyproc"
)

// CreateRequest describes a new session.
type CreateRequest struct {
	Prompt       string `json:"prompt"`
	WorkspaceID  string `json:"workspace_id"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

func errShuttingDown() error {
	return errors.New(errors.ErrCodeDaemonUnavailable, "engine is shutting down")
}

// Create starts a new agent session and submits its prompt once the agent
// is ready. Nothing is registered if the process cannot be started.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*models.Session, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.InvalidInput("prompt cannot be empty")
	}
	if req.WorkspaceID == "" {
		return nil, errors.InvalidInput("workspace id cannot be empty")
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, errShuttingDown()
	}

	path, err := e.deps.Workspaces.Resolve(req.WorkspaceID)
	if err != nil {
		return nil, err
	}

	var before *models.GitState
	if e.deps.Git != nil {
		gctx, cancel := e.gitContext(ctx)
		before, err = e.deps.Git.CaptureBefore(gctx, path)
		cancel()
		if err != nil {
			e.logger.WithError(err).WithField("workspace", path).Warn("Failed to capture git state")
			before = nil
		}
	}

	now := time.Now().UTC()
	meta := models.Session{
		ID:             uuid.NewString(),
		Prompt:         req.Prompt,
		WorkspaceID:    req.WorkspaceID,
		WorkspacePath:  path,
		SystemPrompt:   req.SystemPrompt,
		State:          models.StateBusy,
		CreatedAt:      now,
		LastActivity:   now,
		GitStateBefore: before,
	}

	e.mu.Lock()
	e.nextGen++
	ls := newLiveSession(meta, e.opts.HistoryBytes, e.nextGen)
	e.mu.Unlock()

	proc, err := e.spawn(ls, false)
	if err != nil {
		e.logger.WithError(err).WithField("workspace", path).Error("Failed to spawn agent")
		return nil, errors.SpawnFailed(e.opts.Command, err)
	}

	e.mu.Lock()
	if e.closed {
		ls.destroying = true
		e.mu.Unlock()
		_ = proc.Kill()
		return nil, errShuttingDown()
	}
	ls.sub = e.newSubmission(req.Prompt, true)
	e.registerLocked(ls, proc, models.EventSessionCreated)
	s := ls.model()
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"workspace":  path,
		"pid":        proc.Pid(),
	}).Info("Session created")
	return s, nil
}

// lookupLocked returns the public view of id from whichever collection holds it.
func (e *Engine) lookupLocked(id string) (*models.Session, bool) {
	if ls, ok := e.reg.live[id]; ok {
		return ls.model(), true
	}
	if r, ok := e.reg.disconnected[id]; ok {
		return recordModel(r), true
	}
	if r, ok := e.reg.archived[id]; ok {
		return recordModel(r), true
	}
	return nil, false
}

// Get returns one session.
func (e *Engine) Get(id string) (*models.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.lookupLocked(id)
	if !ok {
		return nil, errors.SessionNotFound(id)
	}
	return s, nil
}

// List returns every session grouped by collection.
func (e *Engine) List() models.Listing {
	e.mu.Lock()
	defer e.mu.Unlock()

	l := models.Listing{
		Live:         []*models.Session{},
		Disconnected: []*models.Session{},
		Archived:     []*models.Session{},
	}
	for _, ls := range e.reg.liveSessions() {
		l.Live = append(l.Live, ls.model())
	}
	for _, r := range e.reg.disconnectedRecords() {
		l.Disconnected = append(l.Disconnected, recordModel(r))
	}
	for _, r := range e.reg.archivedRecords() {
		l.Archived = append(l.Archived, recordModel(r))
	}
	return l
}

// Output returns everything the session printed, including output from
// before its last reconnection.
func (e *Engine) Output(id string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outputLocked(id)
}

// OutputAndSubscribe returns the session's output and calls subscribe before
// any further output can be published. A subscription made in subscribe
// therefore receives exactly the chunks that follow the returned bytes.
func (e *Engine) OutputAndSubscribe(id string, subscribe func()) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out, err := e.outputLocked(id)
	if err != nil {
		return nil, err
	}
	subscribe()
	return out, nil
}

func (e *Engine) outputLocked(id string) ([]byte, error) {
	if ls, ok := e.reg.live[id]; ok {
		return ls.output(), nil
	}
	if r, ok := e.reg.disconnected[id]; ok {
		return append([]byte(nil), r.Output...), nil
	}
	if r, ok := e.reg.archived[id]; ok {
		return append([]byte(nil), r.Output...), nil
	}
	return nil, errors.SessionNotFound(id)
}

// runningLocked returns the live session id if its process is running.
func (e *Engine) runningLocked(id, op string) (*liveSession, error) {
	if ls, ok := e.reg.live[id]; ok {
		if ls.meta.State == models.StateExited {
			return nil, errors.InvalidState(id, string(ls.meta.State), op)
		}
		return ls, nil
	}
	if r, ok := e.reg.disconnected[id]; ok {
		return nil, errors.InvalidState(id, string(r.State), op)
	}
	if r, ok := e.reg.archived[id]; ok {
		return nil, errors.InvalidState(id, string(r.State), op)
	}
	return nil, errors.SessionNotFound(id)
}

// Write passes raw bytes to the agent. A line terminator sent to an idle or
// waiting session marks it busy straight away.
func (e *Engine) Write(id string, data []byte) error {
	e.mu.Lock()
	ls, err := e.runningLocked(id, "write to")
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if bytes.ContainsAny(data, "\r\n") &&
		(ls.meta.State == models.StateIdle || ls.meta.State == models.StateWaitingInput) {
		e.transitionLocked(ls, models.StateBusy, "")
	}
	proc := ls.proc
	e.mu.Unlock()

	if _, err := proc.Write(data); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write to agent").WithDetail("session", id)
	}
	return nil
}

// SendInput submits text to an idle or waiting session, followed by Enter.
func (e *Engine) SendInput(id, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ls, err := e.runningLocked(id, "send input to")
	if err != nil {
		return err
	}
	if ls.meta.State != models.StateIdle && ls.meta.State != models.StateWaitingInput {
		return errors.InvalidState(id, string(ls.meta.State), "send input to")
	}
	e.transitionLocked(ls, models.StateBusy, "")
	e.startSubmissionLocked(ls, e.newSubmission(text, false))
	return nil
}

// Resize changes the terminal size of a running session.
func (e *Engine) Resize(id string, cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return errors.InvalidInput("cols and rows must be positive")
	}
	e.mu.Lock()
	ls, err := e.runningLocked(id, "resize")
	if err != nil {
		e.mu.Unlock()
		return err
	}
	proc := ls.proc
	e.mu.Unlock()

	if err := proc.Resize(cols, rows); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to resize terminal").WithDetail("session", id)
	}
	return nil
}

// Interrupt sends the interrupt key to a busy session. It reports false and
// does nothing when the session is not busy.
func (e *Engine) Interrupt(id string) (bool, error) {
	e.mu.Lock()
	ls, err := e.runningLocked(id, "interrupt")
	if err != nil {
		e.mu.Unlock()
		return false, err
	}
	if ls.meta.State != models.StateBusy {
		e.mu.Unlock()
		return false, nil
	}
	ls.cancelSubmission()
	e.transitionLocked(ls, models.StateInterrupted, "")
	proc := ls.proc
	e.mu.Unlock()

	if _, err := proc.Write([]byte(e.opts.InterruptKey)); err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to interrupt agent").WithDetail("session", id)
	}
	return true, nil
}

// Destroy kills the session's process, if any, and forgets the session.
func (e *Engine) Destroy(id string) error {
	var proc ptyproc.Process

	e.mu.Lock()
	if ls, ok := e.reg.live[id]; ok {
		ls.destroying = true
		ls.cancelSubmission()
		proc = ls.proc
	} else if !e.reg.has(id) {
		e.mu.Unlock()
		return errors.SessionNotFound(id)
	}
	e.reg.remove(id)
	e.publishLocked(models.Event{Type: models.EventDestroyed, SessionID: id})
	e.scheduleSaveLocked()
	e.mu.Unlock()

	if proc != nil {
		_ = proc.Kill()
	}
	e.logger.WithField("session_id", id).Info("Session destroyed")
	return nil
}

// Disconnect stops a live session's process but keeps the session so it can
// be reconnected later.
func (e *Engine) Disconnect(id string) (*models.Session, error) {
	e.mu.Lock()
	ls, ok := e.reg.live[id]
	if !ok {
		defer e.mu.Unlock()
		if e.reg.has(id) {
			s, _ := e.lookupLocked(id)
			return nil, errors.InvalidState(id, string(s.State), "disconnect")
		}
		return nil, errors.SessionNotFound(id)
	}
	proc := e.demoteLocked(ls, models.StateDisconnected)
	e.scheduleSaveLocked()
	s := recordModel(e.reg.disconnected[id])
	e.mu.Unlock()

	if proc != nil {
		_ = proc.Kill()
	}
	return s, nil
}

// Archive moves a live or disconnected session to the archive. A live
// session's process is stopped first.
func (e *Engine) Archive(id string) (*models.Session, error) {
	var proc ptyproc.Process

	e.mu.Lock()
	switch {
	case e.reg.live[id] != nil:
		proc = e.demoteLocked(e.reg.live[id], models.StateArchived)
	case e.reg.disconnected[id] != nil:
		rec := e.reg.disconnected[id]
		now := time.Now().UTC()
		rec.State = models.StateArchived
		rec.Location = models.LocationArchived
		rec.ArchivedAt = &now
		e.reg.putArchived(rec)
		e.publishSessionLocked(models.EventStateChanged, recordModel(rec))
	case e.reg.archived[id] != nil:
		e.mu.Unlock()
		return nil, errors.InvalidState(id, string(models.StateArchived), "archive")
	default:
		e.mu.Unlock()
		return nil, errors.SessionNotFound(id)
	}
	e.scheduleSaveLocked()
	s := recordModel(e.reg.archived[id])
	e.mu.Unlock()

	if proc != nil {
		_ = proc.Kill()
	}
	e.logger.WithField("session_id", id).Info("Session archived")
	return s, nil
}

// Restore moves an archived session back to disconnected.
func (e *Engine) Restore(id string) (*models.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.reg.archived[id]
	if !ok {
		if s, found := e.lookupLocked(id); found {
			return nil, errors.InvalidState(id, string(s.State), "restore")
		}
		return nil, errors.SessionNotFound(id)
	}
	rec.State = models.StateDisconnected
	rec.Location = models.LocationDisconnected
	rec.ArchivedAt = nil
	e.reg.putDisconnected(rec)
	s := recordModel(rec)
	e.publishSessionLocked(models.EventStateChanged, s)
	e.scheduleSaveLocked()
	return s, nil
}

// DeleteArchived permanently removes an archived session.
func (e *Engine) DeleteArchived(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.reg.archived[id]; !ok {
		if s, found := e.lookupLocked(id); found {
			return errors.InvalidState(id, string(s.State), "delete")
		}
		return errors.SessionNotFound(id)
	}
	e.reg.remove(id)
	e.publishLocked(models.Event{Type: models.EventDestroyed, SessionID: id})
	e.scheduleSaveLocked()
	return nil
}

// Revert resets the session's workspace to the commit recorded before the
// session started. Refusals and failures are reported in the result.
func (e *Engine) Revert(ctx context.Context, id string, cleanUntracked bool) (*models.RevertResult, error) {
	e.mu.Lock()
	s, ok := e.lookupLocked(id)
	e.mu.Unlock()
	if !ok {
		return nil, errors.SessionNotFound(id)
	}

	if e.deps.Git == nil || s.GitStateBefore == nil {
		return &models.RevertResult{Error: "no git state was recorded for this session"}, nil
	}
	if s.GitStateBefore.UncommittedBefore {
		return &models.RevertResult{Error: "workspace had uncommitted changes before the session started"}, nil
	}

	gctx, cancel := e.gitContext(ctx)
	defer cancel()
	res := e.deps.Git.Revert(gctx, s.WorkspacePath, s.GitStateBefore, cleanUntracked)

	log := e.logger.WithFields(logrus.Fields{"session_id": id, "workspace": s.WorkspacePath})
	if !res.Success {
		log.WithField("error", res.Error).Warn("Revert failed")
		return res, nil
	}
	log.WithField("files", res.FilesReverted).Info("Reverted session changes")

	e.mu.Lock()
	e.markRevertedLocked(id)
	e.mu.Unlock()
	return res, nil
}

func (e *Engine) markRevertedLocked(id string) {
	var gs **models.GitState
	if ls, ok := e.reg.live[id]; ok {
		gs = &ls.meta.GitState
	} else if r, ok := e.reg.disconnected[id]; ok {
		gs = &r.GitState
	} else if r, ok := e.reg.archived[id]; ok {
		gs = &r.GitState
	} else {
		return
	}
	if *gs != nil {
		updated := **gs
		updated.CanRevert = false
		updated.ModifiedFiles = nil
		updated.CapturedAt = time.Now().UTC()
		*gs = &updated
	}
	e.scheduleSaveLocked()
}
