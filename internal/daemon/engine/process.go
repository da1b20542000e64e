package engine

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thisislance98/claudia/pkg/models"
	"github.com/thisislance98/claudia/pkg/ptyproc"
)

// spawnOptions describes the agent process for a session. resume adds the
// resume flag when the conversation id is known.
func (e *Engine) spawnOptions(meta *models.Session, resume bool) ptyproc.Options {
	args := append([]string{}, e.opts.Args...)
	if resume && meta.SessionIdentifier != "" && e.opts.ResumeFlag != "" {
		args = append(args, e.opts.ResumeFlag, meta.SessionIdentifier)
	}
	if meta.SystemPrompt != "" && e.opts.SystemPromptFlag != "" {
		args = append(args, e.opts.SystemPromptFlag, meta.SystemPrompt)
	}
	return ptyproc.Options{
		Command: e.opts.Command,
		Args:    args,
		Dir:     meta.WorkspacePath,
		Env:     e.opts.Env,
		Cols:    e.opts.Cols,
		Rows:    e.opts.Rows,
	}
}

// spawn starts the process for ls, which must not be registered yet.
func (e *Engine) spawn(ls *liveSession, resume bool) (ptyproc.Process, error) {
	opts := e.spawnOptions(&ls.meta, resume)
	return e.deps.Spawner.Spawn(opts, e.onData(ls, ls.gen), e.onExit(ls, ls.gen))
}

func (e *Engine) onData(ls *liveSession, gen uint64) ptyproc.DataFunc {
	return func(chunk []byte) {
		e.mu.Lock()
		defer e.mu.Unlock()

		if ls.gen != gen || ls.destroying {
			return
		}
		if !ls.spawning && e.reg.live[ls.meta.ID] != ls {
			return
		}

		now := time.Now().UTC()
		ls.history.Push(chunk)
		ls.received += int64(len(chunk))
		ls.meta.LastActivity = now

		if !ls.identified {
			if id := e.detector.SessionID(string(chunk)); id != "" {
				e.setIdentifierLocked(ls, id, "output")
			}
		}
		if ls.spawning {
			return
		}

		e.publishLocked(models.Event{
			Type:      models.EventOutput,
			SessionID: ls.meta.ID,
			Data:      chunk,
			Time:      now,
		})
		e.checkReadyLocked(ls)
		e.scheduleSaveLocked()
	}
}

func (e *Engine) onExit(ls *liveSession, gen uint64) ptyproc.ExitFunc {
	return func(code int) {
		e.mu.Lock()
		defer e.mu.Unlock()

		if ls.gen != gen || ls.destroying {
			return
		}
		if ls.spawning {
			c := code
			ls.pendingExit = &c
			return
		}
		if e.reg.live[ls.meta.ID] != ls {
			return
		}
		e.exitedLocked(ls, code)
	}
}

func (e *Engine) exitedLocked(ls *liveSession, code int) {
	ls.cancelSubmission()
	c := code
	ls.meta.ExitCode = &c
	ls.setState(models.StateExited, "")
	e.logger.WithFields(logrus.Fields{
		"session_id": ls.meta.ID,
		"exit_code":  code,
	}).Info("Agent process exited")
	e.publishSessionLocked(models.EventStateChanged, ls.model())
	e.scheduleSaveLocked()
}

// registerLocked makes a freshly spawned session live, announces it with
// first, replays output buffered during the spawn and applies an exit that
// raced the registration.
func (e *Engine) registerLocked(ls *liveSession, proc ptyproc.Process, first models.EventType) {
	ls.proc = proc
	ls.spawning = false
	ls.spawnedAt = time.Now().UTC()
	e.reg.putLive(ls)

	e.publishSessionLocked(first, ls.model())
	if ls.history.Size() > 0 {
		e.publishLocked(models.Event{
			Type:      models.EventOutput,
			SessionID: ls.meta.ID,
			Data:      ls.history.Bytes(),
		})
	}

	if ls.pendingExit != nil {
		code := *ls.pendingExit
		ls.pendingExit = nil
		e.exitedLocked(ls, code)
		return
	}
	if ls.sub != nil {
		e.startSubmissionLocked(ls, ls.sub)
		e.checkReadyLocked(ls)
	}
	e.scheduleSaveLocked()
}

// demoteLocked turns a live session into a disconnected or archived record
// and returns the process to kill outside the lock.
func (e *Engine) demoteLocked(ls *liveSession, to models.State) ptyproc.Process {
	ls.destroying = true
	ls.cancelSubmission()

	rec := ls.record()
	if ls.meta.State == models.StateBusy || ls.meta.State == models.StateInterrupted {
		rec.WasInterrupted = true
	}
	rec.State = to
	rec.WaitingInputType = ""
	rec.ExitCode = nil
	if to == models.StateArchived {
		now := time.Now().UTC()
		rec.ArchivedAt = &now
		rec.Location = models.LocationArchived
		e.reg.putArchived(&rec)
	} else {
		rec.Location = models.LocationDisconnected
		e.reg.putDisconnected(&rec)
	}
	e.publishSessionLocked(models.EventStateChanged, recordModel(&rec))
	return ls.proc
}
