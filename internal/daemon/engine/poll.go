package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thisislance98/claudia/pkg/detect"
	"github.com/thisislance98/claudia/pkg/models"
)

// Transition is the outcome of one poll of one session.
type Transition struct {
	State   models.State
	Waiting models.WaitingInputType
	Changed bool
	// CaptureGit is set when a session settles from busy to idle.
	CaptureGit bool
}

// Decide computes the next state of a session from the output size at the
// previous poll and now. classify is only called when the output has
// settled and the session was busy.
//
// Growth moves idle and waiting sessions back to busy. Without growth, busy
// and interrupted sessions become waiting_input when classify reports a
// marker and idle otherwise. Every other combination leaves the state alone.
func Decide(prevSize, curSize int64, state models.State, classify func() detect.Kind) Transition {
	unchanged := Transition{State: state}

	switch state {
	case models.StateBusy, models.StateInterrupted, models.StateIdle, models.StateWaitingInput:
	default:
		return unchanged
	}

	if curSize > prevSize {
		if state == models.StateBusy {
			return unchanged
		}
		return Transition{State: models.StateBusy, Changed: true}
	}

	if state != models.StateBusy && state != models.StateInterrupted {
		return unchanged
	}
	if kind := classify(); kind != detect.None {
		return Transition{
			State:   models.StateWaitingInput,
			Waiting: models.WaitingInputType(kind),
			Changed: true,
		}
	}
	return Transition{State: models.StateIdle, Changed: true, CaptureGit: true}
}

type gitJob struct {
	id     string
	gen    uint64
	path   string
	before *models.GitState
}

type idJob struct {
	id    string
	gen   uint64
	path  string
	since time.Time
}

// Poll runs one state-detection pass over every live session.
func (e *Engine) Poll() {
	var (
		gitJobs []gitJob
		idJobs  []idJob
	)

	e.mu.Lock()
	det := e.detector
	for _, ls := range e.reg.liveSessions() {
		if ls.spawning || ls.destroying || ls.meta.State == models.StateExited {
			continue
		}

		if !ls.identified && !ls.lookingUpID && e.deps.Identifiers != nil {
			ls.lookingUpID = true
			idJobs = append(idJobs, idJob{id: ls.meta.ID, gen: ls.gen, path: ls.meta.WorkspacePath, since: ls.spawnedAt})
		}

		prev, cur := ls.lastPolled, ls.received
		ls.lastPolled = cur

		// Input is still being fed to the agent: hold busy.
		if ls.submissionActive() {
			continue
		}

		t := Decide(prev, cur, ls.meta.State, func() detect.Kind {
			return det.Classify(string(ls.history.LastBytes(det.Window())))
		})
		if !t.Changed {
			continue
		}
		e.transitionLocked(ls, t.State, t.Waiting)

		if t.CaptureGit && e.deps.Git != nil && ls.meta.GitStateBefore != nil && !ls.capturingGit {
			ls.capturingGit = true
			gitJobs = append(gitJobs, gitJob{id: ls.meta.ID, gen: ls.gen, path: ls.meta.WorkspacePath, before: ls.meta.GitStateBefore})
		}
	}
	e.mu.Unlock()

	for _, job := range gitJobs {
		e.bg.Add(1)
		go e.captureAfter(job)
	}
	for _, job := range idJobs {
		e.bg.Add(1)
		go e.lookupIdentifier(job)
	}
}

// transitionLocked applies a state change and announces it.
func (e *Engine) transitionLocked(ls *liveSession, state models.State, waiting models.WaitingInputType) {
	from := ls.meta.State
	if !ls.setState(state, waiting) {
		return
	}
	e.logger.WithFields(logrus.Fields{
		"session_id": ls.meta.ID,
		"from":       from,
		"to":         state,
	}).Debug("State changed")

	s := ls.model()
	e.publishSessionLocked(models.EventStateChanged, s)
	if state == models.StateWaitingInput {
		e.publishSessionLocked(models.EventWaitingInput, s)
	}
	e.scheduleSaveLocked()
}

func (e *Engine) captureAfter(job gitJob) {
	defer e.bg.Done()

	ctx, cancel := e.gitContext(context.Background())
	defer cancel()
	after, err := e.deps.Git.CaptureAfter(ctx, job.path, job.before)

	e.mu.Lock()
	defer e.mu.Unlock()

	ls, ok := e.reg.live[job.id]
	if !ok || ls.gen != job.gen {
		return
	}
	ls.capturingGit = false
	if err != nil {
		e.logger.WithError(err).WithField("session_id", job.id).Warn("Failed to capture git state")
		return
	}
	ls.meta.GitState = after
	e.scheduleSaveLocked()
}

func (e *Engine) lookupIdentifier(job idJob) {
	defer e.bg.Done()

	found, err := e.deps.Identifiers.Find(job.path, job.since)

	e.mu.Lock()
	defer e.mu.Unlock()

	ls, ok := e.reg.live[job.id]
	if !ok || ls.gen != job.gen {
		return
	}
	ls.lookingUpID = false
	if err != nil {
		e.logger.WithError(err).WithField("session_id", job.id).Debug("Transcript lookup failed")
		return
	}
	if found == "" {
		return
	}
	// Another session in the same workspace may own the newest transcript.
	for _, other := range e.reg.live {
		if other != ls && other.meta.SessionIdentifier == found {
			return
		}
	}
	e.setIdentifierLocked(ls, found, "transcript")
}

// setIdentifierLocked records the conversation id once per process instance.
func (e *Engine) setIdentifierLocked(ls *liveSession, id, source string) {
	if ls.identified {
		return
	}
	ls.identified = true
	if ls.meta.SessionIdentifier == id {
		return
	}
	ls.meta.SessionIdentifier = id
	e.logger.WithFields(logrus.Fields{
		"session_id": ls.meta.ID,
		"identifier": id,
		"source":     source,
	}).Info("Captured session identifier")

	if !ls.spawning && e.reg.live[ls.meta.ID] == ls {
		e.publishSessionLocked(models.EventStateChanged, ls.model())
		e.scheduleSaveLocked()
	}
}
