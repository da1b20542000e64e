package engine

import (
	"time"

	"github.com/thisislance98/claudia/internal/daemon/persist"
	"github.com/thisislance98/claudia/pkg/models"
	"github.com/thisislance98/claudia/pkg/ptyproc"
	"github.com/thisislance98/claudia/pkg/ringbuf"
)

// liveSession is a session backed by a process instance. It is only touched
// with the engine lock held.
type liveSession struct {
	meta models.Session

	proc ptyproc.Process

	// gen identifies the process instance; callbacks carrying another
	// generation are stale.
	gen uint64

	// spawning is set while the process is being started; output arriving
	// then is buffered but not announced.
	spawning    bool
	pendingExit *int
	spawnedAt   time.Time

	history  *ringbuf.Buffer
	previous []byte

	// received counts every byte delivered by this process instance. Unlike
	// history.Size it never shrinks, so growth is always visible.
	received   int64
	lastPolled int64

	sub        *submission
	destroying bool

	// identified is set once the conversation id was captured from this
	// process instance.
	identified   bool
	capturingGit bool
	lookingUpID  bool
}

func newLiveSession(meta models.Session, historyBytes int, gen uint64) *liveSession {
	if historyBytes <= 0 {
		historyBytes = ringbuf.DefaultMaxBytes
	}
	meta.Location = models.LocationLive
	return &liveSession{
		meta:     meta,
		gen:      gen,
		spawning: true,
		history:  ringbuf.New(historyBytes),
	}
}

// output returns the previous history followed by the current output.
func (ls *liveSession) output() []byte {
	cur := ls.history.Bytes()
	out := make([]byte, 0, len(ls.previous)+len(cur))
	out = append(out, ls.previous...)
	return append(out, cur...)
}

// model returns a copy of the public session shape.
func (ls *liveSession) model() *models.Session {
	s := ls.meta
	s.Location = models.LocationLive
	s.OutputSize = len(ls.previous) + ls.history.Size()
	if s.State != models.StateWaitingInput {
		s.WaitingInputType = ""
	}
	return &s
}

// record returns the flat persisted form.
func (ls *liveSession) record() persist.Record {
	return persist.Record{Session: *ls.model(), Output: ls.output()}
}

// submissionActive reports whether a prompt or input is still being fed to
// the agent.
func (ls *liveSession) submissionActive() bool {
	return ls.sub != nil && ls.sub.phase != phaseDone
}

func (ls *liveSession) cancelSubmission() {
	if ls.sub != nil {
		ls.sub.stop()
		ls.sub = nil
	}
}

// setState updates the state and keeps WaitingInputType consistent with it.
func (ls *liveSession) setState(state models.State, waiting models.WaitingInputType) bool {
	if state != models.StateWaitingInput {
		waiting = ""
	}
	if ls.meta.State == state && ls.meta.WaitingInputType == waiting {
		return false
	}
	ls.meta.State = state
	ls.meta.WaitingInputType = waiting
	return true
}

func recordModel(r *persist.Record) *models.Session {
	s := r.Session
	s.OutputSize = len(r.Output)
	return &s
}
