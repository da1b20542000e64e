package engine

import (
	"time"

	"github.com/sirupsen/logrus"
)

type phase int

const (
	// phaseAwaitingReady waits for the agent's idle prompt before the
	// initial prompt is submitted.
	phaseAwaitingReady phase = iota
	// phaseTyping writes the text and then presses Enter.
	phaseTyping
	// phaseAwaitingAck checks that Enter produced output and resends it if not.
	phaseAwaitingAck
	phaseDone
)

func (p phase) String() string {
	switch p {
	case phaseAwaitingReady:
		return "awaiting_ready"
	case phaseTyping:
		return "typing"
	case phaseAwaitingAck:
		return "awaiting_ack"
	default:
		return "done"
	}
}

// submission feeds one piece of text to the agent. Each session has at most
// one, driven by a single timer.
type submission struct {
	text    []rune
	single  bool
	pos     int
	written bool
	phase   phase
	retries int
	// ackMark is the received-byte count when Enter was last written.
	ackMark int64

	timer *time.Timer
	// seq invalidates callbacks from timers that were replaced.
	seq uint64
}

func (s *submission) stop() {
	s.phase = phaseDone
	s.seq++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// newSubmission prepares text for the agent. An initial prompt waits for
// the agent to be ready, and a short one is typed one rune at a time.
// Follow-up input is always written at once.
func (e *Engine) newSubmission(text string, initial bool) *submission {
	runes := []rune(text)
	sub := &submission{
		text:   runes,
		single: true,
		phase:  phaseTyping,
	}
	if initial {
		sub.single = len(runes) > e.opts.TypingThreshold
		sub.phase = phaseAwaitingReady
	}
	return sub
}

// startSubmissionLocked attaches sub to ls and arms its first step.
func (e *Engine) startSubmissionLocked(ls *liveSession, sub *submission) {
	if ls.sub != sub {
		ls.cancelSubmission()
		ls.sub = sub
	}
	switch sub.phase {
	case phaseAwaitingReady:
		if e.opts.ReadinessTimeout > 0 {
			e.armLocked(ls, sub, e.opts.ReadinessTimeout)
		}
	default:
		e.armLocked(ls, sub, 0)
	}
}

func (e *Engine) armLocked(ls *liveSession, sub *submission, d time.Duration) {
	if sub.timer != nil {
		sub.timer.Stop()
	}
	sub.seq++
	seq := sub.seq
	sub.timer = time.AfterFunc(d, func() { e.step(ls, sub, seq) })
}

// checkReadyLocked starts typing the initial prompt once the agent shows its
// idle prompt.
func (e *Engine) checkReadyLocked(ls *liveSession) {
	sub := ls.sub
	if sub == nil || sub.phase != phaseAwaitingReady {
		return
	}
	if !e.detector.Ready(string(ls.history.LastBytes(e.detector.Window()))) {
		return
	}
	e.logger.WithField("session_id", ls.meta.ID).Debug("Agent ready, submitting prompt")
	sub.phase = phaseTyping
	e.armLocked(ls, sub, 0)
}

// step advances a submission by one action. The write happens outside the
// lock; the next timer is armed afterwards if the submission is still current.
func (e *Engine) step(ls *liveSession, sub *submission, seq uint64) {
	e.mu.Lock()
	if !e.submissionCurrentLocked(ls, sub, seq) {
		e.mu.Unlock()
		return
	}
	sub.timer = nil
	log := e.logger.WithFields(logrus.Fields{"session_id": ls.meta.ID, "phase": sub.phase})

	var (
		write []byte
		next  time.Duration
	)
	switch sub.phase {
	case phaseAwaitingReady:
		log.WithField("timeout", e.opts.ReadinessTimeout).Warn("Agent prompt not detected, submitting anyway")
		sub.phase = phaseTyping
		write, next = e.typeLocked(ls, sub)
	case phaseTyping:
		write, next = e.typeLocked(ls, sub)
	case phaseAwaitingAck:
		if ls.received > sub.ackMark {
			log.Debug("Enter acknowledged")
			sub.phase = phaseDone
			ls.sub = nil
			e.mu.Unlock()
			return
		}
		if sub.retries >= e.opts.EnterRetries {
			log.WithField("retries", sub.retries).Debug("Enter not acknowledged, giving up")
			sub.phase = phaseDone
			ls.sub = nil
			e.mu.Unlock()
			return
		}
		sub.retries++
		log.WithField("attempt", sub.retries).Debug("Enter not acknowledged, resending")
		sub.ackMark = ls.received
		write, next = []byte("\r"), e.opts.EnterRetryDelay
	}
	proc := ls.proc
	e.mu.Unlock()

	if len(write) > 0 && proc != nil {
		if _, err := proc.Write(write); err != nil {
			log.WithError(err).Debug("Write to agent failed")
		}
	}

	e.mu.Lock()
	if e.submissionCurrentLocked(ls, sub, seq) {
		e.armLocked(ls, sub, next)
	}
	e.mu.Unlock()
}

func (e *Engine) submissionCurrentLocked(ls *liveSession, sub *submission, seq uint64) bool {
	return ls.sub == sub &&
		sub.seq == seq &&
		sub.phase != phaseDone &&
		!ls.destroying &&
		e.reg.live[ls.meta.ID] == ls
}

// typeLocked returns the next bytes of the typing phase and the delay before
// the following step. Once the text is out it presses Enter.
func (e *Engine) typeLocked(ls *liveSession, sub *submission) ([]byte, time.Duration) {
	if !sub.written {
		if sub.single || len(sub.text) == 0 {
			sub.written = true
			return []byte(string(sub.text)), e.opts.EnterDelay
		}
		r := sub.text[sub.pos]
		sub.pos++
		if sub.pos == len(sub.text) {
			sub.written = true
			return []byte(string(r)), e.opts.EnterDelay
		}
		return []byte(string(r)), e.opts.TypingDelay
	}

	sub.phase = phaseAwaitingAck
	sub.ackMark = ls.received
	return []byte("\r"), e.opts.EnterRetryDelay
}
