package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thisislance98/claudia/errors"
	"github.com/thisislance98/claudia/pkg/models"
)

// Reconnect starts a new process for a disconnected session, or for a live
// session whose process exited, resuming its conversation when the
// identifier is known. The session becomes live and idle.
func (e *Engine) Reconnect(ctx context.Context, id string) (*models.Session, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errShuttingDown()
	}
	if e.reconnecting[id] {
		e.mu.Unlock()
		return nil, errors.InvalidState(id, "reconnecting", "reconnect")
	}

	var (
		meta     models.Session
		previous []byte
	)
	if r, ok := e.reg.disconnected[id]; ok {
		meta = r.Session
		previous = append([]byte(nil), r.Output...)
	} else if ls, ok := e.reg.live[id]; ok && ls.meta.State == models.StateExited {
		meta = ls.meta
		previous = ls.output()
	} else if s, ok := e.lookupLocked(id); ok {
		e.mu.Unlock()
		return nil, errors.InvalidState(id, string(s.State), "reconnect")
	} else {
		e.mu.Unlock()
		return nil, errors.SessionNotFound(id)
	}

	e.reconnecting[id] = true
	e.nextGen++
	meta.State = models.StateIdle
	meta.WaitingInputType = ""
	meta.ExitCode = nil
	meta.ArchivedAt = nil
	ls := newLiveSession(meta, e.opts.HistoryBytes, e.nextGen)
	ls.previous = previous
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.reconnecting, id)
		e.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := e.logger.WithFields(logrus.Fields{
		"session_id": id,
		"resume":     meta.SessionIdentifier != "",
	})
	proc, err := e.spawn(ls, true)
	if err != nil {
		log.WithError(err).Warn("Failed to reconnect session")
		return nil, errors.SpawnFailed(e.opts.Command, err)
	}

	e.mu.Lock()
	old, wasLive := e.reg.live[id]
	stillThere := e.reg.disconnected[id] != nil || (wasLive && old.meta.State == models.StateExited)
	if !stillThere || e.closed {
		ls.destroying = true
		e.mu.Unlock()
		_ = proc.Kill()
		if e.isClosed() {
			return nil, errShuttingDown()
		}
		return nil, errors.SessionNotFound(id)
	}
	if wasLive {
		old.destroying = true
	}
	e.registerLocked(ls, proc, models.EventStateChanged)
	s := ls.model()
	e.mu.Unlock()

	log.WithField("pid", proc.Pid()).Info("Session reconnected")
	return s, nil
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// ReconnectAll reconnects every disconnected session, oldest first, one at
// a time. Each session gets up to ReconnectAttempts attempts with linear
// backoff, and ReconnectGap separates consecutive sessions whatever the
// outcome. Sessions removed or reconnected by someone else in the meantime
// are skipped without counting as failures.
func (e *Engine) ReconnectAll(ctx context.Context) models.ReconnectReport {
	e.mu.Lock()
	records := e.reg.disconnectedRecords()
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	report := models.ReconnectReport{Total: len(ids), FailedIDs: []string{}}
	e.publishLocked(models.Event{
		Type:     models.EventReconnectProgress,
		Progress: &models.ReconnectProgress{Phase: models.ReconnectStarted, Total: report.Total},
	})
	e.mu.Unlock()

	if len(ids) > 0 {
		e.logger.WithField("total", len(ids)).Info("Reconnecting sessions")
	}

	fail := func(id string) {
		report.Failed++
		report.FailedIDs = append(report.FailedIDs, id)
	}

	for i, id := range ids {
		if i > 0 && !sleepContext(ctx, e.opts.ReconnectGap) {
			for _, rest := range ids[i:] {
				fail(rest)
			}
			break
		}

		ok := false
		for attempt := 1; attempt <= e.opts.ReconnectAttempts; attempt++ {
			_, err := e.Reconnect(ctx, id)
			if err == nil {
				ok = true
				break
			}
			if errors.Is(err, errors.ErrCodeSessionNotFound) || errors.Is(err, errors.ErrCodeInvalidState) {
				ok = true
				break
			}
			e.logger.WithError(err).WithFields(logrus.Fields{
				"session_id": id,
				"attempt":    attempt,
			}).Debug("Reconnect attempt failed")
			if attempt < e.opts.ReconnectAttempts &&
				!sleepContext(ctx, time.Duration(attempt)*e.opts.ReconnectBackoff) {
				break
			}
		}
		if !ok {
			fail(id)
		}
	}

	e.mu.Lock()
	e.publishLocked(models.Event{
		Type: models.EventReconnectProgress,
		Progress: &models.ReconnectProgress{
			Phase:     models.ReconnectComplete,
			Total:     report.Total,
			Failed:    report.Failed,
			FailedIDs: report.FailedIDs,
		},
	})
	e.mu.Unlock()
	return report
}

// sleepContext waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
