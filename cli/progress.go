package cli

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/thisislance98/claudia/pkg/models"
)

// ProgressReporter prints per-session progress of a bulk operation.
type ProgressReporter struct {
	mu       sync.Mutex
	out      io.Writer
	statuses map[string]string
	tracked  map[string]bool
	start    time.Time
}

// NewProgressReporter creates a reporter writing to out.
func NewProgressReporter(out io.Writer) *ProgressReporter {
	return &ProgressReporter{
		out:      out,
		statuses: make(map[string]string),
		tracked:  make(map[string]bool),
		start:    time.Now(),
	}
}

// Track limits state_changed reporting to the given session. Without any
// tracked session every live state change is reported.
func (p *ProgressReporter) Track(id string) {
	p.mu.Lock()
	p.tracked[id] = true
	p.mu.Unlock()
}

// Update records the status of one item and prints it.
func (p *ProgressReporter) Update(id, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.statuses[id] = status
	fmt.Fprintf(p.out, "%s %s: %s\n", statusSymbol(status), id, status)
}

// Event feeds an engine event into the reporter. It returns true once the
// reconnection run is complete.
func (p *ProgressReporter) Event(ev models.Event) bool {
	switch ev.Type {
	case models.EventReconnectProgress:
		if ev.Progress == nil {
			return false
		}
		if ev.Progress.Phase == models.ReconnectStarted {
			p.mu.Lock()
			fmt.Fprintf(p.out, "Reconnecting %d session(s)...\n", ev.Progress.Total)
			p.mu.Unlock()
			return false
		}
		return ev.Progress.Phase == models.ReconnectComplete
	case models.EventStateChanged:
		if ev.Session == nil || !ev.Session.State.IsLive() {
			return false
		}
		p.mu.Lock()
		skip := (len(p.tracked) > 0 && !p.tracked[ev.SessionID]) || p.statuses[ev.SessionID] == "reconnected"
		p.mu.Unlock()
		if !skip {
			p.Update(ev.SessionID, "reconnected")
		}
	}
	return false
}

// Statuses returns the recorded statuses sorted by id.
func (p *ProgressReporter) Statuses() [][2]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.statuses))
	for id := range p.statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([][2]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, [2]string{id, p.statuses[id]})
	}
	return out
}

// Done prints the summary of a reconnection report.
func (p *ProgressReporter) Done(report *models.ReconnectReport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range report.FailedIDs {
		p.statuses[id] = "failed"
		fmt.Fprintf(p.out, "%s %s: failed\n", statusSymbol("failed"), id)
	}
	elapsed := time.Since(p.start).Round(time.Millisecond)
	fmt.Fprintf(p.out, "\n%d reconnected, %d failed in %s\n", report.Total-report.Failed, report.Failed, elapsed)
}

func statusSymbol(status string) string {
	switch status {
	case "reconnected", "completed":
		return successStyle.Render("[*]")
	case "failed":
		return errorMark
	case "starting":
		return "[~]"
	}
	return "[.]"
}
