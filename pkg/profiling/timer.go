package profiling

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Stopper ends a timed span.
type Stopper interface {
	Stop()
}

type span struct {
	name     string
	start    time.Time
	duration time.Duration
	children []*span
	timer    *Timer
}

func (s *span) Stop() {
	s.timer.end(s)
}

// Timer records nested spans. The zero value is disabled.
type Timer struct {
	mu      sync.Mutex
	enabled bool
	root    *span
	stack   []*span
}

var defaultTimer = &Timer{}

// Enable turns on the process-wide timer. Spans started before Enable are
// not recorded.
func Enable() {
	defaultTimer.Enable()
}

// Start opens a span on the process-wide timer. Use it as
// `defer profiling.Start("name").Stop()`.
func Start(name string) Stopper {
	return defaultTimer.Start(name)
}

// Summarize writes the process-wide span tree to w.
func Summarize(w io.Writer) {
	defaultTimer.Summarize(w)
}

// Enable starts recording.
func (t *Timer) Enable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled {
		return
	}
	t.enabled = true
	t.root = &span{name: "total", start: time.Now(), timer: t}
	t.stack = []*span{t.root}
}

// Start opens a child span of the innermost open span.
func (t *Timer) Start(name string) Stopper {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return noopStopper{}
	}
	parent := t.stack[len(t.stack)-1]
	s := &span{name: name, start: time.Now(), timer: t}
	parent.children = append(parent.children, s)
	t.stack = append(t.stack, s)
	return s
}

func (t *Timer) end(s *span) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.duration = time.Since(s.start)
	// Pop s and anything opened inside it that was never stopped.
	for i := len(t.stack) - 1; i > 0; i-- {
		if t.stack[i] == s {
			t.stack = t.stack[:i]
			return
		}
	}
}

// Summarize writes the span tree with each span's share of the total.
func (t *Timer) Summarize(w io.Writer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	total := time.Since(t.root.start)

	fmt.Fprintf(w, "\nTiming (%v total)\n", total.Round(100*time.Microsecond))
	for _, c := range sortedChildren(t.root) {
		writeSpan(w, c, 1, total)
	}
}

func writeSpan(w io.Writer, s *span, depth int, total time.Duration) {
	pct := 0.0
	if total > 0 {
		pct = float64(s.duration) / float64(total) * 100
	}
	d := "open"
	if s.duration > 0 {
		d = s.duration.Round(100 * time.Microsecond).String()
	}
	fmt.Fprintf(w, "%s%s  %s  %.1f%%\n", strings.Repeat("  ", depth), s.name, d, pct)
	for _, c := range sortedChildren(s) {
		writeSpan(w, c, depth+1, total)
	}
}

func sortedChildren(s *span) []*span {
	out := append([]*span(nil), s.children...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].start.Before(out[j].start) })
	return out
}

type noopStopper struct{}

func (noopStopper) Stop() {}
