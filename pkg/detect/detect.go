// Package detect classifies the recent terminal output of an agent session.
//
// Classification is pure and table driven: a Detector compiled from a
// Patterns table holds no mutable state, so the same input always yields the
// same Kind. The table can be replaced at runtime by compiling a new Detector.
package detect

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Kind is the result of classifying settled output. The zero value means the
// agent is idle.
type Kind string

const (
	None         Kind = ""
	Question     Kind = "question"
	Permission   Kind = "permission"
	Confirmation Kind = "confirmation"
)

// Patterns is the injectable pattern table. Hint lists are matched as plain
// substrings; every other field holds regular expressions.
type Patterns struct {
	SelectHints    []string `yaml:"select_hints,omitempty" json:"select_hints,omitempty" toml:"select_hints,omitempty"`
	NavigateHints  []string `yaml:"navigate_hints,omitempty" json:"navigate_hints,omitempty" toml:"navigate_hints,omitempty"`
	Allow          []string `yaml:"allow,omitempty" json:"allow,omitempty" toml:"allow,omitempty"`
	Deny           []string `yaml:"deny,omitempty" json:"deny,omitempty" toml:"deny,omitempty"`
	Confirmations  []string `yaml:"confirmations,omitempty" json:"confirmations,omitempty" toml:"confirmations,omitempty"`
	Separators     []string `yaml:"separators,omitempty" json:"separators,omitempty" toml:"separators,omitempty"`
	Boilerplate    []string `yaml:"boilerplate,omitempty" json:"boilerplate,omitempty" toml:"boilerplate,omitempty"`
	Interrogatives []string `yaml:"interrogatives,omitempty" json:"interrogatives,omitempty" toml:"interrogatives,omitempty"`
	Readiness      []string `yaml:"readiness,omitempty" json:"readiness,omitempty" toml:"readiness,omitempty"`
	// SessionID patterns must contain one capture group holding the id.
	SessionID []string `yaml:"session_id,omitempty" json:"session_id,omitempty" toml:"session_id,omitempty"`

	MinQuestionLength int `yaml:"min_question_length,omitempty" json:"min_question_length,omitempty" toml:"min_question_length,omitempty"`
	Window            int `yaml:"window,omitempty" json:"window,omitempty" toml:"window,omitempty"`
}

const (
	// DefaultWindow is the number of trailing output bytes examined.
	DefaultWindow = 2048

	defaultMinQuestionLength = 15
)

// DefaultPatterns returns the built-in table, tuned for the Claude CLI.
func DefaultPatterns() Patterns {
	return Patterns{
		SelectHints:   []string{"Enter to select"},
		NavigateHints: []string{"to navigate"},
		Allow:         []string{`\bAllow\b`},
		Deny:          []string{`\bDeny\b`},
		Confirmations: []string{
			`(?i)[(\[]\s*y(?:es)?\s*/\s*n(?:o)?\s*[)\]]`,
		},
		Separators: []string{
			`⏺`,
			`[─━═]{3,}`,
		},
		Boilerplate: []string{
			`(?i)\?\s*for shortcuts`,
			`(?i)shift\+tab to cycle`,
			`(?i)(?:accept edits|plan mode|bypass permissions) on[^\n]*`,
			`(?i)press ctrl-c again to exit`,
			`(?i)esc to interrupt[^\n]*`,
			`(?i)ctrl\+[a-z] to [a-z]+`,
			`(?mi)^[\s│|]*[>❯]?\s*try "[^"\n]*"[\s│|]*$`,
			`(?m)^[\s│|╭╮╰╯>❯]*$`,
		},
		Interrogatives: []string{
			`(?i)\bwhat\b`,
			`(?i)\bwhich\b`,
			`(?i)\bhow\b`,
			`(?i)\bwould you\b`,
			`(?i)\bcould you\b`,
			`(?i)\bcan you\b`,
			`(?i)\bdo you\b`,
			`(?i)\bshould i\b`,
			`(?i)\bshall i\b`,
			`(?i)\bwant me to\b`,
			`(?i)\bconfirm\b`,
			`(?i)\bproceed\b`,
			`(?i)\bchoose\b`,
			`(?i)\boptions?\b`,
			`(?i)\bprefer\b`,
			`(?i)\blet me know\b`,
			`(?i)\bplease (?:provide|specify|clarify)\b`,
		},
		Readiness: []string{
			`(?i)\?\s*for shortcuts`,
			`(?i)try "[^"\n]+"`,
			`(?m)^[\s│|]*[>❯][\s\x{00a0}]*[│|]?\s*$`,
		},
		SessionID: []string{
			`(?i)session[ _-]?id[:=\s]+([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`,
			`--resume\s+([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`,
		},
		MinQuestionLength: defaultMinQuestionLength,
		Window:            DefaultWindow,
	}
}

// Detector is a compiled pattern table.
type Detector struct {
	selectHints    []string
	navigateHints  []string
	allow          []*regexp.Regexp
	deny           []*regexp.Regexp
	confirmations  []*regexp.Regexp
	separator      *regexp.Regexp
	boilerplate    []*regexp.Regexp
	interrogatives []*regexp.Regexp
	readiness      []*regexp.Regexp
	sessionID      []*regexp.Regexp
	minQuestion    int
	window         int
}

// New compiles a pattern table. Zero-valued numeric fields take defaults.
func New(p Patterns) (*Detector, error) {
	d := &Detector{
		selectHints:   p.SelectHints,
		navigateHints: p.NavigateHints,
		minQuestion:   p.MinQuestionLength,
		window:        p.Window,
	}
	if d.window <= 0 {
		d.window = DefaultWindow
	}
	if d.minQuestion <= 0 {
		d.minQuestion = defaultMinQuestionLength
	}

	var err error
	compile := func(field string, exprs []string) []*regexp.Regexp {
		if err != nil {
			return nil
		}
		out := make([]*regexp.Regexp, 0, len(exprs))
		for _, expr := range exprs {
			re, cerr := regexp.Compile(expr)
			if cerr != nil {
				err = fmt.Errorf("detector pattern %s %q: %w", field, expr, cerr)
				return nil
			}
			out = append(out, re)
		}
		return out
	}

	d.allow = compile("allow", p.Allow)
	d.deny = compile("deny", p.Deny)
	d.confirmations = compile("confirmations", p.Confirmations)
	d.boilerplate = compile("boilerplate", p.Boilerplate)
	d.interrogatives = compile("interrogatives", p.Interrogatives)
	d.readiness = compile("readiness", p.Readiness)
	d.sessionID = compile("session_id", p.SessionID)
	if err != nil {
		return nil, err
	}

	if len(p.Separators) > 0 {
		sep, serr := regexp.Compile("(?:" + strings.Join(p.Separators, ")|(?:") + ")")
		if serr != nil {
			return nil, fmt.Errorf("detector pattern separators: %w", serr)
		}
		d.separator = sep
	}

	for _, re := range d.sessionID {
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("detector pattern session_id %q: needs a capture group", re.String())
		}
	}
	return d, nil
}

// Default returns a Detector for DefaultPatterns.
func Default() *Detector {
	d, err := New(DefaultPatterns())
	if err != nil {
		panic(err)
	}
	return d
}

// Window returns the number of trailing bytes Classify examines.
func (d *Detector) Window() int {
	return d.window
}

// Classify strips the tail window of raw output and classifies it.
func (d *Detector) Classify(raw string) Kind {
	return d.ClassifyStripped(Strip(tail(raw, d.window)))
}

// ClassifyStripped classifies text that has already been passed through Strip.
func (d *Detector) ClassifyStripped(text string) Kind {
	if containsAny(text, d.selectHints) && containsAny(text, d.navigateHints) {
		return Question
	}
	if matchAny(text, d.allow) && matchAny(text, d.deny) {
		return Permission
	}
	if matchAny(text, d.confirmations) {
		return Confirmation
	}

	seg := strings.TrimSpace(d.lastSegment(text))
	if !strings.Contains(seg, "?") {
		return None
	}
	if matchAny(seg, d.interrogatives) {
		return Question
	}
	if strings.HasSuffix(seg, "?") && utf8.RuneCountInString(seg) >= d.minQuestion {
		return Question
	}
	return None
}

// lastSegment returns the newest non-empty message segment with boilerplate
// hints removed.
func (d *Detector) lastSegment(text string) string {
	parts := []string{text}
	if d.separator != nil {
		parts = d.separator.Split(text, -1)
	}
	for i := len(parts) - 1; i >= 0; i-- {
		seg := parts[i]
		for _, re := range d.boilerplate {
			seg = re.ReplaceAllString(seg, "")
		}
		if strings.TrimSpace(seg) != "" {
			return seg
		}
	}
	return ""
}

// Ready reports whether raw output shows the agent's idle input prompt.
func (d *Detector) Ready(raw string) bool {
	return matchAny(Strip(tail(raw, d.window)), d.readiness)
}

// SessionID returns the newest session identifier printed in raw output, or
// "" if none is found. Only well-formed UUIDs are accepted.
func (d *Detector) SessionID(raw string) string {
	text := Strip(raw)
	best, bestAt := "", -1
	for _, re := range d.sessionID {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if m[2] < 0 || m[0] < bestAt {
				continue
			}
			id := text[m[2]:m[3]]
			if _, err := uuid.Parse(id); err != nil {
				continue
			}
			best, bestAt = strings.ToLower(id), m[0]
		}
	}
	return best
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func matchAny(text string, res []*regexp.Regexp) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
