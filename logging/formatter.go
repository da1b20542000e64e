package logging

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

// leadingFields are printed right after the message, before the sorted rest.
var leadingFields = []string{"session_id", "session", "workspace"}

var (
	componentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	levelStyles    = map[logrus.Level]lipgloss.Style{
		logrus.PanicLevel: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		logrus.FatalLevel: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		logrus.ErrorLevel: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		logrus.WarnLevel:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		logrus.DebugLevel: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		logrus.TraceLevel: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
)

// TextFormatter renders entries as
// `<time> [LEVEL] [component] message session_id=<id> key=value...`.
type TextFormatter struct {
	Config FormatConfig
	// Plain disables color, e.g. for file sinks.
	Plain bool
}

// Format renders a single log entry.
func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder

	if !f.Config.DisableTimestamp {
		b.WriteString(entry.Time.Format("2006-01-02 15:04:05"))
		b.WriteString(" ")
	}

	level := "[" + LevelLabel(entry.Level) + "]"
	if style, ok := levelStyles[entry.Level]; ok && !f.Plain {
		level = style.Render(level)
	}
	b.WriteString(level)

	if component, ok := entry.Data["component"]; ok && !f.Config.DisableComponent {
		name := fmt.Sprint(component)
		if !f.Plain {
			name = componentStyle.Render(name)
		}
		fmt.Fprintf(&b, " [%s]", name)
	}

	if entry.HasCaller() {
		fmt.Fprintf(&b, " [%s:%d %s]",
			filepath.Base(entry.Caller.File), entry.Caller.Line, filepath.Base(entry.Caller.Function))
	}

	b.WriteString(" ")
	b.WriteString(entry.Message)

	for _, key := range fieldOrder(entry.Data) {
		fmt.Fprintf(&b, " %s=%s", key, formatValue(entry.Data[key]))
	}

	b.WriteString("\n")
	return []byte(b.String()), nil
}

// LevelLabel is the upper-case label used in text logs; warning becomes WARN.
func LevelLabel(level logrus.Level) string {
	if level == logrus.WarnLevel {
		return "WARN"
	}
	return strings.ToUpper(level.String())
}

func fieldOrder(data logrus.Fields) []string {
	keys := make([]string, 0, len(data))
	for _, key := range leadingFields {
		if _, ok := data[key]; ok {
			keys = append(keys, key)
		}
	}
	rest := make([]string, 0, len(data))
	for key := range data {
		if key == "component" || isLeading(key) {
			continue
		}
		rest = append(rest, key)
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func isLeading(key string) bool {
	for _, k := range leadingFields {
		if k == key {
			return true
		}
	}
	return false
}

// formatValue quotes values that would otherwise split into several fields.
func formatValue(v interface{}) string {
	s := fmt.Sprint(v)
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
