package detect

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// cursorForwardRe matches CSI n C. Agent TUIs use it in place of spaces.
var cursorForwardRe = regexp.MustCompile(`\x1b\[(\d*)C`)

const maxCursorSpaces = 256

// Strip removes terminal control sequences and non-printable characters from
// raw terminal output and normalizes line endings to "\n".
func Strip(raw string) string {
	s := cursorForwardRe.ReplaceAllStringFunc(raw, func(m string) string {
		n := 1
		if digits := m[2 : len(m)-1]; digits != "" {
			if v, err := strconv.Atoi(digits); err == nil && v > 0 {
				n = v
			}
		}
		if n > maxCursorSpaces {
			n = maxCursorSpaces
		}
		return strings.Repeat(" ", n)
	})

	s = ansi.Strip(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == utf8.RuneError, unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
}

// tail returns at most the last n bytes of s.
func tail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
