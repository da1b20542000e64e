package detect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrip(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"sgr", "\x1b[31mred\x1b[0m plain", "red plain"},
		{"line endings", "a\r\nb\rc\n", "a\nb\nc\n"},
		{"cursor forward", "next\x1b[3Cword\x1b[Cx", "next   word x"},
		{"osc title", "\x1b]0;claude\x07body", "body"},
		{"bracketed paste", "\x1b[200~pasted\x1b[201~", "pasted"},
		{"non-printable", "a\x00b\x07c\x7fd", "abcd"},
		{"unicode kept", "⏺ ✻ Thinking…", "⏺ ✻ Thinking…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Strip(tt.raw))
		})
	}
}

func TestClassifyMarkers(t *testing.T) {
	d := Default()

	tests := []struct {
		name string
		text string
		want Kind
	}{
		{
			name: "select and navigate",
			text: "Pick one\n❯ 1. Postgres\n  2. SQLite\nEnter to select · ↑/↓ to navigate · Esc to cancel",
			want: Question,
		},
		{
			name: "allow and deny",
			text: "Bash command\n  rm -rf build\n  Allow   Deny",
			want: Permission,
		},
		{
			name: "yes no",
			text: "Overwrite existing file? (y/n)",
			want: Confirmation,
		},
		{
			name: "bracketed yes no",
			text: "Continue [Y/n]",
			want: Confirmation,
		},
		{
			name: "plain narrative",
			text: "⏺ I updated the handler and ran the tests. Everything passes.",
			want: None,
		},
		{
			name: "interrogative in last segment",
			text: "⏺ Done with step one.\n⏺ Which database should I use for this?\n\n> \n? for shortcuts",
			want: Question,
		},
		{
			name: "trailing question mark",
			text: "⏺ Ready to push these to production?",
			want: Question,
		},
		{
			name: "short trailing question mark",
			text: "⏺ Really?",
			want: None,
		},
		{
			name: "question in earlier segment only",
			text: "⏺ What should the name be?\n⏺ I went with handler.go and finished.\n──────────\n> \n? for shortcuts",
			want: None,
		},
		{
			name: "boilerplate question mark ignored",
			text: "⏺ All tests pass.\n╭──────────╮\n│ >        │\n╰──────────╯\n  ? for shortcuts",
			want: None,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.ClassifyStripped(tt.text))
		})
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	d := Default()
	inputs := []string{
		"Enter to select · ↑/↓ to navigate",
		"Allow Deny",
		"(y/n)",
		"⏺ How would you like me to proceed?",
		"nothing to see",
	}
	for _, in := range inputs {
		first := d.ClassifyStripped(in)
		assert.Equal(t, first, d.ClassifyStripped(in), in)
		assert.Equal(t, d.Classify(in), d.Classify(in), in)
	}
}

func TestClassifyRaw(t *testing.T) {
	d := Default()
	raw := "\x1b[1m⏺\x1b[0m Would you like me to\x1b[1Cadd tests?\r\n\x1b[2m? for shortcuts\x1b[0m"
	assert.Equal(t, Question, d.Classify(raw))
}

func TestClassifyUsesWindow(t *testing.T) {
	p := DefaultPatterns()
	p.Window = 64
	d, err := New(p)
	require.NoError(t, err)

	raw := "Overwrite? (y/n)\n" + strings.Repeat("streaming output ", 10)
	assert.Equal(t, None, d.Classify(raw))
	assert.Equal(t, Confirmation, Default().Classify(raw))
}

func TestReady(t *testing.T) {
	d := Default()

	assert.True(t, d.Ready("╭────╮\r\n│ >  │\r\n╰────╯\r\n  ? for shortcuts"))
	assert.True(t, d.Ready("\x1b[2m> Try \"fix lint errors\"\x1b[0m"))
	assert.True(t, d.Ready("welcome\n> \n"))
	assert.False(t, d.Ready("Loading workspace..."))
	assert.False(t, d.Ready(""))
}

func TestSessionID(t *testing.T) {
	d := Default()

	assert.Equal(t,
		"123e4567-e89b-12d3-a456-426614174000",
		d.SessionID("banner\nSession ID: 123E4567-E89B-12D3-A456-426614174000\n"))
	assert.Equal(t,
		"00000000-0000-4000-8000-000000000002",
		d.SessionID("session_id=00000000-0000-4000-8000-000000000001\nclaude --resume 00000000-0000-4000-8000-000000000002"))
	assert.Empty(t, d.SessionID("session id: not-a-uuid"))
	assert.Empty(t, d.SessionID("no identifier here"))
}

func TestNewRejectsBadPatterns(t *testing.T) {
	p := DefaultPatterns()
	p.Confirmations = []string{"("}
	_, err := New(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confirmations")

	p = DefaultPatterns()
	p.SessionID = []string{`session [0-9a-f-]+`}
	_, err = New(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture group")
}

func TestNewAppliesDefaults(t *testing.T) {
	d, err := New(Patterns{})
	require.NoError(t, err)
	assert.Equal(t, DefaultWindow, d.Window())
	assert.Equal(t, None, d.ClassifyStripped("at all?"))
	assert.Equal(t, Question, d.ClassifyStripped("is that everything we need?"))
}
