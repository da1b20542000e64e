package cli

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thisislance98/claudia/errors"
	"github.com/thisislance98/claudia/pkg/models"
)

func TestErrorHandler(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "daemon unavailable",
			err:  errors.DaemonUnavailable("/run/claudia/claudiad.sock", nil),
			want: []string{"not running", "/run/claudia/claudiad.sock", "claudia daemon start"},
		},
		{
			name: "session not found",
			err:  errors.SessionNotFound("abc"),
			want: []string{"Session 'abc' not found", "claudia session list"},
		},
		{
			name: "workspace not found",
			err:  errors.WorkspaceNotFound("api"),
			want: []string{"Workspace 'api'", "claudia workspace add"},
		},
		{
			name: "invalid state",
			err:  errors.InvalidState("abc", "archived", "write to"),
			want: []string{"archived"},
		},
		{
			name: "plain error",
			err:  fmt.Errorf("boom"),
			want: []string{"Error: boom"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			h := &ErrorHandler{Out: &out}
			assert.Equal(t, tc.err, h.Handle(tc.err))
			for _, w := range tc.want {
				assert.Contains(t, out.String(), w)
			}
		})
	}
}

func TestErrorHandlerVerbose(t *testing.T) {
	var out bytes.Buffer
	h := &ErrorHandler{Verbose: true, Out: &out}
	h.Handle(errors.SessionNotFound("abc"))
	assert.Contains(t, out.String(), `"code": "SESSION_NOT_FOUND"`)

	assert.NoError(t, h.Handle(nil))
}

func TestProgressReporter(t *testing.T) {
	var out bytes.Buffer
	p := NewProgressReporter(&out)
	p.Track("a")
	p.Track("b")

	live := &models.Session{State: models.StateIdle}
	assert.False(t, p.Event(models.Event{
		Type:     models.EventReconnectProgress,
		Progress: &models.ReconnectProgress{Phase: models.ReconnectStarted, Total: 2},
	}))
	assert.False(t, p.Event(models.Event{Type: models.EventStateChanged, SessionID: "a", Session: live}))
	// Duplicate and untracked changes are not reported again.
	p.Event(models.Event{Type: models.EventStateChanged, SessionID: "a", Session: live})
	p.Event(models.Event{Type: models.EventStateChanged, SessionID: "other", Session: live})
	assert.True(t, p.Event(models.Event{
		Type:     models.EventReconnectProgress,
		Progress: &models.ReconnectProgress{Phase: models.ReconnectComplete, Total: 2, Failed: 1},
	}))

	p.Done(&models.ReconnectReport{Total: 2, Failed: 1, FailedIDs: []string{"b"}})

	assert.Equal(t, [][2]string{{"a", "reconnected"}, {"b", "failed"}}, p.Statuses())
	assert.Contains(t, out.String(), "Reconnecting 2 session(s)")
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("a: reconnected")))
	assert.NotContains(t, out.String(), "other")
	assert.Contains(t, out.String(), "1 reconnected, 1 failed")
}

func TestStandardCommandFlags(t *testing.T) {
	root := NewStandardCommand("claudia", "test")
	var got CommandOptions
	root.AddCommand(&cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			got = GetOptions(cmd)
			return nil
		},
	})

	root.SetArgs([]string{"probe", "-v", "--json", "-c", "/tmp/claudia.yml"})
	require.NoError(t, root.Execute())
	assert.Equal(t, CommandOptions{ConfigFile: "/tmp/claudia.yml", Verbose: true, JSONOutput: true}, got)
}

func TestStyledHelp(t *testing.T) {
	root := NewStandardCommand("claudia", "Run agents")
	sub := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		Long: `Prints the log.

Examples:
  # Follow
  claudia logs -f`,
		Run: func(cmd *cobra.Command, args []string) {},
	}
	sub.Flags().BoolP("follow", "f", false, "Follow log output")
	root.AddCommand(sub)

	var out bytes.Buffer
	renderHelp(&out, sub, 60)
	text := out.String()
	assert.Contains(t, text, "CLAUDIA LOGS")
	assert.Contains(t, text, "Prints the log.")
	assert.Contains(t, text, "--follow")
	assert.Contains(t, text, "# Follow")
	assert.NotContains(t, text, "Examples:")

	out.Reset()
	renderHelp(&out, root, 60)
	assert.Contains(t, out.String(), "COMMANDS")
	assert.Contains(t, out.String(), "logs")
}

func TestWrapText(t *testing.T) {
	wrapped := wrapText("one two three four five", 9)
	assert.Equal(t, "one two\nthree\nfour five", wrapped)
	assert.Equal(t, "short\n\nkept", wrapText("short\n\nkept", 20))
}

func TestRenderState(t *testing.T) {
	s := &models.Session{State: models.StateWaitingInput, WaitingInputType: models.WaitingPermission}
	assert.Contains(t, RenderState(s), "waiting_input (permission)")
}
