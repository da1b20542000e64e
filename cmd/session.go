package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/thisislance98/claudia/cli"
	"github.com/thisislance98/claudia/errors"
	"github.com/thisislance98/claudia/pkg/daemon"
	"github.com/thisislance98/claudia/pkg/detect"
	"github.com/thisislance98/claudia/pkg/models"
)

const shortIDLen = 8

// NewSessionCmd creates the `session` command.
func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"s"},
		Short:   "Create and control agent sessions",
		Long: `Sessions are agent processes owned by the daemon. Any command taking an id
accepts a unique prefix of it.

Examples:
  # Start an agent in a registered workspace
  claudia session create -w api "fix the flaky test in store_test.go"

  # Answer a question the agent is waiting on
  claudia session send 3f2a yes

  # Follow state changes of every session
  claudia session watch`,
	}

	cmd.AddCommand(
		newSessionCreateCmd(),
		newSessionListCmd(),
		newSessionShowCmd(),
		newSessionSendCmd(),
		newSessionWriteCmd(),
		newSessionInterruptCmd(),
		newSessionDestroyCmd(),
		newSessionOpCmd("disconnect", "Stop the process but keep the session for a later reconnect", (*daemon.RemoteClient).Disconnect),
		newSessionOpCmd("reconnect", "Restart the agent of a disconnected session", (*daemon.RemoteClient).Reconnect),
		newSessionOpCmd("archive", "Move a session to the archive", (*daemon.RemoteClient).Archive),
		newSessionOpCmd("restore", "Move an archived session back to disconnected", (*daemon.RemoteClient).Restore),
		newSessionRemoveArchivedCmd(),
		newSessionReconnectAllCmd(),
		newSessionRevertCmd(),
		newSessionWatchCmd(),
	)
	return cmd
}

// resolveID expands a unique id prefix. Unknown ids are returned unchanged
// so the daemon reports them.
func resolveID(ctx context.Context, c daemon.Client, arg string) (string, error) {
	listing, err := c.ListSessions(ctx)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, s := range listing.All() {
		if s.ID == arg {
			return arg, nil
		}
		if strings.HasPrefix(s.ID, arg) {
			matches = append(matches, s.ID)
		}
	}
	switch len(matches) {
	case 0:
		return arg, nil
	case 1:
		return matches[0], nil
	}
	return "", errors.InvalidInput(fmt.Sprintf("session prefix %q is ambiguous (%d matches)", arg, len(matches)))
}

// withSession connects to the daemon and resolves args[0].
func withSession(cmd *cobra.Command, args []string, fn func(ctx context.Context, c *daemon.RemoteClient, id string) error) error {
	c, err := connect(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	id, err := resolveID(ctx, c, args[0])
	if err != nil {
		return err
	}
	return fn(ctx, c, id)
}

func printSession(cmd *cobra.Command, s *models.Session) error {
	if cli.GetOptions(cmd).JSONOutput {
		return printJSON(cmd, s)
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.KeyValueTable(sessionRows(s)))
	return nil
}

func sessionRows(s *models.Session) [][2]string {
	rows := [][2]string{
		{"ID", s.ID},
		{"State", cli.RenderState(s)},
		{"Location", string(s.Location)},
		{"Workspace", workspaceLabel(s)},
		{"Prompt", truncate(s.Prompt, 60)},
		{"Created", s.CreatedAt.Local().Format(time.DateTime)},
		{"Last activity", since(s.LastActivity)},
		{"Output", fmt.Sprintf("%d bytes", s.OutputSize)},
	}
	if s.SessionIdentifier != "" {
		rows = append(rows, [2]string{"Conversation", s.SessionIdentifier})
	}
	if s.ExitCode != nil {
		rows = append(rows, [2]string{"Exit code", strconv.Itoa(*s.ExitCode)})
	}
	if s.WasInterrupted {
		rows = append(rows, [2]string{"Interrupted", "busy when the daemon stopped"})
	}
	if s.ArchivedAt != nil {
		rows = append(rows, [2]string{"Archived", s.ArchivedAt.Local().Format(time.DateTime)})
	}
	if g := s.GitState; g != nil {
		rows = append(rows,
			[2]string{"Commit before", shortCommit(g.CommitBefore)},
			[2]string{"Commit after", shortCommit(g.CommitAfter)},
			[2]string{"Modified files", strconv.Itoa(len(g.ModifiedFiles))},
			[2]string{"Can revert", strconv.FormatBool(g.CanRevert)},
		)
	}
	return rows
}

func workspaceLabel(s *models.Session) string {
	if s.WorkspacePath != "" && s.WorkspacePath != s.WorkspaceID {
		return s.WorkspaceID + " " + cli.Muted("("+s.WorkspacePath+")")
	}
	return s.WorkspaceID
}

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

func shortCommit(c string) string {
	if c == "" {
		return "-"
	}
	if len(c) > 12 {
		return c[:12]
	}
	return c
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}

func newSessionCreateCmd() *cobra.Command {
	var workspace, systemPrompt string
	var attach bool

	cmd := &cobra.Command{
		Use:   "create [prompt...]",
		Short: "Start a new agent session",
		Long: `Starts the agent in a workspace and submits the prompt once the agent is
ready. Use "-" as the prompt to read it from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if prompt == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read prompt: %w", err)
				}
				prompt = strings.TrimSpace(string(data))
			}

			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			s, err := c.CreateSession(cmd.Context(), daemon.CreateRequest{
				Prompt:       prompt,
				WorkspaceID:  workspace,
				SystemPrompt: systemPrompt,
			})
			if err != nil {
				return err
			}
			if attach {
				return attachSession(cmd, c, s.ID)
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, s)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.Success(fmt.Sprintf("Created session %s in %s", s.ID, s.WorkspaceID)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace id or absolute directory")
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", "", "Extra system prompt passed to the agent")
	cmd.Flags().BoolVarP(&attach, "attach", "a", false, "Attach to the session terminal after creating it")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

func newSessionListCmd() *cobra.Command {
	var archived bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			listing, err := c.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			if !archived {
				listing.Archived = nil
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, listing)
			}

			all := listing.All()
			if len(all) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions")
				return nil
			}
			t := cli.NewTable("ID", "STATE", "WORKSPACE", "PROMPT", "ACTIVE")
			for _, s := range all {
				t = t.Row(shortID(s.ID), cli.RenderState(s), s.WorkspaceID, truncate(s.Prompt, 40), since(s.LastActivity))
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "Include archived sessions")
	return cmd
}

func newSessionShowCmd() *cobra.Command {
	var output, plain bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a session, or its terminal output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, args, func(ctx context.Context, c *daemon.RemoteClient, id string) error {
				if !output && !plain {
					s, err := c.GetSession(ctx, id)
					if err != nil {
						return err
					}
					return printSession(cmd, s)
				}
				data, err := c.Output(ctx, id)
				if err != nil {
					return err
				}
				if plain {
					_, err = io.WriteString(cmd.OutOrStdout(), detect.Strip(string(data)))
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&output, "output", false, "Print the raw terminal output")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print the terminal output without control sequences")
	return cmd
}

func newSessionSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <id> <text...>",
		Short: "Submit text to the agent as if typed, followed by Enter",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, args, func(ctx context.Context, c *daemon.RemoteClient, id string) error {
				return c.SendInput(ctx, id, strings.Join(args[1:], " "))
			})
		},
	}
}

// unescape interprets Go escape sequences such as \r or \x1b.
func unescape(s string) string {
	if u, err := strconv.Unquote(`"` + strings.ReplaceAll(s, `"`, `\"`) + `"`); err == nil {
		return u
	}
	return s
}

func newSessionWriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <id> <data>",
		Short: "Write raw bytes to the session terminal",
		Long: `Writes data to the terminal unchanged, apart from Go escape sequences.

Examples:
  # Press Enter
  claudia session write 3f2a '\r'

  # Pick the second menu option
  claudia session write 3f2a '\x1b[B\r'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, args, func(ctx context.Context, c *daemon.RemoteClient, id string) error {
				return c.Write(ctx, id, []byte(unescape(args[1])))
			})
		},
	}
}

func newSessionInterruptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interrupt <id>",
		Short: "Interrupt a busy agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, args, func(ctx context.Context, c *daemon.RemoteClient, id string) error {
				sent, err := c.Interrupt(ctx, id)
				if err != nil {
					return err
				}
				if sent {
					fmt.Fprintln(cmd.OutOrStdout(), cli.Success("Interrupted "+id))
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Session is not busy")
				}
				return nil
			})
		},
	}
}

func newSessionDestroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "destroy <id>",
		Aliases: []string{"kill"},
		Short:   "Kill the agent and forget the session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, args, func(ctx context.Context, c *daemon.RemoteClient, id string) error {
				if err := c.Destroy(ctx, id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.Success("Destroyed "+id))
				return nil
			})
		},
	}
}

type sessionOp func(c *daemon.RemoteClient, ctx context.Context, id string) (*models.Session, error)

func newSessionOpCmd(use, short string, op sessionOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, args, func(ctx context.Context, c *daemon.RemoteClient, id string) error {
				s, err := op(c, ctx, id)
				if err != nil {
					return err
				}
				if cli.GetOptions(cmd).JSONOutput {
					return printJSON(cmd, s)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", shortID(s.ID), cli.RenderState(s))
				return nil
			})
		},
	}
}

func newSessionRemoveArchivedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm-archived <id>",
		Short: "Delete an archived session permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, args, func(ctx context.Context, c *daemon.RemoteClient, id string) error {
				if err := c.DeleteArchived(ctx, id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.Success("Deleted "+id))
				return nil
			})
		},
	}
}

func newSessionReconnectAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconnect-all",
		Short: "Reconnect every disconnected session, one at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			listing, err := c.ListSessions(ctx)
			if err != nil {
				return err
			}
			jsonOutput := cli.GetOptions(cmd).JSONOutput
			progress := cli.NewProgressReporter(cmd.OutOrStdout())
			for _, s := range listing.Disconnected {
				progress.Track(s.ID)
			}
			watched := make(chan struct{})
			if !jsonOutput {
				evs, err := c.StreamEvents(ctx, "")
				if err != nil {
					return err
				}
				go func() {
					defer close(watched)
					for ev := range evs {
						if progress.Event(ev) {
							return
						}
					}
				}()
			} else {
				close(watched)
			}

			report, err := c.ReconnectAll(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, report)
			}
			if report.Total > 0 {
				select {
				case <-watched:
				case <-time.After(time.Second):
				}
			}
			cancel()
			progress.Done(report)
			return nil
		},
	}
}

func newSessionRevertCmd() *cobra.Command {
	var clean bool

	cmd := &cobra.Command{
		Use:   "revert <id>",
		Short: "Revert the files the session changed",
		Long: `Restores the workspace to the commit recorded before the session started.
Refused when the workspace already had uncommitted changes at that time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, args, func(ctx context.Context, c *daemon.RemoteClient, id string) error {
				res, err := c.Revert(ctx, id, clean)
				if err != nil {
					return err
				}
				if cli.GetOptions(cmd).JSONOutput {
					return printJSON(cmd, res)
				}
				if !res.Success {
					return errors.New(errors.ErrCodeCommandFailed, "revert failed: "+res.Error).
						WithDetail("session", id)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.Success(fmt.Sprintf("Reverted %d file(s)", res.FilesReverted)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&clean, "clean", false, "Also delete untracked files created by the session")
	return cmd
}

func newSessionWatchCmd() *cobra.Command {
	var output bool

	cmd := &cobra.Command{
		Use:   "watch [id]",
		Short: "Stream session events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			id := ""
			if len(args) == 1 {
				if id, err = resolveID(ctx, c, args[0]); err != nil {
					return err
				}
			}

			evs, err := c.StreamEvents(ctx, id)
			if err != nil {
				return err
			}
			jsonOutput := cli.GetOptions(cmd).JSONOutput
			enc := json.NewEncoder(cmd.OutOrStdout())
			for ev := range evs {
				if ev.Type == models.EventOutput && !output {
					continue
				}
				if jsonOutput {
					if err := enc.Encode(ev); err != nil {
						return err
					}
					continue
				}
				if ev.Type == models.EventOutput {
					if _, err := cmd.OutOrStdout().Write(ev.Data); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), formatEvent(ev))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&output, "output", false, "Include terminal output")
	return cmd
}

func formatEvent(ev models.Event) string {
	ts := cli.Muted(ev.Time.Local().Format("15:04:05"))
	switch {
	case ev.Progress != nil:
		return fmt.Sprintf("%s %-18s %s total=%d failed=%d", ts, ev.Type, ev.Progress.Phase, ev.Progress.Total, ev.Progress.Failed)
	case ev.Session != nil:
		return fmt.Sprintf("%s %-18s %s %s", ts, ev.Type, shortID(ev.SessionID), cli.RenderState(ev.Session))
	}
	return fmt.Sprintf("%s %-18s %s", ts, ev.Type, shortID(ev.SessionID))
}
