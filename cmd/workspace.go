package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/thisislance98/claudia/cli"
	"github.com/thisislance98/claudia/util/pathutil"
)

// NewWorkspaceCmd creates the `workspace` command.
func NewWorkspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workspace",
		Aliases: []string{"ws"},
		Short:   "Manage the directories agents run in",
		Long: `A workspace is a named directory. Sessions are created in a workspace by id;
an absolute directory works as an id too. These commands work without a
running daemon.`,
	}
	cmd.AddCommand(newWorkspaceAddCmd(), newWorkspaceListCmd(), newWorkspaceRemoveCmd())
	return cmd
}

func newWorkspaceAddCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add <id> [path]",
		Short: "Register a workspace (path defaults to the current directory)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 2 {
				dir = args[1]
			}
			abs, err := pathutil.Expand(dir)
			if err != nil {
				return fmt.Errorf("failed to resolve %s: %w", dir, err)
			}

			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			w, err := c.AddWorkspace(cmd.Context(), args[0], abs, name)
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, w)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.Success(fmt.Sprintf("Registered %s → %s", w.ID, w.Path)))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	return cmd
}

func newWorkspaceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered workspaces",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			list, err := c.ListWorkspaces(cmd.Context())
			if err != nil {
				return err
			}
			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No workspaces registered")
				return nil
			}

			t := cli.NewTable("ID", "NAME", "PATH", "ADDED")
			for _, w := range list {
				path := w.Path
				if _, err := os.Stat(path); err != nil {
					path += " " + cli.Muted("(missing)")
				}
				t = t.Row(w.ID, w.Name, path, w.AddedAt.Local().Format("2006-01-02"))
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}
}

func newWorkspaceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Unregister a workspace",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.RemoveWorkspace(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.Success("Removed "+args[0]))
			return nil
		},
	}
}
