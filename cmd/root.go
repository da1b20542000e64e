package cmd

import (
	"github.com/spf13/cobra"

	"github.com/thisislance98/claudia/cli"
	"github.com/thisislance98/claudia/pkg/profiling"
)

// NewRootCmd assembles the claudia command tree.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand(
		"claudia",
		"Run and supervise interactive coding agents",
	)
	root.Long = `claudia runs coding agents in pseudo-terminals under a background daemon,
submits prompts to them, tracks whether each one is busy, idle or waiting for
input, and keeps sessions across daemon restarts.`
	cli.SetVersionTemplate(root)

	profiler := profiling.NewCobraProfiler()
	profiler.AddFlags(root)
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cli.ConfigureColor(cmd)
		return profiler.PreRun(cmd, args)
	}
	root.PersistentPostRun = profiler.PostRun

	root.AddCommand(
		NewDaemonCmd(),
		NewSessionCmd(),
		NewAttachCmd(),
		NewWorkspaceCmd(),
		NewLogsCmd(),
		NewConfigCmd(),
		NewPathsCmd(),
		cli.NewVersionCommand(),
	)
	return root
}
