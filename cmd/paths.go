package cmd

import (
	"github.com/spf13/cobra"

	"github.com/thisislance98/claudia/cli"
	"github.com/thisislance98/claudia/pkg/paths"
)

// PathsOutput lists the on-disk locations claudia uses.
type PathsOutput struct {
	ConfigDir      string `json:"config_dir"`
	StateDir       string `json:"state_dir"`
	RuntimeDir     string `json:"runtime_dir"`
	LogDir         string `json:"log_dir"`
	Socket         string `json:"socket"`
	PidFile        string `json:"pid_file"`
	SessionsFile   string `json:"sessions_file"`
	WorkspacesFile string `json:"workspaces_file"`
}

// NewPathsCmd creates the `paths` command.
func NewPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the paths used by claudia",
		Long: `Prints the directories and files claudia uses, after applying the
configuration. Set CLAUDIA_HOME to keep everything under one directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			output := PathsOutput{
				ConfigDir:      paths.ConfigDir(),
				StateDir:       paths.StateDir(),
				RuntimeDir:     paths.RuntimeDir(),
				LogDir:         paths.LogDir(),
				Socket:         cfg.Daemon.Socket,
				PidFile:        cfg.Daemon.PidFile,
				SessionsFile:   cfg.Persistence.Path,
				WorkspacesFile: cfg.Daemon.WorkspacesFile,
			}
			return printJSON(cmd, output)
		},
	}
}
