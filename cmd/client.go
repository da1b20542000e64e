package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thisislance98/claudia/cli"
	"github.com/thisislance98/claudia/pkg/daemon"
)

// newClient returns a daemon client for the configured socket. Workspace
// commands keep working through the local fallback when the daemon is down.
func newClient(cmd *cobra.Command) (daemon.Client, error) {
	cfg, _, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return daemon.New(cfg.Daemon.Socket, cfg.Daemon.WorkspacesFile), nil
}

// connect returns a client bound to the running daemon, failing with
// DAEMON_UNAVAILABLE when it is not reachable.
func connect(cmd *cobra.Command) (*daemon.RemoteClient, error) {
	cfg, _, err := cli.LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return daemon.Connect(cfg.Daemon.Socket)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
