package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/thisislance98/claudia/pkg/daemon"
)

// detachKey is Ctrl-].
const detachKey = 0x1d

// NewAttachCmd creates the `attach` command.
func NewAttachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach <id>",
		Short: "Attach the terminal to a running session",
		Long: `Connects stdin and stdout to the agent's terminal. The session history is
replayed first. Press Ctrl-] to detach; the session keeps running.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, args, func(ctx context.Context, c *daemon.RemoteClient, id string) error {
				return attachSession(cmd, c, id)
			})
		},
	}
}

func attachSession(cmd *cobra.Command, c *daemon.RemoteClient, id string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	att, err := c.Attach(ctx, id)
	if err != nil {
		return err
	}
	defer att.Close()

	stdin := int(os.Stdin.Fd())
	if term.IsTerminal(stdin) {
		old, err := term.MakeRaw(stdin)
		if err != nil {
			return fmt.Errorf("failed to set raw mode: %w", err)
		}
		defer term.Restore(stdin, old)

		resize := func() {
			if cols, rows, err := term.GetSize(stdin); err == nil {
				_ = att.Resize(uint16(cols), uint16(rows))
			}
		}
		resize()

		winch := make(chan os.Signal, 1)
		signal.Notify(winch, syscall.SIGWINCH)
		defer signal.Stop(winch)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-winch:
					resize()
				}
			}
		}()
	}

	out := cmd.OutOrStdout()
	recvDone := make(chan error, 1)
	go func() {
		for {
			data, err := att.Recv()
			if err != nil {
				recvDone <- err
				return
			}
			if _, err := out.Write(data); err != nil {
				recvDone <- err
				return
			}
		}
	}()

	detached := make(chan struct{})
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				chunk := buf[:n]
				if i := bytes.IndexByte(chunk, detachKey); i >= 0 {
					if i > 0 {
						_ = att.Send(chunk[:i])
					}
					close(detached)
					return
				}
				if err := att.Send(chunk); err != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	select {
	case <-detached:
		fmt.Fprint(cmd.ErrOrStderr(), "\r\n[detached]\r\n")
		return nil
	case err := <-recvDone:
		if err == io.EOF {
			fmt.Fprintf(cmd.ErrOrStderr(), "\r\n[%s]\r\n", att.Reason())
			return nil
		}
		return err
	}
}
