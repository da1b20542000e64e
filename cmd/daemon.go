package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/thisislance98/claudia/cli"
	"github.com/thisislance98/claudia/config"
	"github.com/thisislance98/claudia/git"
	"github.com/thisislance98/claudia/internal/daemon/engine"
	"github.com/thisislance98/claudia/internal/daemon/events"
	"github.com/thisislance98/claudia/internal/daemon/persist"
	"github.com/thisislance98/claudia/internal/daemon/pidfile"
	"github.com/thisislance98/claudia/internal/daemon/server"
	"github.com/thisislance98/claudia/pkg/daemon"
	"github.com/thisislance98/claudia/pkg/detect"
	"github.com/thisislance98/claudia/pkg/paths"
	"github.com/thisislance98/claudia/pkg/profiling"
	"github.com/thisislance98/claudia/pkg/ptyproc"
	"github.com/thisislance98/claudia/pkg/sessions"
	"github.com/thisislance98/claudia/state"
	"github.com/thisislance98/claudia/version"
)

// NewDaemonCmd returns the daemon command with subcommands.
func NewDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and control the claudia daemon",
		Long:  "The daemon owns every agent session and serves the API on a unix socket.",
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())

	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			return runDaemon(cmd, cfg, cfgPath)
		},
	}
}

func runDaemon(cmd *cobra.Command, cfg *config.Config, cfgPath string) error {
	logger := cli.GetLogger(cmd, "daemon")

	if err := paths.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to create claudia directories: %w", err)
	}

	// 1. Acquire lock
	lock, err := pidfile.Acquire(cfg.Daemon.PidFile)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.WithError(err).Error("Failed to release pidfile")
		}
	}()

	// 2. Collaborators and engine
	det, err := detect.New(cfg.DetectorPatterns())
	if err != nil {
		return err
	}
	hub := events.New()
	defer hub.Close()
	store := persist.New(cfg.Persistence.Path, cfg.Persistence.Debounce.Std(), cli.GetLogger(cmd, "persist"))
	registry := state.NewRegistry(cfg.Daemon.WorkspacesFile)

	eng := engine.New(engine.OptionsFromConfig(cfg), engine.Deps{
		Spawner:     ptyproc.NewPTYSpawner(cli.GetLogger(cmd, "ptyproc")),
		Git:         git.NewSnapshotter(cli.GetLogger(cmd, "git")),
		Workspaces:  registry,
		Identifiers: sessions.NewTranscriptFinder(cfg.Agent.TranscriptDir),
		Store:       store,
		Events:      hub,
		Detector:    det,
	}, cli.GetLogger(cmd, "engine"))
	loading := profiling.Start("engine.load_persisted")
	eng.LoadPersisted()
	loading.Stop()

	// 3. Server
	srv := server.New(cli.GetLogger(cmd, "server"))
	srv.SetSessions(eng)
	srv.SetWorkspaces(registry)
	srv.SetEvents(hub)
	srv.SetRunningConfig(&server.RunningConfig{
		PID:          os.Getpid(),
		Version:      version.Version,
		Socket:       cfg.Daemon.Socket,
		ConfigFile:   cfgPath,
		SessionsFile: cfg.Persistence.Path,
		AgentCommand: cfg.Agent.Command,
		PollInterval: cfg.Engine.PollInterval.Std(),
		StartedAt:    time.Now(),
	})

	listening := profiling.Start("server.listen")
	listener, err := server.Listen(cfg.Daemon.Socket)
	listening.Stop()
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Daemon.Socket, err)
	}

	// 4. Signals
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Config watcher
	if *cfg.Daemon.WatchConfig {
		watcher, err := daemon.NewConfigWatcher(cfgPath, 0, cli.GetLogger(cmd, "config"), reloadDetector(eng, logger))
		if err != nil {
			logger.WithError(err).Warn("Config watcher disabled")
		} else {
			defer watcher.Close()
			go watcher.Start(ctx)
		}
	}

	// 6. Engine and server
	go eng.Run(ctx)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(listener) }()

	logger.WithFields(logrus.Fields{
		"pid":    os.Getpid(),
		"socket": cfg.Daemon.Socket,
		"config": cfgPath,
	}).Info("Starting daemon")

	select {
	case <-ctx.Done():
		logger.Info("Received stop signal")
	case err = <-serveErr:
		if err != nil {
			logger.WithError(err).Error("Server stopped")
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Daemon.ShutdownTimeout.Std())
	defer cancel()

	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.WithError(serr).Error("Server shutdown error")
	}
	if eerr := eng.Shutdown(shutdownCtx); eerr != nil {
		logger.WithError(eerr).Error("Engine shutdown error")
	}
	logger.Info("Daemon stopped")

	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// reloadDetector swaps the engine's pattern table when the config changes.
func reloadDetector(eng *engine.Engine, logger *logrus.Entry) daemon.ReloadFunc {
	return func(cfg *config.Config, file string) {
		det, err := detect.New(cfg.DetectorPatterns())
		if err != nil {
			logger.WithError(err).WithField("file", file).Warn("Ignoring invalid detector patterns")
			return
		}
		eng.SetDetector(det)
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			running, pid, err := pidfile.IsRunning(cfg.Daemon.PidFile)
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			client, err := daemon.Connect(cfg.Daemon.Socket)
			if err != nil {
				running, pid, _ := pidfile.IsRunning(cfg.Daemon.PidFile)
				if running {
					fmt.Fprintf(cmd.OutOrStdout(), "Process %d is running but %s does not answer\n", pid, cfg.Daemon.Socket)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
				}
				os.Exit(1)
			}
			defer client.Close()

			running, err := client.GetConfig(cmd.Context())
			if err != nil {
				return err
			}
			listing, err := client.ListSessions(cmd.Context())
			if err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				return printJSON(cmd, map[string]interface{}{
					"daemon":       running,
					"live":         len(listing.Live),
					"disconnected": len(listing.Disconnected),
					"archived":     len(listing.Archived),
				})
			}

			configFile := running.ConfigFile
			if configFile == "" {
				configFile = "(defaults)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.KeyValueTable([][2]string{
				{"Status", "running"},
				{"PID", fmt.Sprint(running.PID)},
				{"Version", running.Version},
				{"Uptime", time.Since(running.StartedAt).Round(time.Second).String()},
				{"Socket", running.Socket},
				{"Config", configFile},
				{"Agent", running.AgentCommand},
				{"Sessions", fmt.Sprintf("%d live, %d disconnected, %d archived",
					len(listing.Live), len(listing.Disconnected), len(listing.Archived))},
			}))
			return nil
		},
	}
}
