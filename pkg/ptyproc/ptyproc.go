// Package ptyproc spawns agent processes attached to a pseudo-terminal.
package ptyproc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"

	"github.com/thisislance98/claudia/pkg/process"
)

// Default terminal geometry when the caller does not supply one.
const (
	DefaultCols uint16 = 120
	DefaultRows uint16 = 40
)

const (
	readBufferSize   = 32 * 1024
	defaultKillGrace = 3 * time.Second
)

// Options describes a process to start.
type Options struct {
	Command string
	Args    []string
	Dir     string
	// Env is appended to the daemon's environment.
	Env  []string
	Cols uint16
	Rows uint16
}

// Process is a handle to a running child.
type Process interface {
	Pid() int
	Write(p []byte) (int, error)
	Resize(cols, rows uint16) error
	Kill() error
}

// DataFunc receives output chunks in arrival order from a single goroutine.
// The slice is owned by the callee.
type DataFunc func(chunk []byte)

// ExitFunc is called exactly once after the output stream has drained.
type ExitFunc func(code int)

// Spawner starts processes.
type Spawner interface {
	Spawn(opts Options, onData DataFunc, onExit ExitFunc) (Process, error)
}

// PTYSpawner starts processes on a new pseudo-terminal in their own session.
type PTYSpawner struct {
	// KillGrace is how long Kill waits after SIGTERM before SIGKILL.
	KillGrace time.Duration
	Logger    *logrus.Entry
}

// NewPTYSpawner returns a spawner with default settings.
func NewPTYSpawner(logger *logrus.Entry) *PTYSpawner {
	return &PTYSpawner{KillGrace: defaultKillGrace, Logger: logger}
}

// Spawn starts opts.Command on a pty and begins streaming its output.
func (s *PTYSpawner) Spawn(opts Options, onData DataFunc, onExit ExitFunc) (Process, error) {
	if opts.Command == "" {
		return nil, errors.New("no command given")
	}
	path, err := exec.LookPath(opts.Command)
	if err != nil {
		return nil, fmt.Errorf("command %q not found: %w", opts.Command, err)
	}

	cols, rows := opts.Cols, opts.Rows
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}

	cmd := exec.Command(path, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, opts.Env...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("failed to start %s on pty: %w", opts.Command, err)
	}

	grace := s.KillGrace
	if grace <= 0 {
		grace = defaultKillGrace
	}
	p := &ptyProcess{
		cmd:   cmd,
		ptmx:  ptmx,
		grace: grace,
		done:  make(chan struct{}),
	}
	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"command": opts.Command,
			"pid":     cmd.Process.Pid,
			"dir":     opts.Dir,
		}).Debug("Spawned process on pty")
	}

	go p.pump(onData, onExit)
	return p, nil
}

type ptyProcess struct {
	cmd   *exec.Cmd
	ptmx  *os.File
	grace time.Duration

	writeMu  sync.Mutex
	killOnce sync.Once
	done     chan struct{}
}

func (p *ptyProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *ptyProcess) Write(b []byte) (int, error) {
	select {
	case <-p.done:
		return 0, os.ErrClosed
	default:
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.ptmx.Write(b)
}

func (p *ptyProcess) Resize(cols, rows uint16) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// Kill terminates the whole process group. Repeated calls are no-ops.
func (p *ptyProcess) Kill() error {
	var err error
	p.killOnce.Do(func() {
		err = process.TerminateGroup(p.cmd.Process.Pid, p.grace, p.done)
	})
	return err
}

func (p *ptyProcess) pump(onData DataFunc, onExit ExitFunc) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 && onData != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onData(chunk)
		}
		if err != nil {
			// EIO once the slave side closes.
			break
		}
	}

	code := exitCode(p.cmd.Wait())
	_ = p.ptmx.Close()
	close(p.done)
	if onExit != nil {
		onExit(code)
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}
	return -1
}
