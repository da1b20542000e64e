package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/thisislance98/claudia/errors"
	"github.com/thisislance98/claudia/pkg/detect"
	"github.com/thisislance98/claudia/pkg/paths"
	"github.com/thisislance98/claudia/pkg/ringbuf"
	"github.com/thisislance98/claudia/util/pathutil"
)

// Built-in defaults.
const (
	DefaultAgentCommand      = "claude"
	DefaultResumeFlag        = "--resume"
	DefaultSystemPromptFlag  = "--append-system-prompt"
	DefaultInterruptKey      = "\x1b"
	DefaultPollInterval      = 3 * time.Second
	DefaultTypingThreshold   = 50
	DefaultTypingDelay       = 30 * time.Millisecond
	DefaultEnterDelay        = 500 * time.Millisecond
	DefaultEnterRetryDelay   = 700 * time.Millisecond
	DefaultEnterRetries      = 3
	DefaultReadinessTimeout  = 30 * time.Second
	DefaultReconnectAttempts = 2
	DefaultReconnectBackoff  = time.Second
	DefaultReconnectGap      = 300 * time.Millisecond
	DefaultGitTimeout        = 30 * time.Second
	DefaultDebounce          = 500 * time.Millisecond
	DefaultShutdownTimeout   = 10 * time.Second
)

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}

	d := &c.Daemon
	setString(&d.Socket, paths.SocketPath())
	setString(&d.PidFile, paths.PidFilePath())
	setString(&d.WorkspacesFile, paths.WorkspacesFile())
	setDuration(&d.ShutdownTimeout, DefaultShutdownTimeout)
	if d.WatchConfig == nil {
		watch := true
		d.WatchConfig = &watch
	}

	a := &c.Agent
	setString(&a.Command, DefaultAgentCommand)
	setString(&a.ResumeFlag, DefaultResumeFlag)
	setString(&a.SystemPromptFlag, DefaultSystemPromptFlag)
	setString(&a.InterruptKey, DefaultInterruptKey)
	if a.TranscriptDir == "" {
		a.TranscriptDir = defaultTranscriptDir()
	}

	e := &c.Engine
	setDuration(&e.PollInterval, DefaultPollInterval)
	setInt(&e.HistoryBytes, ringbuf.DefaultMaxBytes)
	setInt(&e.TypingThreshold, DefaultTypingThreshold)
	setDuration(&e.TypingDelay, DefaultTypingDelay)
	setDuration(&e.EnterDelay, DefaultEnterDelay)
	setDuration(&e.EnterRetryDelay, DefaultEnterRetryDelay)
	// Zero is meaningful for these two, so only a missing key is defaulted.
	if e.EnterRetries == nil {
		retries := DefaultEnterRetries
		e.EnterRetries = &retries
	}
	if e.ReadinessTimeout == nil {
		timeout := Duration(DefaultReadinessTimeout)
		e.ReadinessTimeout = &timeout
	}
	setInt(&e.ReconnectAttempts, DefaultReconnectAttempts)
	setDuration(&e.ReconnectBackoff, DefaultReconnectBackoff)
	setDuration(&e.ReconnectGap, DefaultReconnectGap)
	setDuration(&e.GitTimeout, DefaultGitTimeout)

	p := &c.Persistence
	setString(&p.Path, paths.SessionsFile())
	setDuration(&p.Debounce, DefaultDebounce)

	for _, path := range []*string{&d.Socket, &d.PidFile, &d.WorkspacesFile, &a.TranscriptDir, &p.Path} {
		*path = pathutil.MustExpand(*path)
	}
}

func setString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func setDuration(dst *Duration, v time.Duration) {
	if *dst == 0 {
		*dst = Duration(v)
	}
}

// Validate checks the semantic rules the schema cannot express.
func (c *Config) Validate() error {
	if c.Agent.Command == "" {
		return errors.New(errors.ErrCodeConfigValidation, "agent.command cannot be empty")
	}
	if c.Engine.PollInterval.Std() < 100*time.Millisecond {
		return errors.New(errors.ErrCodeConfigValidation,
			fmt.Sprintf("engine.poll_interval %s is too short (minimum 100ms)", c.Engine.PollInterval)).
			WithDetail("poll_interval", c.Engine.PollInterval.String())
	}
	if c.Engine.HistoryBytes < 1024 {
		return errors.New(errors.ErrCodeConfigValidation, "engine.history_bytes must be at least 1024").
			WithDetail("history_bytes", c.Engine.HistoryBytes)
	}
	if (c.Engine.EnterRetries != nil && *c.Engine.EnterRetries < 0) || c.Engine.ReconnectAttempts < 1 {
		return errors.New(errors.ErrCodeConfigValidation, "engine.enter_retries must be >= 0 and engine.reconnect_attempts >= 1")
	}
	for _, kv := range c.Agent.Env {
		if !containsEquals(kv) {
			return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("invalid agent.env entry %q (must be KEY=VALUE)", kv)).
				WithDetail("env", kv)
		}
	}
	if _, err := detect.New(c.DetectorPatterns()); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid detector pattern")
	}
	return nil
}

func containsEquals(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] == '=' {
			return true
		}
	}
	return false
}

// defaultTranscriptDir is where the agent keeps per-project transcripts.
func defaultTranscriptDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude", "projects")
}
