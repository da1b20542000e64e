package config

import (
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/thisislance98/claudia/pkg/detect"
)

// Duration is a time.Duration written as a Go duration string ("3s", "500ms")
// in configuration files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML accepts duration strings only.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a string like \"3s\"", node.Line)
	}
	return d.UnmarshalText([]byte(node.Value))
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// JSONSchema describes Duration as a pattern-checked string.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration string, e.g. 500ms, 3s, 1m",
	}
}

// DaemonConfig controls the background daemon.
type DaemonConfig struct {
	Socket          string   `yaml:"socket,omitempty" json:"socket,omitempty" toml:"socket,omitempty" jsonschema:"description=Unix socket path for the daemon API"`
	PidFile         string   `yaml:"pid_file,omitempty" json:"pid_file,omitempty" toml:"pid_file,omitempty" jsonschema:"description=PID file path"`
	WorkspacesFile  string   `yaml:"workspaces_file,omitempty" json:"workspaces_file,omitempty" toml:"workspaces_file,omitempty" jsonschema:"description=Workspace registry file"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout,omitempty" json:"shutdown_timeout,omitempty" toml:"shutdown_timeout,omitempty" jsonschema:"description=Grace period for disconnecting sessions on shutdown"`
	WatchConfig     *bool    `yaml:"watch_config,omitempty" json:"watch_config,omitempty" toml:"watch_config,omitempty" jsonschema:"description=Reload the detector table when the config file changes (default: true)"`
}

// AgentConfig describes how agent processes are started.
type AgentConfig struct {
	Command          string   `yaml:"command,omitempty" json:"command,omitempty" toml:"command,omitempty" jsonschema:"description=Agent executable"`
	Args             []string `yaml:"args,omitempty" json:"args,omitempty" toml:"args,omitempty" jsonschema:"description=Arguments passed on every start"`
	ResumeFlag       string   `yaml:"resume_flag,omitempty" json:"resume_flag,omitempty" toml:"resume_flag,omitempty" jsonschema:"description=Flag that resumes a conversation by session identifier"`
	SystemPromptFlag string   `yaml:"system_prompt_flag,omitempty" json:"system_prompt_flag,omitempty" toml:"system_prompt_flag,omitempty" jsonschema:"description=Flag that appends a system prompt"`
	Env              []string `yaml:"env,omitempty" json:"env,omitempty" toml:"env,omitempty" jsonschema:"description=Extra KEY=VALUE environment entries"`
	Cols             int      `yaml:"cols,omitempty" json:"cols,omitempty" toml:"cols,omitempty" jsonschema:"minimum=0,maximum=1000,description=Initial terminal width"`
	Rows             int      `yaml:"rows,omitempty" json:"rows,omitempty" toml:"rows,omitempty" jsonschema:"minimum=0,maximum=1000,description=Initial terminal height"`
	InterruptKey     string   `yaml:"interrupt_key,omitempty" json:"interrupt_key,omitempty" toml:"interrupt_key,omitempty" jsonschema:"description=Bytes written to interrupt a busy agent"`
	TranscriptDir    string   `yaml:"transcript_dir,omitempty" json:"transcript_dir,omitempty" toml:"transcript_dir,omitempty" jsonschema:"description=Directory where the agent writes per-project transcripts"`
}

// EngineConfig tunes polling, submission and reconnection.
type EngineConfig struct {
	PollInterval      Duration  `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty" toml:"poll_interval,omitempty" jsonschema:"description=Interval between state polls"`
	HistoryBytes      int       `yaml:"history_bytes,omitempty" json:"history_bytes,omitempty" toml:"history_bytes,omitempty" jsonschema:"minimum=0,description=Per-session output history ceiling"`
	TypingThreshold   int       `yaml:"typing_threshold,omitempty" json:"typing_threshold,omitempty" toml:"typing_threshold,omitempty" jsonschema:"minimum=0,description=Prompts up to this many characters are typed one at a time"`
	TypingDelay       Duration  `yaml:"typing_delay,omitempty" json:"typing_delay,omitempty" toml:"typing_delay,omitempty" jsonschema:"description=Delay between typed characters"`
	EnterDelay        Duration  `yaml:"enter_delay,omitempty" json:"enter_delay,omitempty" toml:"enter_delay,omitempty" jsonschema:"description=Delay between writing text and pressing Enter"`
	EnterRetryDelay   Duration  `yaml:"enter_retry_delay,omitempty" json:"enter_retry_delay,omitempty" toml:"enter_retry_delay,omitempty" jsonschema:"description=Delay before checking that Enter was acknowledged"`
	EnterRetries      *int      `yaml:"enter_retries,omitempty" json:"enter_retries,omitempty" toml:"enter_retries,omitempty" jsonschema:"minimum=0,description=Maximum Enter resends"`
	ReadinessTimeout  *Duration `yaml:"readiness_timeout,omitempty" json:"readiness_timeout,omitempty" toml:"readiness_timeout,omitempty" jsonschema:"description=Submit the initial prompt anyway after this long (0 waits forever)"`
	ReconnectAttempts int       `yaml:"reconnect_attempts,omitempty" json:"reconnect_attempts,omitempty" toml:"reconnect_attempts,omitempty" jsonschema:"minimum=0,description=Attempts per session during startup reconnection"`
	ReconnectBackoff  Duration  `yaml:"reconnect_backoff,omitempty" json:"reconnect_backoff,omitempty" toml:"reconnect_backoff,omitempty" jsonschema:"description=Backoff unit between attempts (multiplied by attempt number)"`
	ReconnectGap      Duration  `yaml:"reconnect_gap,omitempty" json:"reconnect_gap,omitempty" toml:"reconnect_gap,omitempty" jsonschema:"description=Pause before reconnecting the next session"`
	GitTimeout        Duration  `yaml:"git_timeout,omitempty" json:"git_timeout,omitempty" toml:"git_timeout,omitempty" jsonschema:"description=Timeout for git state capture"`
}

// PersistenceConfig controls the session store.
type PersistenceConfig struct {
	Path     string   `yaml:"path,omitempty" json:"path,omitempty" toml:"path,omitempty" jsonschema:"description=Session store file"`
	Debounce Duration `yaml:"debounce,omitempty" json:"debounce,omitempty" toml:"debounce,omitempty" jsonschema:"description=Write coalescing window"`
}

// Config is the claudia configuration file.
type Config struct {
	Version     string            `yaml:"version,omitempty" json:"version,omitempty" toml:"version,omitempty" jsonschema:"description=Configuration version (e.g. '1.0')"`
	Daemon      DaemonConfig      `yaml:"daemon,omitempty" json:"daemon,omitempty" toml:"daemon,omitempty"`
	Agent       AgentConfig       `yaml:"agent,omitempty" json:"agent,omitempty" toml:"agent,omitempty"`
	Engine      EngineConfig      `yaml:"engine,omitempty" json:"engine,omitempty" toml:"engine,omitempty"`
	Persistence PersistenceConfig `yaml:"persistence,omitempty" json:"persistence,omitempty" toml:"persistence,omitempty"`
	// Detector overrides individual fields of the built-in pattern table.
	Detector detect.Patterns `yaml:"detector,omitempty" json:"detector,omitempty" toml:"detector,omitempty"`

	// Extensions captures all other top-level keys, e.g. "logging".
	Extensions map[string]interface{} `yaml:",inline" json:"-" toml:"-" jsonschema:"-"`
}

// coreKeys are the top-level keys decoded into Config fields.
var coreKeys = map[string]bool{
	"version":     true,
	"daemon":      true,
	"agent":       true,
	"engine":      true,
	"persistence": true,
	"detector":    true,
}
