package models

import (
	"time"
)

// State is the lifecycle state of an agent session.
type State string

const (
	StateBusy         State = "busy"
	StateIdle         State = "idle"
	StateWaitingInput State = "waiting_input"
	StateExited       State = "exited"
	StateDisconnected State = "disconnected"
	StateInterrupted  State = "interrupted"
	StateArchived     State = "archived"
)

// IsLive reports whether a session in this state is backed by a running process.
func (s State) IsLive() bool {
	switch s {
	case StateBusy, StateIdle, StateWaitingInput, StateInterrupted:
		return true
	}
	return false
}

// WaitingInputType classifies what kind of input a blocked session is asking for.
type WaitingInputType string

const (
	WaitingQuestion     WaitingInputType = "question"
	WaitingPermission   WaitingInputType = "permission"
	WaitingConfirmation WaitingInputType = "confirmation"
)

// Location names which of the engine's collections holds a session.
type Location string

const (
	LocationLive         Location = "live"
	LocationDisconnected Location = "disconnected"
	LocationArchived     Location = "archived"
)

// Session is the public, normalized view of an agent session. It never
// carries a process handle or a live output buffer.
type Session struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	WorkspaceID   string   `json:"workspace_id"`
	WorkspacePath string   `json:"workspace_path,omitempty"`
	SystemPrompt  string   `json:"system_prompt,omitempty"`
	State         State    `json:"state"`
	Location      Location `json:"location"`

	// WaitingInputType is set if and only if State is StateWaitingInput.
	WaitingInputType WaitingInputType `json:"waiting_input_type,omitempty"`

	// SessionIdentifier is the agent's own conversation id, used to resume
	// the same conversation after a reconnect.
	SessionIdentifier string `json:"session_identifier,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	ArchivedAt   *time.Time `json:"archived_at,omitempty"`

	// WasInterrupted marks a session that was busy when the daemon stopped.
	WasInterrupted bool `json:"was_interrupted,omitempty"`
	ExitCode       *int `json:"exit_code,omitempty"`
	OutputSize     int  `json:"output_size"`

	GitStateBefore *GitState `json:"git_state_before,omitempty"`
	GitState       *GitState `json:"git_state,omitempty"`
}

// Listing groups sessions by the collection that holds them.
type Listing struct {
	Live         []*Session `json:"live"`
	Disconnected []*Session `json:"disconnected"`
	Archived     []*Session `json:"archived"`
}

// All returns every session in the listing.
func (l Listing) All() []*Session {
	all := make([]*Session, 0, len(l.Live)+len(l.Disconnected)+len(l.Archived))
	all = append(all, l.Live...)
	all = append(all, l.Disconnected...)
	all = append(all, l.Archived...)
	return all
}
