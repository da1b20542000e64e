package models

import "time"

// EventType names a notification emitted by the engine.
type EventType string

const (
	EventSessionCreated    EventType = "session_created"
	EventStateChanged      EventType = "state_changed"
	EventOutput            EventType = "output"
	EventWaitingInput      EventType = "waiting_input"
	EventDestroyed         EventType = "destroyed"
	EventReconnectProgress EventType = "reconnect_progress"
)

// Event is a single engine notification. Data carries raw output bytes for
// EventOutput and is base64-encoded on the wire.
type Event struct {
	Type      EventType          `json:"type"`
	SessionID string             `json:"session_id,omitempty"`
	Session   *Session           `json:"session,omitempty"`
	Data      []byte             `json:"data,omitempty"`
	Progress  *ReconnectProgress `json:"progress,omitempty"`
	Time      time.Time          `json:"time"`
}

// ReconnectPhase marks the start or end of a reconnection run.
type ReconnectPhase string

const (
	ReconnectStarted  ReconnectPhase = "started"
	ReconnectComplete ReconnectPhase = "complete"
)

// ReconnectProgress describes the state of a startup reconnection run.
type ReconnectProgress struct {
	Phase     ReconnectPhase `json:"phase"`
	Total     int            `json:"total"`
	Failed    int            `json:"failed"`
	FailedIDs []string       `json:"failed_ids,omitempty"`
}

// ReconnectReport is the result of reconnecting all disconnected sessions.
type ReconnectReport struct {
	Total     int      `json:"total"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failed_ids,omitempty"`
}
