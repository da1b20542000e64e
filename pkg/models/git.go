package models

import "time"

// GitState is a point-in-time snapshot of a workspace repository taken
// around an agent session.
type GitState struct {
	CommitBefore      string    `json:"commit_before,omitempty"`
	CommitAfter       string    `json:"commit_after,omitempty"`
	ModifiedFiles     []string  `json:"modified_files,omitempty"`
	UncommittedBefore bool      `json:"uncommitted_before"`
	CanRevert         bool      `json:"can_revert"`
	CapturedAt        time.Time `json:"captured_at"`
}

// RevertResult is the outcome of reverting a session's changes.
// Failures are reported here rather than as errors.
type RevertResult struct {
	Success       bool   `json:"success"`
	FilesReverted int    `json:"files_reverted"`
	Error         string `json:"error,omitempty"`
}
