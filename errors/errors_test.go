package errors

import (
	"fmt"
	"testing"
)

func TestError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeSessionNotFound, "session not found")
	if err.Code != ErrCodeSessionNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeSessionNotFound, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeCommandFailed, "command failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	// Test Is function
	if !Is(wrapped, ErrCodeCommandFailed) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeSessionNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	// Codes survive fmt.Errorf wrapping
	outer := fmt.Errorf("reconnect: %w", wrapped)
	if GetCode(outer) != ErrCodeCommandFailed {
		t.Errorf("expected code to be found through wrapping, got %q", GetCode(outer))
	}

	// Test WithDetail
	detailed := err.WithDetail("session", "abc").WithDetail("attempt", 2)
	if detailed.Details["session"] != "abc" {
		t.Error("WithDetail should add details")
	}
}

func TestErrorConstructors(t *testing.T) {
	err := SessionNotFound("abc")
	if err.Code != ErrCodeSessionNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeSessionNotFound, err.Code)
	}
	if err.Details["session"] != "abc" {
		t.Error("SessionNotFound should include session detail")
	}

	err = InvalidState("abc", "archived", "write")
	if err.Code != ErrCodeInvalidState {
		t.Errorf("expected code %s, got %s", ErrCodeInvalidState, err.Code)
	}
	if err.Details["operation"] != "write" {
		t.Error("InvalidState should include operation detail")
	}

	err = SpawnFailed("claude", fmt.Errorf("exec: not found"))
	if !Is(err, ErrCodeSpawnFailed) {
		t.Error("SpawnFailed should carry the spawn code")
	}
}
