package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thisislance98/claudia/pkg/detect"
	"github.com/thisislance98/claudia/pkg/models"
)

func TestDecide(t *testing.T) {
	never := func() detect.Kind {
		t.Fatal("classify must not be called")
		return detect.None
	}
	none := func() detect.Kind { return detect.None }
	confirm := func() detect.Kind { return detect.Confirmation }

	tests := []struct {
		name     string
		prev     int64
		cur      int64
		state    models.State
		classify func() detect.Kind
		want     Transition
	}{
		{
			name: "busy and growing stays busy", prev: 10, cur: 20,
			state: models.StateBusy, classify: never,
			want: Transition{State: models.StateBusy},
		},
		{
			name: "busy settles to idle", prev: 20, cur: 20,
			state: models.StateBusy, classify: none,
			want: Transition{State: models.StateIdle, Changed: true, CaptureGit: true},
		},
		{
			name: "busy settles on a question", prev: 20, cur: 20,
			state: models.StateBusy, classify: confirm,
			want: Transition{State: models.StateWaitingInput, Waiting: models.WaitingConfirmation, Changed: true},
		},
		{
			name: "interrupted settles", prev: 5, cur: 5,
			state: models.StateInterrupted, classify: none,
			want: Transition{State: models.StateIdle, Changed: true, CaptureGit: true},
		},
		{
			name: "interrupted and growing becomes busy", prev: 5, cur: 6,
			state: models.StateInterrupted, classify: never,
			want: Transition{State: models.StateBusy, Changed: true},
		},
		{
			name: "idle wakes on growth", prev: 5, cur: 9,
			state: models.StateIdle, classify: never,
			want: Transition{State: models.StateBusy, Changed: true},
		},
		{
			name: "waiting wakes on growth", prev: 5, cur: 9,
			state: models.StateWaitingInput, classify: never,
			want: Transition{State: models.StateBusy, Changed: true},
		},
		{
			name: "idle without growth is left alone", prev: 9, cur: 9,
			state: models.StateIdle, classify: never,
			want: Transition{State: models.StateIdle},
		},
		{
			name: "waiting without growth is left alone", prev: 9, cur: 9,
			state: models.StateWaitingInput, classify: never,
			want: Transition{State: models.StateWaitingInput},
		},
		{
			name: "exited never changes", prev: 0, cur: 100,
			state: models.StateExited, classify: never,
			want: Transition{State: models.StateExited},
		},
		{
			name: "disconnected never changes", prev: 0, cur: 100,
			state: models.StateDisconnected, classify: never,
			want: Transition{State: models.StateDisconnected},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.prev, tt.cur, tt.state, tt.classify))
		})
	}
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "awaiting_ready", phaseAwaitingReady.String())
	assert.Equal(t, "typing", phaseTyping.String())
	assert.Equal(t, "awaiting_ack", phaseAwaitingAck.String())
	assert.Equal(t, "done", phaseDone.String())
}
