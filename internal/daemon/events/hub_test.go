package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thisislance98/claudia/pkg/models"
)

func TestPublishFanOut(t *testing.T) {
	h := New()
	a := h.Subscribe()
	b := h.Subscribe()
	assert.Equal(t, 2, h.Subscribers())

	h.Publish(models.Event{Type: models.EventSessionCreated, SessionID: "s1"})

	for _, ch := range []chan models.Event{a, b} {
		select {
		case e := <-ch:
			assert.Equal(t, models.EventSessionCreated, e.Type)
			assert.Equal(t, "s1", e.SessionID)
		default:
			t.Fatal("expected an event")
		}
	}
}

func TestPublishPreservesOrder(t *testing.T) {
	h := New()
	ch := h.Subscribe()

	for _, data := range []string{"a", "b", "c"} {
		h.Publish(models.Event{Type: models.EventOutput, Data: []byte(data)})
	}
	var got string
	for i := 0; i < 3; i++ {
		got += string((<-ch).Data)
	}
	assert.Equal(t, "abc", got)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewWithBuffer(1)
	slow := h.Subscribe()

	h.Publish(models.Event{Type: models.EventOutput})
	h.Publish(models.Event{Type: models.EventOutput})
	h.Publish(models.Event{Type: models.EventOutput})

	assert.Len(t, slow, 1)
	assert.Equal(t, int64(2), h.Dropped())
}

func TestUnsubscribe(t *testing.T) {
	h := New()
	ch := h.Subscribe()
	h.Unsubscribe(ch)
	h.Unsubscribe(ch)

	_, open := <-ch
	require.False(t, open)
	assert.Equal(t, 0, h.Subscribers())

	h.Publish(models.Event{Type: models.EventDestroyed})
}

func TestClose(t *testing.T) {
	h := New()
	a := h.Subscribe()
	h.Close()
	_, open := <-a
	assert.False(t, open)
	h.Unsubscribe(a)
}
