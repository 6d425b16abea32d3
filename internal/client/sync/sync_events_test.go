package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHub_Broadcast(t *testing.T) {
	hub := NewEventHub()
	a := hub.Subscribe()
	b := hub.Subscribe()

	hub.OnStart(true)
	hub.OnFinish(CodeAuthFailed, "expired", false)

	for _, ch := range []<-chan *Event{a, b} {
		ev := <-ch
		assert.Equal(t, EventSyncStarted, ev.Type)
		assert.True(t, ev.FullSync)
		assert.False(t, ev.Time.IsZero())

		ev = <-ch
		assert.Equal(t, EventSyncFinished, ev.Type)
		assert.Equal(t, CodeAuthFailed, ev.Code)
		assert.Equal(t, "expired", ev.Message)
	}

	last := hub.LastFinish()
	require.NotNil(t, last)
	assert.Equal(t, CodeAuthFailed, last.Code)
}

func TestEventHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewEventHub()
	ch := hub.Subscribe()

	for i := 0; i < eventBufferSize*2; i++ {
		hub.OnStatusText("downloading")
	}
	assert.Len(t, ch, eventBufferSize)
}

func TestEventHub_Unsubscribe(t *testing.T) {
	hub := NewEventHub()
	ch := hub.Subscribe()
	hub.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok)

	// no subscribers left, must not panic
	hub.OnPromptMessage(PromptWarning, "title", "body")
	hub.OnBubbleNotification(map[string]string{"kb": "kbA"})
	assert.Nil(t, hub.LastFinish())
}

func TestEventHub_PromptAndBubble(t *testing.T) {
	hub := NewEventHub()
	ch := hub.Subscribe()

	hub.OnPromptMessage(PromptError, "Sync failed", "token expired")
	hub.OnBubbleNotification("3 notes updated")

	ev := <-ch
	assert.Equal(t, EventPrompt, ev.Type)
	assert.Equal(t, "error", ev.Kind)
	assert.Equal(t, "Sync failed", ev.Title)

	ev = <-ch
	assert.Equal(t, EventBubble, ev.Type)
	assert.Equal(t, "3 notes updated", ev.Payload)
}

func TestErrorDetails(t *testing.T) {
	code, msg := errorDetails(nil)
	assert.Equal(t, CodeOK, code)
	assert.Empty(t, msg)

	code, msg = errorDetails(assert.AnError)
	assert.Equal(t, CodeSyncFailed, code)
	assert.Equal(t, assert.AnError.Error(), msg)

	code, msg = errorDetails(NewAuthError(CodeNoEndpoint, "no endpoint", nil))
	assert.Equal(t, CodeNoEndpoint, code)
	assert.Equal(t, "no endpoint", msg)
}
