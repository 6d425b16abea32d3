package sync

import (
	"log/slog"
	"sync"
	"time"
)

const eventBufferSize = 64

// EventType identifies a scheduler notification.
type EventType string

const (
	EventSyncStarted  EventType = "sync_started"
	EventSyncFinished EventType = "sync_finished"
	EventStatusText   EventType = "status_text"
	EventPrompt       EventType = "prompt"
	EventBubble       EventType = "bubble"
)

// Event is the broadcast form of an EventSink call.
type Event struct {
	Type       EventType `json:"type"`
	Time       time.Time `json:"time"`
	FullSync   bool      `json:"full_sync,omitempty"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message,omitempty"`
	Background bool      `json:"background,omitempty"`
	Text       string    `json:"text,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Title      string    `json:"title,omitempty"`
	Body       string    `json:"body,omitempty"`
	Payload    any       `json:"payload,omitempty"`
}

// EventHub is an EventSink that fans events out to subscribers.
// Slow subscribers lose events instead of blocking the worker.
type EventHub struct {
	subs []chan *Event
	mu   sync.RWMutex

	lastFinish *Event
	lastMu     sync.RWMutex
}

func NewEventHub() *EventHub {
	return &EventHub{
		subs: make([]chan *Event, 0),
	}
}

// Subscribe returns a channel receiving every subsequent event.
func (h *EventHub) Subscribe() <-chan *Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan *Event, eventBufferSize)
	h.subs = append(h.subs, ch)
	return ch
}

// Unsubscribe removes and closes a subscription channel
func (h *EventHub) Unsubscribe(ch <-chan *Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, sub := range h.subs {
		if sub == ch {
			close(sub)
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			break
		}
	}
}

// LastFinish returns the most recent finish event, or nil.
func (h *EventHub) LastFinish() *Event {
	h.lastMu.RLock()
	defer h.lastMu.RUnlock()
	return h.lastFinish
}

func (h *EventHub) broadcast(event *Event) {
	event.Time = time.Now()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		select {
		case sub <- event:
		default:
			slog.Debug("sync event dropped", "type", event.Type)
		}
	}
}

func (h *EventHub) OnStart(fullSync bool) {
	h.broadcast(&Event{Type: EventSyncStarted, FullSync: fullSync})
}

func (h *EventHub) OnFinish(code string, message string, background bool) {
	event := &Event{Type: EventSyncFinished, Code: code, Message: message, Background: background}
	h.lastMu.Lock()
	h.lastFinish = event
	h.lastMu.Unlock()
	h.broadcast(event)
}

func (h *EventHub) OnStatusText(text string) {
	slog.Info("[sync] " + text)
	h.broadcast(&Event{Type: EventStatusText, Text: text})
}

func (h *EventHub) OnPromptMessage(kind PromptKind, title string, body string) {
	h.broadcast(&Event{Type: EventPrompt, Kind: kind.String(), Title: title, Body: body})
}

func (h *EventHub) OnBubbleNotification(payload any) {
	h.broadcast(&Event{Type: EventBubble, Payload: payload})
}

var _ EventSink = (*EventHub)(nil)

type discardSink struct{}

func (discardSink) OnStart(bool)                               {}
func (discardSink) OnFinish(string, string, bool)              {}
func (discardSink) OnStatusText(string)                        {}
func (discardSink) OnPromptMessage(PromptKind, string, string) {}
func (discardSink) OnBubbleNotification(any)                   {}
