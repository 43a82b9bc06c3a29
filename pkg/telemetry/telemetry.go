package telemetry

import (
	"sync"
	"time"
)

// EventType identifies the kind of session event.
type EventType string

const (
	EventConversationCreated  EventType = "conversation.created"
	EventConversationFailed   EventType = "conversation.failed"
	EventStateTransition      EventType = "state.transition"
	EventUploadCompleted      EventType = "upload.completed"
	EventCodeGenStarted       EventType = "codegen.started"
	EventCodeGenCompleted     EventType = "codegen.completed"
	EventCodeGenFailed        EventType = "codegen.failed"
	EventCodeGenCancelled     EventType = "codegen.cancelled"
	EventChangesInserted      EventType = "changes.inserted"
	EventDocGeneration        EventType = "doc.generation"
	EventDocAcceptance        EventType = "doc.acceptance"
	EventTelemetrySubmitError EventType = "telemetry.submit_error"
)

// Event describes session activity that UIs and log tailers can consume.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TabID     string         `json:"tabId,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Hub fan-outs events to any number of subscribers. A nil *Hub drops
// everything.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
}

// NewHub constructs an event hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Event]struct{})}
}

// Publish notifies all subscribers of an event. Non-blocking; drops if buffer full.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel that will receive future events and a cleanup func.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		empty := make(chan Event)
		close(empty)
		return empty, func() {}
	}
	ch := make(chan Event, 64)
	h.subscribers[ch] = struct{}{}
	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Close unsubscribes all listeners and prevents future publications.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, ch)
	}
}
