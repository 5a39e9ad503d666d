package agent

import (
	"sync"
	"time"
)

// EventKind identifies the type of an engine event. The values double as
// the wire-level "type" field of the JSON-lines bridge protocol.
type EventKind string

const (
	EventSystemInfo     EventKind = "system_info"
	EventStatus         EventKind = "status"
	EventToken          EventKind = "token"
	EventToolCall       EventKind = "tool_call"
	EventToolResult     EventKind = "tool_result"
	EventConfirmRequest EventKind = "confirm_request"
	EventAssistantDone  EventKind = "assistant_done"
	EventChatFinished   EventKind = "chat_finished"
	EventSkillsList     EventKind = "skills_list"
	EventError          EventKind = "error"
)

// Event is a typed event emitted by the engine.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Emitter delivers engine events to the attached front-end via a
// buffered channel. Emitting never blocks the turn loop: when the
// consumer falls behind and the buffer is full, the event is dropped.
type Emitter struct {
	ch     chan Event
	closed bool
	mu     sync.Mutex
}

// NewEmitter creates an Emitter with the given buffer size (<= 0 uses 256).
func NewEmitter(bufferSize int) *Emitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Emitter{ch: make(chan Event, bufferSize)}
}

// Emit sends an event to the channel. Events emitted after Close are
// silently dropped.
func (e *Emitter) Emit(kind EventKind, data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
		// Buffer full; drop rather than stall the loop.
	}
}

// Events returns the read-only event channel.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Close closes the event channel. Safe to call more than once.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
