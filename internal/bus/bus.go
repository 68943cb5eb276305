// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

// Event types for CortexSprite
const (
	// Lifecycle events
	EventTypeCharacterLoaded EventType = "character.loaded"
	EventTypeSceneVisible    EventType = "scene.visible"
	EventTypeAutoStart       EventType = "playback.autostart"
	EventTypePlayComplete    EventType = "playback.complete"
	EventTypePreloadComplete EventType = "preload.complete"
	EventTypeStateChanged    EventType = "playback.state_changed"
	EventTypeClosedCaption   EventType = "caption.staged"

	// Embedded command events
	EventTypeEmbeddedCommand EventType = "command.embedded"
	EventTypeScriptCommand   EventType = "command.script"
	EventTypeNavigate        EventType = "command.navigate"
	EventTypeRunAction       EventType = "command.run"

	// Audio events
	EventTypeSpeakingStarted EventType = "audio.speaking_started"
	EventTypeSpeakingStopped EventType = "audio.speaking_stopped"

	// Errors
	EventTypeServiceError EventType = "service.error"
)

// AllEventTypes lists every event type the engine publishes
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeCharacterLoaded,
		EventTypeSceneVisible,
		EventTypeAutoStart,
		EventTypePlayComplete,
		EventTypePreloadComplete,
		EventTypeStateChanged,
		EventTypeClosedCaption,
		EventTypeEmbeddedCommand,
		EventTypeScriptCommand,
		EventTypeNavigate,
		EventTypeRunAction,
		EventTypeSpeakingStarted,
		EventTypeSpeakingStopped,
		EventTypeServiceError,
	}
}

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

func (b *EventBus) snapshot(t EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, len(b.handlers[t]))
	copy(handlers, b.handlers[t])
	return handlers
}

// Publish sends an event to all subscribed handlers without waiting
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		go handler(event)
	}
}

// PublishSync delivers an event to each handler in subscription order on
// the calling goroutine. Handlers observe events in publish order.
func (b *EventBus) PublishSync(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		handler(event)
	}
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}
