package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(HealthCheckedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case SessionStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case RecoveryAttemptEvent:
		event.Publish(b.dispatcher, e)
	case HealthCheckedEvent:
		event.Publish(b.dispatcher, e)
	case HeartbeatEvent:
		event.Publish(b.dispatcher, e)
	case RegistryReloadedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type selects the events it receives.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e HeartbeatEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(SessionStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecoveryAttemptEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(HealthCheckedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(HeartbeatEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RegistryReloadedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
