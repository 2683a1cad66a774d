package events

import "github.com/kelindar/event"

// SubscribeToChannel bridges kelindar/event callback-based subscriptions to channels.
// SSE handlers need this because Huma expects a channel-based select loop.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			// Slow reader, drop.
		}
	})
}

// SSETypes maps SSE event names to their payload types for /api/events.
func SSETypes() map[string]any {
	return map[string]any{
		"session-state":     SessionStateChangedEvent{},
		"recovery-attempt":  RecoveryAttemptEvent{},
		"health-checked":    HealthCheckedEvent{},
		"heartbeat":         HeartbeatEvent{},
		"registry-reloaded": RegistryReloadedEvent{},
	}
}

// SubscribeAll forwards every non-log event type to ch and returns a
// function that removes all the subscriptions.
func SubscribeAll(bus *Bus, ch chan<- any) func() {
	unsubs := []func(){
		SubscribeToChannel[SessionStateChangedEvent](bus, ch),
		SubscribeToChannel[RecoveryAttemptEvent](bus, ch),
		SubscribeToChannel[HealthCheckedEvent](bus, ch),
		SubscribeToChannel[HeartbeatEvent](bus, ch),
		SubscribeToChannel[RegistryReloadedEvent](bus, ch),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
