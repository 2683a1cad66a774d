package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
	"github.com/bulutsoft-dev/Transmind-PI/internal/stream"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan HealthCheckedEvent, 1)

	unsub := bus.Subscribe(func(e HealthCheckedEvent) {
		received <- e
	})
	defer unsub()

	event := HealthCheckedEvent{
		Source:    "capture:/dev/video0",
		Status:    "unhealthy",
		Reason:    "probe_timeout",
		LatencyMs: 2000,
	}
	bus.Publish(event)

	got := <-received
	if got != event {
		t.Errorf("got %+v, want %+v", got, event)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan SessionStateChangedEvent, 1)
	received2 := make(chan SessionStateChangedEvent, 1)

	unsub1 := bus.Subscribe(func(e SessionStateChangedEvent) { received1 <- e })
	defer unsub1()
	unsub2 := bus.Subscribe(func(e SessionStateChangedEvent) { received2 <- e })
	defer unsub2()

	bus.Publish(SessionStateChangedEvent{SessionID: "s1", From: "idle", To: "opening"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan HeartbeatEvent, 1)

	unsub := bus.Subscribe(func(e HeartbeatEvent) { received <- e })

	bus.Publish(HeartbeatEvent{Action: "ping"})
	<-received

	unsub()

	bus.Publish(HeartbeatEvent{Action: "ping"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	healthReceived := make(chan bool, 1)
	recoveryReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ HealthCheckedEvent) { healthReceived <- true })
	defer unsub1()
	unsub2 := bus.Subscribe(func(_ RecoveryAttemptEvent) { recoveryReceived <- true })
	defer unsub2()

	bus.Publish(HealthCheckedEvent{Status: "healthy"})
	<-healthReceived

	select {
	case <-recoveryReceived:
		t.Fatal("Recovery subscriber should NOT have received HealthCheckedEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(RecoveryAttemptEvent{ConsecutiveFailures: 1})
	<-recoveryReceived

	select {
	case <-healthReceived:
		t.Fatal("Health subscriber should NOT have received RecoveryAttemptEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ RecoveryAttemptEvent) { receivedCh <- true })
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range eventsPerGoroutine {
				bus.Publish(RecoveryAttemptEvent{ConsecutiveFailures: i})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	if unsub == nil {
		t.Fatal("expected a no-op unsubscribe function")
	}
	unsub()
}

func TestSubscribeToChannelDropsWhenFull(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)
	unsub := SubscribeAll(bus, ch)
	defer unsub()

	bus.Publish(RegistryReloadedEvent{Devices: 1})
	first := <-ch
	if ev, ok := first.(RegistryReloadedEvent); !ok || ev.Devices != 1 {
		t.Fatalf("unexpected first event %#v", first)
	}

	// Fill the channel, then publish more than it can hold.
	for i := range 5 {
		bus.Publish(HeartbeatEvent{MissedPings: i})
	}
	deadline := time.After(200 * time.Millisecond)
	select {
	case <-ch:
	case <-deadline:
		t.Fatal("expected at least one forwarded event")
	}
}

func TestSSETypesMatchSubscriptions(t *testing.T) {
	for name, payload := range SSETypes() {
		if _, ok := payload.(Event); !ok {
			t.Errorf("%s payload %T does not implement Event", name, payload)
		}
	}
}

func TestLogEntryEventJSON(t *testing.T) {
	ts := time.Date(2025, 1, 9, 10, 30, 0, 123e6, time.UTC)
	ev := NewLogEntryEvent(logging.LogEntry{
		Timestamp:  ts,
		Level:      "warn",
		Module:     "stream",
		Message:    "Source failed, recovering",
		Attributes: map[string]any{"session_id": "s1"},
	})

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["timestamp"] != "2025-01-09T10:30:00.123Z" {
		t.Errorf("timestamp = %v", decoded["timestamp"])
	}
	if decoded["module"] != "stream" || decoded["level"] != "warn" {
		t.Errorf("unexpected payload %v", decoded)
	}
}

type failingSource struct{}

func (failingSource) Name() string { return "failing" }

func (failingSource) Open(context.Context) (stream.Handle, error) {
	return nil, errors.New("no camera")
}

func TestSessionOptionsPublishStates(t *testing.T) {
	bus := New()
	states := make(chan SessionStateChangedEvent, 4)
	unsub := bus.Subscribe(func(e SessionStateChangedEvent) { states <- e })
	defer unsub()

	s := stream.NewSession(failingSource{}, SessionOptions(bus)...)
	if err := s.Open(context.Background()); err == nil {
		t.Fatal("expected open failure")
	}

	first, second := <-states, <-states
	if first.From != "idle" || first.To != "opening" || first.SessionID != s.ID() {
		t.Errorf("first event = %+v", first)
	}
	if second.To != "terminated" || second.Error == "" || second.Source != "failing" {
		t.Errorf("second event = %+v", second)
	}
}
