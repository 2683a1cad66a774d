package events

import "github.com/bulutsoft-dev/Transmind-PI/internal/logging"

// Event type constants for kelindar/event.
const (
	TypeSessionStateChanged uint32 = iota + 1
	TypeRecoveryAttempt
	TypeHealthChecked
	TypeHeartbeat
	TypeRegistryReloaded
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionStateChangedEvent is published on every stream session transition.
type SessionStateChangedEvent struct {
	SessionID string `json:"session_id" example:"5f0c1c3e-8a51-4b7e-9d5b-0c0e0a4c2f11" doc:"Session identifier"`
	Source    string `json:"source" example:"capture:/dev/video0" doc:"Frame source name"`
	From      string `json:"from" example:"opening" doc:"Previous state"`
	To        string `json:"to" example:"streaming" doc:"New state"`
	Error     string `json:"error,omitempty" doc:"Failure that caused the transition"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionStateChangedEvent.
func (e SessionStateChangedEvent) Type() uint32 { return TypeSessionStateChanged }

// RecoveryAttemptEvent is published after every reopen attempt.
type RecoveryAttemptEvent struct {
	SessionID           string `json:"session_id" doc:"Session identifier"`
	Source              string `json:"source" doc:"Frame source name"`
	Success             bool   `json:"success" doc:"Whether the reopen delivered a frame"`
	ConsecutiveFailures int    `json:"consecutive_failures" example:"3" doc:"Failures since the last good frame"`
	Error               string `json:"error,omitempty" doc:"Attempt failure"`
	Timestamp           string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecoveryAttemptEvent.
func (e RecoveryAttemptEvent) Type() uint32 { return TypeRecoveryAttempt }

// HealthCheckedEvent carries the result of a health probe.
type HealthCheckedEvent struct {
	Source    string `json:"source" doc:"Probed source"`
	Status    string `json:"status" example:"healthy" doc:"healthy or unhealthy"`
	Reason    string `json:"reason,omitempty" example:"probe_timeout" doc:"Failure reason"`
	Message   string `json:"message,omitempty" doc:"Human readable detail"`
	LatencyMs int64  `json:"latency_ms" example:"42" doc:"Probe duration in milliseconds"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for HealthCheckedEvent.
func (e HealthCheckedEvent) Type() uint32 { return TypeHealthChecked }

// HeartbeatEvent reports heartbeat client activity.
type HeartbeatEvent struct {
	DeviceID    string `json:"device_id" doc:"Registered device identifier"`
	Action      string `json:"action" example:"ping" doc:"register, ping, settings, started or stopped"`
	Success     bool   `json:"success" doc:"Whether the request succeeded"`
	MissedPings int    `json:"missed_pings" doc:"Consecutive failed pings"`
	Error       string `json:"error,omitempty" doc:"Failure detail"`
	Timestamp   string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for HeartbeatEvent.
func (e HeartbeatEvent) Type() uint32 { return TypeHeartbeat }

// RegistryReloadedEvent is published after the device registry file is re-read.
type RegistryReloadedEvent struct {
	Devices   int    `json:"devices" example:"3" doc:"Number of registered devices"`
	Active    string `json:"active" example:"lab-pi" doc:"Active device identifier"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RegistryReloadedEvent.
func (e RegistryReloadedEvent) Type() uint32 { return TypeRegistryReloaded }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"stream" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// NewLogEntryEvent converts a buffered log entry.
func NewLogEntryEvent(entry logging.LogEntry) LogEntryEvent {
	return LogEntryEvent{
		Timestamp:  entry.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}
