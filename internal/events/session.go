package events

import (
	"time"

	"github.com/bulutsoft-dev/Transmind-PI/internal/stream"
)

// SessionOptions returns session callbacks that publish state changes and
// recovery attempts on bus.
func SessionOptions(bus *Bus) []stream.SessionOption {
	return []stream.SessionOption{
		stream.WithStateCallback(func(s *stream.Session, from, to stream.State, err error) {
			ev := SessionStateChangedEvent{
				SessionID: s.ID(),
				Source:    s.Source().Name(),
				From:      string(from),
				To:        string(to),
				Timestamp: time.Now().Format(time.RFC3339),
			}
			if err != nil {
				ev.Error = err.Error()
			}
			bus.Publish(ev)
		}),
		stream.WithRecoveryCallback(func(s *stream.Session, st stream.RecoveryState, err error) {
			ev := RecoveryAttemptEvent{
				SessionID:           s.ID(),
				Source:              s.Source().Name(),
				Success:             err == nil,
				ConsecutiveFailures: st.ConsecutiveFailures,
				Timestamp:           time.Now().Format(time.RFC3339),
			}
			if err != nil {
				ev.Error = err.Error()
			}
			bus.Publish(ev)
		}),
	}
}
