// Package systemd sends service state notifications to systemd. Every call
// is a no-op when the process was not started by systemd.
package systemd

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
)

// Ready tells systemd that startup finished.
func Ready() {
	notify(daemon.SdNotifyReady)
}

// Stopping tells systemd that shutdown began.
func Stopping() {
	notify(daemon.SdNotifyStopping)
}

// Watchdog pets the service watchdog.
func Watchdog() {
	notify(daemon.SdNotifyWatchdog)
}

// WatchdogInterval returns the configured watchdog timeout, or zero when the
// watchdog is disabled.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logging.GetLogger("systemd").Debug("Watchdog lookup failed", "error", err)
		return 0
	}
	return d
}

// FeedWatchdog pets the watchdog at half its interval until the returned
// stop function is called. It does nothing when no watchdog is configured.
func FeedWatchdog() (stop func()) {
	interval := WatchdogInterval()
	if interval <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(interval / 2)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				Watchdog()
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.GetLogger("systemd").Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		logging.GetLogger("systemd").Debug("sd_notify sent", "state", state)
	}
}
