// Package logging provides slog loggers with per-module levels.
//
// Call Initialize once with the [logging] section of the config file, then
// obtain loggers by module name:
//
//	logger := logging.GetLogger("stream")
//	logger.Info("Session streaming", "session_id", id)
//
// Loggers may be created before Initialize; they keep their identity and
// pick up the configured level and output format afterwards. Module levels
// can be changed at runtime with SetLevel.
//
// Records go to stdout (text or json) when stdout is attached, to the
// systemd journal when journald is running (`journalctl -t transmind`), and
// to an in-memory ring buffer served by the HTTP API.
package logging
