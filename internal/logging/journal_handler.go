package logging

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry, e.g. `journalctl -t transmind`.
const SyslogIdentifier = "transmind"

// JournalHandler is a slog.Handler writing to the systemd journal.
type JournalHandler struct {
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewJournalHandler creates a journal handler.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level}
}

func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := map[string]string{"SYSLOG_IDENTIFIER": SyslogIdentifier}
	for _, a := range h.attrs {
		journalField(fields, h.groups, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		journalField(fields, h.groups, a)
		return true
	})

	if err := journal.Send(r.Message, priority(r.Level), fields); err != nil {
		return fmt.Errorf("journal send: %w", err)
	}
	return nil
}

func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &JournalHandler{
		level:  h.level,
		attrs:  append(slices.Clip(h.attrs), attrs...),
		groups: h.groups,
	}
}

func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &JournalHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: append(slices.Clip(h.groups), name),
	}
}

func priority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// journalField stores a as an upper-case journal field, prefixing group names.
// Journal field names may only contain A-Z, 0-9 and underscores.
func journalField(fields map[string]string, groups []string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		nested := append(slices.Clip(groups), a.Key)
		for _, ga := range a.Value.Group() {
			journalField(fields, nested, ga)
		}
		return
	}

	key := strings.ToUpper(strings.Join(append(slices.Clip(groups), a.Key), "_"))
	key = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, key)

	switch a.Value.Kind() {
	case slog.KindInt64:
		fields[key] = strconv.FormatInt(a.Value.Int64(), 10)
	case slog.KindUint64:
		fields[key] = strconv.FormatUint(a.Value.Uint64(), 10)
	case slog.KindBool:
		fields[key] = strconv.FormatBool(a.Value.Bool())
	case slog.KindTime:
		fields[key] = a.Value.Time().Format(time.RFC3339Nano)
	default:
		fields[key] = a.Value.String()
	}
}

// IsJournalAvailable reports whether journald is accepting entries.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
