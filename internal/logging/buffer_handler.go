package logging

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"
)

// LogCallback receives every entry written to the ring buffer.
type LogCallback func(entry LogEntry)

// BufferHandler is a slog.Handler that records entries into a RingBuffer.
type BufferHandler struct {
	buffer   *RingBuffer
	level    slog.Leveler
	module   string
	preset   map[string]any
	groups   []string
	callback LogCallback
}

// NewBufferHandler creates a handler writing to buffer. callback may be nil.
func NewBufferHandler(buffer *RingBuffer, level slog.Leveler, callback LogCallback) *BufferHandler {
	return &BufferHandler{buffer: buffer, level: level, module: "app", callback: callback}
}

func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := maps.Clone(h.preset)
	if attrs == nil {
		attrs = make(map[string]any)
	}
	r.Attrs(func(a slog.Attr) bool {
		flattenAttr(attrs, h.groups, a)
		return true
	})
	if len(attrs) == 0 {
		attrs = nil
	}

	entry := LogEntry{
		Timestamp:  r.Time,
		Level:      levelToString(r.Level),
		Module:     h.module,
		Message:    r.Message,
		Attributes: attrs,
	}
	h.buffer.Write(entry)
	if h.callback != nil {
		h.callback(entry)
	}
	return nil
}

// WithAttrs flattens attrs under the groups open at this point. A top-level
// "module" attribute becomes the entry's module.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.preset = maps.Clone(h.preset)
	if clone.preset == nil {
		clone.preset = make(map[string]any)
	}
	for _, a := range attrs {
		if a.Key == "module" && len(h.groups) == 0 {
			clone.module = a.Value.String()
			continue
		}
		flattenAttr(clone.preset, h.groups, a)
	}
	return &clone
}

func (h *BufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(slices.Clip(h.groups), name)
	return &clone
}

// flattenAttr stores a under a dotted key built from its groups.
func flattenAttr(attrs map[string]any, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := strings.Join(append(slices.Clip(groups), a.Key), ".")

	switch a.Value.Kind() {
	case slog.KindGroup:
		nested := append(slices.Clip(groups), a.Key)
		for _, ga := range a.Value.Group() {
			flattenAttr(attrs, nested, ga)
		}
	case slog.KindTime:
		attrs[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		attrs[key] = a.Value.Duration().String()
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			attrs[key] = err.Error()
		} else {
			attrs[key] = a.Value.Any()
		}
	default:
		attrs[key] = a.Value.Any()
	}
}

func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
