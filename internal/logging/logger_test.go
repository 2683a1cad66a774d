package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func resetForTest() {
	mutex.Lock()
	levels = make(map[string]*slog.LevelVar)
	loggers = make(map[string]*slog.Logger)
	globalConfig = Config{Level: "info", Format: "text"}
	sink = nil
	logBuffer = NewRingBuffer(defaultBufferSize)
	logCallback = nil
	mutex.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	resetForTest()
	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"stream":    "debug",
			"heartbeat": "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"stream", true, true, true},
		{"heartbeat", false, false, true},
		{"api", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			h := GetLogger(tt.module).Handler()
			ctx := context.Background()
			if got := h.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := h.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := h.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestLoggerCreatedBeforeInitialize(t *testing.T) {
	resetForTest()

	before := GetLogger("capture")
	if before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("logger created before Initialize should default to info")
	}

	Initialize(Config{Level: "info", Modules: map[string]string{"capture": "debug"}})

	if after := GetLogger("capture"); after != before {
		t.Error("GetLogger should return the same logger after Initialize")
	}
	if !before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("existing logger should pick up the configured module level")
	}
}

func TestSetLevel(t *testing.T) {
	resetForTest()
	Initialize(Config{Level: "info"})

	logger := GetLogger("transcode")
	if err := SetLevel("transcode", "error"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	if logger.Handler().Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn should be disabled after SetLevel(error)")
	}
	if got := Levels()["transcode"]; got != "error" {
		t.Errorf("Levels()[transcode] = %q", got)
	}
	if err := SetLevel("transcode", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestBufferCapturesModuleAndAttrs(t *testing.T) {
	resetForTest()
	Initialize(Config{Level: "debug"})

	var got []LogEntry
	SetLogCallback(func(e LogEntry) { got = append(got, e) })

	logger := GetLogger("health").With("source", "cam0")
	logger.WithGroup("probe").Info("Probe finished", "latency", 15*time.Millisecond)

	entries := GetBuffer().Tail(1)
	if len(entries) != 1 {
		t.Fatalf("expected one buffered entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Module != "health" || e.Message != "Probe finished" || e.Level != "info" {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.Attributes["source"] != "cam0" {
		t.Errorf("source attr = %v", e.Attributes["source"])
	}
	if e.Attributes["probe.latency"] != "15ms" {
		t.Errorf("probe.latency attr = %v", e.Attributes["probe.latency"])
	}
	if len(got) != 1 {
		t.Errorf("callback called %d times, want 1", len(got))
	}
}

func TestRingBufferTail(t *testing.T) {
	rb := NewRingBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		rb.Write(LogEntry{Message: msg})
	}
	if rb.Count() != 3 {
		t.Fatalf("Count = %d, want 3", rb.Count())
	}

	var msgs []string
	for _, e := range rb.Tail(0) {
		msgs = append(msgs, e.Message)
	}
	if strings.Join(msgs, "") != "cde" {
		t.Errorf("Tail(0) = %v, want [c d e]", msgs)
	}
	if tail := rb.Tail(2); tail[0].Message != "d" || tail[1].Message != "e" {
		t.Errorf("Tail(2) = %+v", tail)
	}
}

func TestMultiHandlerWritesOncePerEnabledHandler(t *testing.T) {
	var buf bytes.Buffer
	debug := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	info := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewMultiHandler(debug, info)).With("module", "test")
	logger.Debug("debug only message")
	logger.Info("both")

	out := buf.String()
	if n := strings.Count(out, "debug only message"); n != 1 {
		t.Errorf("debug message written %d times, want 1", n)
	}
	if n := strings.Count(out, "both"); n != 2 {
		t.Errorf("info message written %d times, want 2", n)
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		isNil bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"invalid", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			switch {
			case tt.isNil && got != nil:
				t.Errorf("parseLevel(%q) = %v, want nil", tt.input, *got)
			case !tt.isNil && got == nil:
				t.Errorf("parseLevel(%q) = nil, want %v", tt.input, tt.want)
			case !tt.isNil && *got != tt.want:
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, *got, tt.want)
			}
		})
	}
}
