package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is satisfied by *slog.Logger. Packages accept it so tests can pass
// their own loggers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config is the [logging] section of the config file. Any key other than
// level and format is read as a module name.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mutex        sync.RWMutex
	globalConfig = Config{Level: "info", Format: "text"}
	sink         slog.Handler
	levels       = make(map[string]*slog.LevelVar)
	loggers      = make(map[string]*slog.Logger)
	logBuffer    = NewRingBuffer(defaultBufferSize)
	logCallback  LogCallback
)

// Initialize applies config to every module logger, including those created
// before the call, and installs the default slog logger.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	sink = newSink(config.Format)

	for module, lv := range levels {
		lv.Set(moduleLevel(config, module))
	}

	defaultLevel := &slog.LevelVar{}
	defaultLevel.Set(moduleLevel(config, ""))
	slog.SetDefault(slog.New(&moduleHandler{level: defaultLevel}))
}

// GetLogger returns the logger for module. The same pointer is returned for
// the lifetime of the process; Initialize and SetLevel change it in place.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	logger, ok := loggers[module]
	mutex.RUnlock()
	if ok {
		return logger
	}

	mutex.Lock()
	defer mutex.Unlock()
	if logger, ok := loggers[module]; ok {
		return logger
	}

	lv := &slog.LevelVar{}
	lv.Set(moduleLevel(globalConfig, module))
	logger = slog.New(&moduleHandler{level: lv}).With("module", module)
	levels[module] = lv
	loggers[module] = logger
	return logger
}

// SetLevel changes the level of one module at runtime.
func SetLevel(module, level string) error {
	parsed := parseLevel(level)
	if parsed == nil {
		return fmt.Errorf("unknown log level %q", level)
	}
	GetLogger(module)

	mutex.Lock()
	defer mutex.Unlock()
	levels[module].Set(*parsed)
	if globalConfig.Modules == nil {
		globalConfig.Modules = make(map[string]string)
	}
	globalConfig.Modules[module] = level
	return nil
}

// Levels returns the effective level of every known module.
func Levels() map[string]string {
	mutex.RLock()
	defer mutex.RUnlock()
	out := make(map[string]string, len(levels))
	for module, lv := range levels {
		out[module] = levelToString(lv.Level())
	}
	return out
}

// GetBuffer returns the in-memory log history.
func GetBuffer() *RingBuffer {
	return logBuffer
}

// SetLogCallback registers a function called for every buffered entry.
func SetLogCallback(callback LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	logCallback = callback
}

func moduleLevel(config Config, module string) slog.Level {
	level := slog.LevelInfo
	if parsed := parseLevel(config.Level); parsed != nil {
		level = *parsed
	}
	if s, ok := config.Modules[module]; ok && module != "" {
		if parsed := parseLevel(s); parsed != nil {
			level = *parsed
		}
	}
	return level
}

// newSink builds the output chain: stdout when something is attached, the
// journal when journald is running, and always the ring buffer. Level
// filtering happens per module before records reach the sink.
func newSink(format string) slog.Handler {
	all := &slog.HandlerOptions{Level: slog.LevelDebug}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		if format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(os.Stdout, all))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stdout, all))
		}
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(slog.LevelDebug))
	}
	handlers = append(handlers, NewBufferHandler(logBuffer, slog.LevelDebug, func(entry LogEntry) {
		mutex.RLock()
		cb := logCallback
		mutex.RUnlock()
		if cb != nil {
			cb(entry)
		}
	}))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

func currentSink() slog.Handler {
	mutex.RLock()
	s := sink
	mutex.RUnlock()
	if s == nil {
		mutex.Lock()
		if sink == nil {
			sink = newSink(globalConfig.Format)
		}
		s = sink
		mutex.Unlock()
	}
	return s
}

// handlerOp is a WithAttrs or WithGroup call to replay onto the sink.
type handlerOp struct {
	group string
	attrs []slog.Attr
}

// moduleHandler filters by its module's LevelVar and forwards to whatever
// sink is current, so loggers created before Initialize pick up the final
// output format.
type moduleHandler struct {
	level *slog.LevelVar
	ops   []handlerOp
}

func (h *moduleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *moduleHandler) Handle(ctx context.Context, r slog.Record) error {
	target := currentSink()
	for _, op := range h.ops {
		if op.attrs != nil {
			target = target.WithAttrs(op.attrs)
		} else {
			target = target.WithGroup(op.group)
		}
	}
	return target.Handle(ctx, r)
}

func (h *moduleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return &moduleHandler{level: h.level, ops: appendOp(h.ops, handlerOp{attrs: attrs})}
}

func (h *moduleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &moduleHandler{level: h.level, ops: appendOp(h.ops, handlerOp{group: name})}
}

func appendOp(ops []handlerOp, op handlerOp) []handlerOp {
	out := make([]handlerOp, len(ops), len(ops)+1)
	copy(out, ops)
	return append(out, op)
}

// isStdoutAvailable reports whether stdout goes somewhere other than /dev/null.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
