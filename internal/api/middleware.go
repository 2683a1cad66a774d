package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
)

// quietPaths are polled by supervisors and dashboards; a success there is
// logged at debug.
var quietPaths = map[string]bool{
	"/api/health":   true,
	"/api/sessions": true,
}

// HTTPLoggingMiddleware logs each API request at a level picked from its
// status code.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	method := ctx.Method()
	path := ctx.URL().Path

	attrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if query := ctx.URL().RawQuery; query != "" {
		attrs = append(attrs, slog.String("query", query))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}

	next(ctx)

	status := ctx.Status()
	attrs = append(attrs,
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)

	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	case method == http.MethodOptions, quietPaths[path]:
		level = slog.LevelDebug
	}
	logger.LogAttrs(ctx.Context(), level, "HTTP request completed", attrs...)
}
