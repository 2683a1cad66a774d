package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowOrigin   string
	AllowMethods  []string
	AllowHeaders  []string
	ExposeHeaders []string
	MaxAge        time.Duration
}

// DefaultCORSConfig allows any origin, so dashboards on other hosts can embed
// the stream and call the API.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigin:   "*",
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "X-Requested-With", "Accept", "Origin"},
		ExposeHeaders: []string{"Location"},
		MaxAge:        24 * time.Hour,
	}
}

// headers renders the config once as response header pairs.
func (c CORSConfig) headers() [][2]string {
	h := [][2]string{
		{"Access-Control-Allow-Origin", c.AllowOrigin},
		{"Access-Control-Allow-Methods", strings.Join(c.AllowMethods, ", ")},
		{"Access-Control-Allow-Headers", strings.Join(c.AllowHeaders, ", ")},
		{"Access-Control-Max-Age", strconv.Itoa(int(c.MaxAge / time.Second))},
	}
	if len(c.ExposeHeaders) > 0 {
		h = append(h, [2]string{"Access-Control-Expose-Headers", strings.Join(c.ExposeHeaders, ", ")})
	}
	return h
}

// NewCORSMiddleware sets the CORS headers on every huma operation.
func NewCORSMiddleware(config CORSConfig) func(huma.Context, func(huma.Context)) {
	headers := config.headers()

	return func(ctx huma.Context, next func(huma.Context)) {
		for _, h := range headers {
			ctx.SetHeader(h[0], h[1])
		}
		if ctx.Method() == http.MethodOptions {
			ctx.SetStatus(http.StatusNoContent)
			return
		}
		next(ctx)
	}
}

// WithCORS sets the CORS headers on a raw handler such as the MJPEG stream.
func WithCORS(config CORSConfig, next http.Handler) http.Handler {
	headers := config.headers()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range headers {
			w.Header().Set(h[0], h[1])
		}
		next.ServeHTTP(w, r)
	})
}

// AddCORSHandler answers preflight requests for every path. Huma middleware
// never sees OPTIONS requests because routing fails first.
func AddCORSHandler(mux *http.ServeMux, config CORSConfig) {
	mux.Handle("OPTIONS /", WithCORS(config, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
}
