package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/bulutsoft-dev/Transmind-PI/internal/api/models"
	"github.com/bulutsoft-dev/Transmind-PI/internal/broadcast"
	"github.com/bulutsoft-dev/Transmind-PI/internal/events"
	"github.com/bulutsoft-dev/Transmind-PI/internal/health"
	"github.com/bulutsoft-dev/Transmind-PI/internal/heartbeat"
	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
	"github.com/bulutsoft-dev/Transmind-PI/internal/registry"
	"github.com/bulutsoft-dev/Transmind-PI/internal/stream"
	"github.com/bulutsoft-dev/Transmind-PI/internal/updater"
	"github.com/bulutsoft-dev/Transmind-PI/internal/version"
)

// Server is the node's HTTP surface: the MJPEG endpoints on the raw mux and
// the JSON API on huma.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	cors       CORSConfig
	eventBus   *events.Bus
	logger     *slog.Logger
}

// Options wires the server to the running node. Source, Sessions and Prober
// are required; the rest switch their routes off when nil.
type Options struct {
	Source         stream.Source
	SessionOptions []stream.SessionOption
	Sessions       *stream.Sessions
	Prober         *health.Prober

	Broadcaster       *broadcast.Broadcaster
	Registry          *registry.Registry
	Heartbeat         *heartbeat.Manager
	EventBus          *events.Bus
	UpdateService     updater.Service
	PrometheusHandler http.Handler
}

// NewServer creates the API server using Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("Transmind API", version.String())
	config.Info.Description = "MJPEG re-streaming node with source recovery"
	// Empty servers list will make OpenAPI use relative paths, working with any host
	config.Servers = []*huma.Server{}

	api := humago.New(mux, config)

	server := &Server{
		api:      api,
		mux:      mux,
		options:  opts,
		cors:     corsConfig,
		eventBus: opts.EventBus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	server.registerStreamHandlers()

	return server
}

// GetMux returns the underlying HTTP ServeMux.
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves on addr until Stop is called. ready, if set, runs once the
// listener is bound and before the first request is accepted.
func (s *Server) Start(addr string, ready func(net.Addr)) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info("Starting Transmind API server", "addr", ln.Addr().String())
	s.logger.Info("OpenAPI documentation available", "url", "http://"+ln.Addr().String()+"/docs")

	if ready != nil {
		ready(ln.Addr())
	}
	return s.httpServer.Serve(ln)
}

// Stop closes the listener and every open connection. MJPEG responses never
// finish on their own, so a graceful shutdown would only wait them out.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Probe the frame source. Returns 503 with the reason when unhealthy.",
		Tags:        []string{"health"},
		Errors:      []int{503},
	}, func(ctx context.Context, _ *struct{}) (*models.HealthResponse, error) {
		res := s.options.Prober.Check(ctx)
		status := http.StatusOK
		if !res.Healthy() {
			status = http.StatusServiceUnavailable
		}
		return &models.HealthResponse{Status: status, Body: res}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				BuildID:   info.BuildID,
				GoVersion: info.GoVersion,
				Compiler:  info.Compiler,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerSessionRoutes()
	s.registerDeviceRoutes()
	s.registerHeartbeatRoutes()
	s.registerLogRoutes()
	s.registerUpdateRoutes()
	if s.eventBus != nil {
		s.registerSSERoutes()
	}
}
