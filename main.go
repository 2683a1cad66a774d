package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/bulutsoft-dev/Transmind-PI/cmd"
	"github.com/bulutsoft-dev/Transmind-PI/internal/api"
	"github.com/bulutsoft-dev/Transmind-PI/internal/broadcast"
	"github.com/bulutsoft-dev/Transmind-PI/internal/config"
	"github.com/bulutsoft-dev/Transmind-PI/internal/events"
	"github.com/bulutsoft-dev/Transmind-PI/internal/health"
	"github.com/bulutsoft-dev/Transmind-PI/internal/heartbeat"
	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
	"github.com/bulutsoft-dev/Transmind-PI/internal/metrics"
	"github.com/bulutsoft-dev/Transmind-PI/internal/registry"
	"github.com/bulutsoft-dev/Transmind-PI/internal/stream"
	"github.com/bulutsoft-dev/Transmind-PI/internal/systemd"
	"github.com/bulutsoft-dev/Transmind-PI/internal/updater"
)

const registryDebounce = 500 * time.Millisecond

func main() {
	var cli humacli.CLI

	cli = humacli.New(func(hooks humacli.Hooks, opts *cmd.Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.LoggingConfig())
		logger := logging.GetLogger("main")

		var (
			ctx, cancel  = context.WithCancel(context.Background())
			server       *api.Server
			sessions     *stream.Sessions
			broadcaster  *broadcast.Broadcaster
			reg          *registry.Registry
			beat         *heartbeat.Manager
			stopWatchdog = func() {}
		)

		hooks.OnStart(func() {
			eventBus := events.New()
			logging.SetLogCallback(func(entry logging.LogEntry) {
				eventBus.Publish(events.NewLogEntryEvent(entry))
			})

			src, err := opts.NewSource()
			if err != nil {
				logger.Error("Invalid source configuration", "error", err)
				os.Exit(1)
			}
			// A source that fails here is reported unhealthy and opened
			// again by every new viewer.
			if initErr := src.Init(ctx); initErr != nil {
				logger.Warn("Source did not open at startup", "source", src.Name(), "error", initErr)
			} else {
				logger.Info("Source ready", "source", src.Name())
			}

			sessionOpts := append(metrics.SessionOptions(), events.SessionOptions(eventBus)...)
			sessionOpts = append(sessionOpts, stream.WithRecoveryPolicy(opts.RecoveryPolicy()))

			sessions = stream.NewSessions()
			prober := health.NewProber(src, opts.HealthTimeout(), health.WithBus(eventBus))

			reg, err = registry.New(opts.RegistryFile, opts.RegistryActive, registry.WithBus(eventBus))
			if err != nil {
				logger.Warn("Failed to load device registry", "file", opts.RegistryFile, "error", err)
				reg = nil
			} else if watchErr := reg.Watch(registryDebounce); watchErr != nil {
				logger.Warn("Registry changes will not be picked up", "error", watchErr)
			}

			if opts.HeartbeatEnabled {
				beat = startHeartbeat(ctx, opts, reg, eventBus, logger)
			}
			// The watchdog tracks this process only, never the management server.
			stopWatchdog = systemd.FeedWatchdog()

			if opts.BroadcastEnabled {
				// The shared session never gives up; it is restarted instead.
				policy := opts.RecoveryPolicy()
				policy.MaxFailures = 0
				broadcaster = broadcast.New(src,
					broadcast.WithSessions(sessions),
					broadcast.WithSessionOptions(append(sessionOpts, stream.WithRecoveryPolicy(policy))...),
				)
				if startErr := broadcaster.Start(ctx); startErr != nil {
					logger.Warn("Failed to start broadcaster", "error", startErr)
					broadcaster = nil
				}
			}

			updateService, err := updater.NewService(updater.Options{
				Repository: opts.UpdateRepository,
				Prerelease: opts.UpdatePrerelease,
			})
			if err != nil {
				logger.Warn("Self update unavailable", "error", err)
				updateService = nil
			}

			apiOpts := &api.Options{
				Source:            src,
				SessionOptions:    sessionOpts,
				Sessions:          sessions,
				Prober:            prober,
				Broadcaster:       broadcaster,
				Registry:          reg,
				Heartbeat:         beat,
				EventBus:          eventBus,
				UpdateService:     updateService,
				PrometheusHandler: metrics.Handler(),
			}
			server = api.NewServer(apiOpts)

			logger.Info("Starting HTTP server", "port", opts.Port, "source", src.Name())
			ready := func(net.Addr) { systemd.Ready() }
			if startErr := server.Start(opts.Port, ready); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			systemd.Stopping()

			if server != nil {
				if stopErr := server.Stop(); stopErr != nil {
					logger.Error("Error stopping HTTP server", "error", stopErr)
				}
			}

			// Release every source handle after the listener is gone.
			if broadcaster != nil {
				broadcaster.Stop()
			}
			if sessions != nil {
				sessions.CloseAll()
			}

			if beat != nil {
				if stopErr := beat.Stop(); stopErr != nil && !errors.Is(stopErr, heartbeat.ErrNotRunning) {
					logger.Warn("Error stopping heartbeat", "error", stopErr)
				}
			}
			stopWatchdog()

			if reg != nil {
				if closeErr := reg.Close(); closeErr != nil {
					logger.Warn("Error closing registry watcher", "error", closeErr)
				}
			}
			cancel()
		})
	})

	cli.Root().Use = "transmind"
	cli.Root().Short = "MJPEG re-streaming node"

	cli.Root().AddCommand(cmd.CreateProbeCmd())
	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreateUpdateCmd())

	// Run the CLI
	cli.Run()
}

// startHeartbeat reports to the management server under the configured id,
// falling back to the active registry device.
func startHeartbeat(ctx context.Context, opts *cmd.Options, reg *registry.Registry, bus *events.Bus, logger *slog.Logger) *heartbeat.Manager {
	deviceID := opts.HeartbeatDeviceID
	if deviceID == "" && reg != nil {
		deviceID = reg.ActiveID()
	}

	beat, err := heartbeat.New(heartbeat.Config{
		ServerURL:        opts.HeartbeatServerURL,
		DeviceID:         deviceID,
		Interval:         time.Duration(opts.HeartbeatIntervalSec) * time.Second,
		OfflineThreshold: opts.HeartbeatOfflineThreshold,
		Debug:            opts.HeartbeatDebug,
	}, heartbeat.WithBus(bus))
	if err != nil {
		logger.Warn("Heartbeat disabled", "error", err)
		return nil
	}
	if err := beat.Start(ctx); err != nil {
		logger.Warn("Failed to start heartbeat", "error", err)
	}
	return beat
}
