// Package cmd holds the transmind command line: the options shared by every
// command and the subcommands other than the server itself.
package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bulutsoft-dev/Transmind-PI/internal/capture"
	"github.com/bulutsoft-dev/Transmind-PI/internal/config"
	"github.com/bulutsoft-dev/Transmind-PI/internal/ffmpeg"
	"github.com/bulutsoft-dev/Transmind-PI/internal/health"
	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
	"github.com/bulutsoft-dev/Transmind-PI/internal/stream"
	"github.com/bulutsoft-dev/Transmind-PI/internal/transcode"
)

// Source types.
const (
	SourceDirect     = "direct"
	SourceTranscoded = "transcoded"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Address to listen on" short:"p" default:":8080" toml:"server.port" env:"SERVER_PORT"`

	// Frame source
	SourceType string `help:"Frame source (direct, transcoded)" default:"direct" toml:"source.type" env:"SOURCE_TYPE"`

	// Direct capture
	CaptureDriver         string `help:"Capture driver (v4l2, uvc)" default:"v4l2" toml:"capture.driver" env:"CAPTURE_DRIVER"`
	CaptureDevice         string `help:"V4L2 device node" default:"/dev/video0" toml:"capture.device" env:"CAPTURE_DEVICE"`
	CaptureUSBID          string `help:"USB vid:pid for the uvc driver" default:"" toml:"capture.usb_id" env:"CAPTURE_USB_ID"`
	CaptureWidth          int    `help:"Capture width" default:"640" toml:"capture.width" env:"CAPTURE_WIDTH"`
	CaptureHeight         int    `help:"Capture height" default:"480" toml:"capture.height" env:"CAPTURE_HEIGHT"`
	CaptureFrameTimeoutMs int    `help:"Longest wait for one frame" default:"5000" toml:"capture.frame_timeout_ms" env:"CAPTURE_FRAME_TIMEOUT_MS"`

	// Transcoded source
	TranscodeURL           string `help:"Remote feed to transcode" default:"" toml:"transcode.url" env:"TRANSCODE_URL"`
	TranscodeFfmpeg        string `help:"ffmpeg binary" default:"ffmpeg" toml:"transcode.ffmpeg" env:"TRANSCODE_FFMPEG"`
	TranscodeFfprobe       string `help:"ffprobe binary" default:"ffprobe" toml:"transcode.ffprobe" env:"TRANSCODE_FFPROBE"`
	TranscodeCommand       string `help:"Custom transcoder command, {url} is replaced" default:"" toml:"transcode.command" env:"TRANSCODE_COMMAND"`
	TranscodeMaxFrameBytes int    `help:"Largest accepted frame" default:"8388608" toml:"transcode.max_frame_bytes" env:"TRANSCODE_MAX_FRAME_BYTES"`
	TranscodeLogLevel      string `help:"ffmpeg log level" default:"warning" toml:"transcode.log_level" env:"TRANSCODE_LOG_LEVEL"`
	TranscodeOptions       string `help:"Comma separated ffmpeg input options, empty uses the defaults" default:"" toml:"transcode.options" env:"TRANSCODE_OPTIONS"`
	TranscodeProgress      bool   `help:"Export ffmpeg progress as metrics" default:"false" toml:"transcode.progress" env:"TRANSCODE_PROGRESS"`

	// Recovery
	RecoveryInitialDelayMs int `help:"Delay before the first reopen" default:"500" toml:"recovery.initial_delay_ms" env:"RECOVERY_INITIAL_DELAY_MS"`
	RecoveryRetryDelayMs   int `help:"Delay between further reopens" default:"1000" toml:"recovery.retry_delay_ms" env:"RECOVERY_RETRY_DELAY_MS"`
	RecoveryMaxFailures    int `help:"Give up after this many failed reopens, 0 retries forever" default:"0" toml:"recovery.max_failures" env:"RECOVERY_MAX_FAILURES"`

	// Health
	HealthTimeoutMs int    `help:"Health probe timeout" default:"5000" toml:"health.timeout_ms" env:"HEALTH_TIMEOUT_MS"`
	HealthMethod    string `help:"Transcoded source probe (describe, ffprobe)" default:"describe" toml:"health.method" env:"HEALTH_METHOD"`

	BroadcastEnabled bool `help:"Serve one shared session on /stream/shared" default:"false" toml:"broadcast.enabled" env:"BROADCAST_ENABLED"`

	// Device registry
	RegistryFile   string `help:"Device registry file" default:"devices.toml" toml:"registry.file" env:"REGISTRY_FILE"`
	RegistryActive string `help:"Active device id" default:"" toml:"registry.active" env:"REGISTRY_ACTIVE"`

	// Heartbeat
	HeartbeatEnabled          bool   `help:"Report to the management server" default:"false" toml:"heartbeat.enabled" env:"HEARTBEAT_ENABLED"`
	HeartbeatServerURL        string `help:"Management server base URL" default:"" toml:"heartbeat.server_url" env:"HEARTBEAT_SERVER_URL"`
	HeartbeatDeviceID         string `help:"Device id reported to the server, defaults to the active device" default:"" toml:"heartbeat.device_id" env:"HEARTBEAT_DEVICE_ID"`
	HeartbeatIntervalSec      int    `help:"Ping interval" default:"30" toml:"heartbeat.interval_sec" env:"HEARTBEAT_INTERVAL_SEC"`
	HeartbeatOfflineThreshold int    `help:"Missed pings before offline" default:"3" toml:"heartbeat.offline_threshold" env:"HEARTBEAT_OFFLINE_THRESHOLD"`
	HeartbeatDebug            bool   `help:"Verbose heartbeat logging" default:"false" toml:"heartbeat.debug" env:"HEARTBEAT_DEBUG"`

	// Self update
	UpdateRepository string `help:"GitHub repository for releases" default:"bulutsoft-dev/Transmind-PI" toml:"update.repository" env:"UPDATE_REPOSITORY"`
	UpdatePrerelease bool   `help:"Include prereleases" default:"false" toml:"update.prerelease" env:"UPDATE_PRERELEASE"`

	// Logging settings
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
}

// Source is a frame source that can also be health checked.
type Source interface {
	stream.Source
	health.Target
	// Init opens the source once to verify it.
	Init(ctx context.Context) error
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// LoggingConfig merges the logging flags with per-module levels from the
// [logging] table of the config file.
func (o *Options) LoggingConfig() logging.Config {
	cfg := config.LoadLoggingConfig(o.Config)
	cfg.Level = o.LoggingLevel
	cfg.Format = o.LoggingFormat
	return cfg
}

// RecoveryPolicy returns the policy for viewer sessions.
func (o *Options) RecoveryPolicy() stream.RecoveryPolicy {
	return stream.RecoveryPolicy{
		InitialDelay: ms(o.RecoveryInitialDelayMs),
		RetryDelay:   ms(o.RecoveryRetryDelayMs),
		MaxFailures:  o.RecoveryMaxFailures,
	}
}

// HealthTimeout bounds one probe.
func (o *Options) HealthTimeout() time.Duration {
	return ms(o.HealthTimeoutMs)
}

// NewSource builds the configured frame source.
func (o *Options) NewSource() (Source, error) {
	switch o.SourceType {
	case SourceDirect:
		cfg := capture.Config{
			Driver:       o.CaptureDriver,
			Device:       o.CaptureDevice,
			USBID:        o.CaptureUSBID,
			Width:        o.CaptureWidth,
			Height:       o.CaptureHeight,
			FrameTimeout: ms(o.CaptureFrameTimeoutMs),
			ProbeWindow:  o.HealthTimeout(),
		}
		driver, err := capture.NewDriver(cfg)
		if err != nil {
			return nil, err
		}
		return capture.New(driver, cfg), nil

	case SourceTranscoded:
		var keys []string
		for _, k := range strings.Split(o.TranscodeOptions, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		options := ffmpeg.GetDefaultOptions()
		if len(keys) > 0 {
			var err error
			if options, err = ffmpeg.ParseOptions(keys); err != nil {
				return nil, err
			}
		}
		return transcode.New(transcode.Config{
			URL:           o.TranscodeURL,
			FFmpeg:        o.TranscodeFfmpeg,
			FFprobe:       o.TranscodeFfprobe,
			Command:       o.TranscodeCommand,
			MaxFrameBytes: o.TranscodeMaxFrameBytes,
			LogLevel:      o.TranscodeLogLevel,
			Options:       options,
			Progress:      o.TranscodeProgress,
			ProbeMethod:   o.HealthMethod,
		})

	default:
		return nil, fmt.Errorf("unknown source type %q (want %s or %s)", o.SourceType, SourceDirect, SourceTranscoded)
	}
}
