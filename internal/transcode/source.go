// Package transcode implements a frame source backed by an ffmpeg child
// process that converts a remote feed to MJPEG on its stdout.
package transcode

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bulutsoft-dev/Transmind-PI/internal/ffmpeg"
	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
	"github.com/bulutsoft-dev/Transmind-PI/internal/metrics"
	"github.com/bulutsoft-dev/Transmind-PI/internal/process"
	"github.com/bulutsoft-dev/Transmind-PI/internal/stream"
)

// URLPlaceholder is replaced by the configured URL in a custom command.
const URLPlaceholder = "{url}"

// Config describes the transcoder.
type Config struct {
	URL           string
	FFmpeg        string
	FFprobe       string
	Command       string // replaces the generated ffmpeg command when set
	MaxFrameBytes int
	LogLevel      string
	Options       []ffmpeg.OptionType
	Progress      bool
	ProbeMethod   string
	StopTimeout   time.Duration
}

// Source spawns one transcoder per Open. Every handle owns its own process.
type Source struct {
	cfg      Config
	name     string
	args     []string
	logger   logging.Logger
	activity stream.Activity
}

// New validates cfg and prepares the command line.
func New(cfg Config) (*Source, error) {
	if cfg.URL == "" {
		return nil, ffmpeg.ErrNoInput
	}
	switch cfg.ProbeMethod {
	case "":
		cfg.ProbeMethod = ProbeDescribe
	case ProbeDescribe, ProbeFFprobe:
	default:
		return nil, fmt.Errorf("unknown probe method %q", cfg.ProbeMethod)
	}

	args, err := buildArgs(cfg)
	if err != nil {
		return nil, err
	}
	return &Source{
		cfg:    cfg,
		name:   "transcode:" + redact(cfg.URL),
		args:   args,
		logger: logging.GetLogger("transcode"),
	}, nil
}

func buildArgs(cfg Config) ([]string, error) {
	if cfg.Command == "" {
		return ffmpeg.BuildArgs(ffmpeg.Params{
			FFmpeg:   cfg.FFmpeg,
			InputURL: cfg.URL,
			LogLevel: cfg.LogLevel,
			Progress: cfg.Progress,
			Options:  cfg.Options,
		})
	}

	args, err := process.ParseCommand(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("transcode command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("transcode command is empty")
	}
	for i, a := range args {
		args[i] = strings.ReplaceAll(a, URLPlaceholder, cfg.URL)
	}
	return args, nil
}

// redact hides URL credentials in names and logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

// Name identifies the source in logs and metrics.
func (s *Source) Name() string {
	return s.name
}

// Args returns the transcoder command line.
func (s *Source) Args() []string {
	return s.args
}

// Activity returns the source usage record.
func (s *Source) Activity() *stream.Activity {
	return &s.activity
}

// Initialized reports whether the source has ever been opened or probed
// successfully.
func (s *Source) Initialized() bool {
	return s.activity.Initialized()
}

// Init probes the remote feed once so health checks can report on it before
// the first viewer connects.
func (s *Source) Init(ctx context.Context) error {
	if err := s.Probe(ctx); err != nil {
		return err
	}
	s.activity.MarkOpened()
	return nil
}

// Open spawns the transcoder.
func (s *Source) Open(ctx context.Context) (stream.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	proc := process.New(s.name, s.args, s.logger)
	proc.SetLogParser(logging.GetLogger("ffmpeg").With("source", s.name), ffmpeg.ParseOutputLine)
	if s.cfg.StopTimeout > 0 {
		proc.SetTimeouts(s.cfg.StopTimeout, s.cfg.StopTimeout)
	}
	if s.cfg.Progress {
		pp := ffmpeg.NewProgressParser()
		proc.SetLineHandler(func(line string) {
			if p, ok := pp.Feed(line); ok {
				metrics.SetTranscodeFPS(s.name, p.FPS)
				metrics.SetTranscodeDroppedFrames(s.name, p.DroppedFrames)
				metrics.SetTranscodeDuplicateFrames(s.name, p.DuplicateFrames)
				metrics.SetTranscodeSpeed(s.name, p.Speed)
			}
		})
	}

	stdout, err := proc.Start()
	if err != nil {
		return nil, stream.NewError(stream.KindSourceUnavailable, "spawn transcoder", err)
	}

	s.activity.MarkOpened()
	s.activity.Acquired()
	return &handle{
		src:    s,
		proc:   proc,
		reader: stream.NewFrameReader(stdout, s.cfg.MaxFrameBytes),
	}, nil
}

type handle struct {
	src    *Source
	proc   *process.Process
	reader *stream.FrameReader
	once   sync.Once
}

// CaptureOne reads the next frame from the transcoder's stdout. Cancelling
// ctx stops the transcoder, which makes the handle unusable.
func (h *handle) CaptureOne(ctx context.Context) (stream.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { h.proc.Stop() })
	defer stop()

	frame, err := h.reader.ReadFrame()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if code, exited := h.proc.ExitCode(); exited {
			h.src.logger.Debug("Transcoder exited", "exit_code", code, "error", err)
		}
		return nil, err
	}
	h.src.activity.MarkFrame(time.Now())
	return frame, nil
}

// Close stops the transcoder.
func (h *handle) Close() error {
	h.once.Do(func() {
		code := h.proc.Stop()
		h.src.activity.Released()
		if h.src.cfg.Progress && h.src.activity.Holders() == 0 {
			metrics.DeleteTranscodeMetrics(h.src.name)
		}
		h.src.logger.Debug("Transcoder stopped", "exit_code", code)
	})
	return nil
}
