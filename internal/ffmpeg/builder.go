package ffmpeg

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Default binaries, resolved through PATH.
const (
	DefaultFFmpeg  = "ffmpeg"
	DefaultFFprobe = "ffprobe"
)

// mjpegQuality is the fixed -q:v of the MJPEG encoder. The encoder's
// bitrate default is far too low for a viewer.
const mjpegQuality = "5"

// Params describes one RTSP-to-MJPEG transcode.
type Params struct {
	FFmpeg   string // binary, DefaultFFmpeg if empty
	InputURL string // rtsp://, http:// or a file path
	LogLevel string // ffmpeg -loglevel value, "warning" if empty

	Progress bool         // write -progress key=value blocks to stderr
	Options  []OptionType // input flags
}

// ErrNoInput is returned when Params has no input URL.
var ErrNoInput = errors.New("ffmpeg: input url is required")

// BuildArgs builds the ffmpeg argument list. The output is a raw MJPEG
// stream on stdout.
func BuildArgs(p Params) ([]string, error) {
	if p.InputURL == "" {
		return nil, ErrNoInput
	}
	bin := p.FFmpeg
	if bin == "" {
		bin = DefaultFFmpeg
	}
	level := p.LogLevel
	if level == "" {
		level = "warning"
	}

	// level+ prefixes every line with [level] for ParseLogLevel.
	args := []string{bin, "-hide_banner", "-nostdin", "-loglevel", "level+" + level}
	if p.Progress {
		args = append(args, "-nostats", "-progress", "pipe:2", "-stats_period", "1")
	}

	args = append(args, inputArgs(p.Options)...)
	if isRTSP(p.InputURL) {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args,
		"-i", p.InputURL, "-an",
		"-c:v", "mjpeg", "-q:v", mjpegQuality,
		"-f", "mjpeg", "pipe:1",
	)
	return args, nil
}

// BuildProbeArgs builds an ffprobe invocation that prints the codec of the
// first video stream of url, failing if none arrives within timeout.
func BuildProbeArgs(ffprobe, url string, timeout time.Duration) ([]string, error) {
	if url == "" {
		return nil, ErrNoInput
	}
	if ffprobe == "" {
		ffprobe = DefaultFFprobe
	}
	args := []string{ffprobe, "-hide_banner", "-v", "error"}
	if isRTSP(url) {
		args = append(args, "-rtsp_transport", "tcp")
	}
	if timeout > 0 {
		// microseconds
		args = append(args, "-timeout", strconv.FormatInt(timeout.Microseconds(), 10))
	}
	args = append(args,
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name",
		"-of", "csv=p=0",
		url,
	)
	return args, nil
}

func isRTSP(url string) bool {
	return strings.HasPrefix(url, "rtsp://") || strings.HasPrefix(url, "rtsps://")
}
