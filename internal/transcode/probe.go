package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/AlexxIT/go2rtc/pkg/rtsp"

	"github.com/bulutsoft-dev/Transmind-PI/internal/ffmpeg"
)

// Probe methods.
const (
	ProbeDescribe = "describe" // RTSP DESCRIBE, no child process
	ProbeFFprobe  = "ffprobe"
)

const defaultProbeTimeout = 5 * time.Second

// ErrNoVideo is returned when the feed answers but carries no video stream.
var ErrNoVideo = errors.New("no video stream")

// Probe runs a metadata query against the remote feed. It never spawns the
// transcoder and never touches frames of a running session.
func (s *Source) Probe(ctx context.Context) error {
	var (
		codecs []string
		err    error
	)
	if s.cfg.ProbeMethod == ProbeDescribe && isRTSP(s.cfg.URL) {
		codecs, err = describe(ctx, s.cfg.URL)
	} else {
		codecs, err = ffprobe(ctx, s.cfg.FFprobe, s.cfg.URL)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	if len(codecs) == 0 {
		return ErrNoVideo
	}
	s.logger.Debug("Probe succeeded", "codecs", codecs)
	return nil
}

// describe lists the video codecs announced by an RTSP server.
func describe(ctx context.Context, url string) ([]string, error) {
	type result struct {
		codecs []string
		err    error
	}
	done := make(chan result, 1)

	go func() {
		conn := rtsp.NewClient(url)
		if err := conn.Dial(); err != nil {
			done <- result{err: fmt.Errorf("rtsp dial: %w", err)}
			return
		}
		defer conn.Close()
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		defer stop()

		if err := conn.Describe(); err != nil {
			done <- result{err: fmt.Errorf("rtsp describe: %w", err)}
			return
		}
		var codecs []string
		for _, media := range conn.Medias {
			if media.Kind != core.KindVideo {
				continue
			}
			for _, codec := range media.Codecs {
				codecs = append(codecs, codec.Name)
			}
		}
		done <- result{codecs: codecs}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.codecs, r.err
	}
}

// ffprobe lists the codec of the first video stream.
func ffprobe(ctx context.Context, bin, url string) ([]string, error) {
	timeout := defaultProbeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	args, err := ffmpeg.BuildProbeArgs(bin, url, timeout)
	if err != nil {
		return nil, err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ffprobe: %s: %w", msg, err)
		}
		return nil, fmt.Errorf("ffprobe: %w", err)
	}
	return strings.Fields(string(out)), nil
}

func isRTSP(url string) bool {
	return strings.HasPrefix(url, "rtsp://") || strings.HasPrefix(url, "rtsps://")
}
