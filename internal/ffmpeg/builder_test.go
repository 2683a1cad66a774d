package ffmpeg

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   string
	}{
		{
			name:   "defaults",
			params: Params{InputURL: "rtsp://10.0.0.5:554/stream1"},
			want:   "ffmpeg -hide_banner -nostdin -loglevel level+warning -rtsp_transport tcp -i rtsp://10.0.0.5:554/stream1 -an -c:v mjpeg -q:v 5 -f mjpeg pipe:1",
		},
		{
			name: "all settings",
			params: Params{
				FFmpeg:   "/usr/bin/ffmpeg",
				InputURL: "rtsp://cam/live",
				LogLevel: "info",
				Progress: true,
				Options:  []OptionType{OptionNoBuffer, OptionLowLatency},
			},
			want: "/usr/bin/ffmpeg -hide_banner -nostdin -loglevel level+info -nostats -progress pipe:2 -stats_period 1 " +
				"-flags +low_delay -fflags +nobuffer -rtsp_transport tcp -i rtsp://cam/live -an " +
				"-c:v mjpeg -q:v 5 -f mjpeg pipe:1",
		},
		{
			name:   "file input has no rtsp transport",
			params: Params{InputURL: "/tmp/sample.mp4"},
			want:   "ffmpeg -hide_banner -nostdin -loglevel level+warning -i /tmp/sample.mp4 -an -c:v mjpeg -q:v 5 -f mjpeg pipe:1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := BuildArgs(tt.params)
			if err != nil {
				t.Fatalf("BuildArgs() error: %v", err)
			}
			if got := strings.Join(args, " "); got != tt.want {
				t.Errorf("BuildArgs()\n got: %s\nwant: %s", got, tt.want)
			}
		})
	}
}

func TestBuildArgsRequiresInput(t *testing.T) {
	if _, err := BuildArgs(Params{}); !errors.Is(err, ErrNoInput) {
		t.Errorf("expected ErrNoInput, got %v", err)
	}
}

func TestBuildProbeArgs(t *testing.T) {
	args, err := BuildProbeArgs("", "rtsp://cam/live", 2*time.Second)
	if err != nil {
		t.Fatalf("BuildProbeArgs() error: %v", err)
	}
	want := "ffprobe -hide_banner -v error -rtsp_transport tcp -timeout 2000000 -select_streams v:0 -show_entries stream=codec_name -of csv=p=0 rtsp://cam/live"
	if got := strings.Join(args, " "); got != want {
		t.Errorf("BuildProbeArgs()\n got: %s\nwant: %s", got, want)
	}

	if _, err := BuildProbeArgs("ffprobe", "", time.Second); !errors.Is(err, ErrNoInput) {
		t.Errorf("expected ErrNoInput, got %v", err)
	}
}
