package ffmpeg

import "testing"

func TestProgressParser(t *testing.T) {
	lines := []string{
		"frame=120",
		"fps=14.98",
		"[warning] Past duration 0.999992 too large",
		"drop_frames=3",
		"dup_frames=1",
		"speed=1.01x",
		"progress=continue",
		"fps=15.00",
		"progress=end",
	}

	pp := NewProgressParser()
	var got []Progress
	for _, line := range lines {
		if p, ok := pp.Feed(line); ok {
			got = append(got, p)
		}
	}

	if len(got) != 2 {
		t.Fatalf("got %d blocks, want 2", len(got))
	}
	first := got[0]
	if first.FPS != 14.98 || first.DroppedFrames != 3 || first.DuplicateFrames != 1 || first.Speed != 1.01 || first.End {
		t.Errorf("first block = %+v", first)
	}
	// Each block starts from scratch.
	if got[1].FPS != 15 || got[1].DroppedFrames != 0 || !got[1].End {
		t.Errorf("second block = %+v", got[1])
	}
}

func TestParseOutputLine(t *testing.T) {
	tests := []struct {
		line      string
		wantLevel string
		wantMsg   string
	}{
		{"fps=25.0", "", "fps=25.0"},
		{"[error] rtsp://cam: Connection refused", "error", "rtsp://cam: Connection refused"},
		{"[rtsp @ 0x55d1c0] [warning] max delay reached", "warning", "[rtsp @ 0x55d1c0] max delay reached"},
		{"[info] Stream #0:0: Video: h264", "info", "Stream #0:0: Video: h264"},
		{"plain line", "info", "plain line"},
	}
	for _, tt := range tests {
		level, msg := ParseOutputLine(tt.line)
		if level != tt.wantLevel || msg != tt.wantMsg {
			t.Errorf("ParseOutputLine(%q) = (%q, %q), want (%q, %q)", tt.line, level, msg, tt.wantLevel, tt.wantMsg)
		}
	}
}
