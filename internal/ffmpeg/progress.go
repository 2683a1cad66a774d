package ffmpeg

import (
	"strconv"
	"strings"
)

// Progress is one block of ffmpeg -progress output.
type Progress struct {
	FPS             float64
	DroppedFrames   float64
	DuplicateFrames float64
	Speed           float64
	End             bool
}

// ProgressParser accumulates key=value lines written by -progress and emits
// a Progress for every block terminated by a progress= line.
type ProgressParser struct {
	data map[string]string
}

// NewProgressParser creates an empty parser.
func NewProgressParser() *ProgressParser {
	return &ProgressParser{data: make(map[string]string)}
}

// Feed consumes one output line. It returns true with the completed block
// when line ends one; log lines are ignored.
func (pp *ProgressParser) Feed(line string) (Progress, bool) {
	line = strings.TrimSpace(line)
	key, value, ok := strings.Cut(line, "=")
	if !ok || key == "" || strings.ContainsAny(key, " []") {
		return Progress{}, false
	}
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)

	if key != "progress" {
		pp.data[key] = value
		return Progress{}, false
	}

	var p Progress
	if fps, err := strconv.ParseFloat(pp.data["fps"], 64); err == nil {
		p.FPS = fps
	}
	if dropped, err := strconv.ParseFloat(pp.data["drop_frames"], 64); err == nil {
		p.DroppedFrames = dropped
	}
	if dup, err := strconv.ParseFloat(pp.data["dup_frames"], 64); err == nil {
		p.DuplicateFrames = dup
	}
	speed := strings.TrimSuffix(pp.data["speed"], "x")
	if s, err := strconv.ParseFloat(strings.TrimSpace(speed), 64); err == nil {
		p.Speed = s
	}
	p.End = value == "end"
	pp.data = make(map[string]string)
	return p, true
}

// IsProgressLine reports whether line belongs to a -progress block rather
// than the log.
func IsProgressLine(line string) bool {
	key, _, ok := strings.Cut(strings.TrimSpace(line), "=")
	return ok && key != "" && !strings.ContainsAny(key, " []")
}
