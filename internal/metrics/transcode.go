package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transcodeFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transcode",
		Name:      "fps",
		Help:      "Current FFmpeg output FPS",
	}, []string{"source"})

	transcodeDroppedFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transcode",
		Name:      "dropped_frames_total",
		Help:      "Frames dropped by FFmpeg",
	}, []string{"source"})

	transcodeDuplicateFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transcode",
		Name:      "duplicate_frames_total",
		Help:      "Frames duplicated by FFmpeg",
	}, []string{"source"})

	transcodeSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transcode",
		Name:      "processing_speed",
		Help:      "FFmpeg processing speed multiplier",
	}, []string{"source"})

	// Local cache for the sessions API.
	transcodeCache   = make(map[string]*TranscodeMetrics)
	transcodeCacheMu sync.RWMutex
)

// TranscodeMetrics holds the latest FFmpeg progress values for a source.
type TranscodeMetrics struct {
	FPS             float64 `json:"fps"`
	DroppedFrames   float64 `json:"dropped_frames"`
	DuplicateFrames float64 `json:"duplicate_frames"`
	Speed           float64 `json:"speed"`
}

// SetTranscodeFPS sets the current FPS for a source.
func SetTranscodeFPS(source string, fps float64) {
	transcodeFPS.WithLabelValues(source).Set(fps)
	updateCache(source, func(m *TranscodeMetrics) { m.FPS = fps })
}

// SetTranscodeDroppedFrames sets the dropped frame count for a source.
func SetTranscodeDroppedFrames(source string, count float64) {
	transcodeDroppedFrames.WithLabelValues(source).Set(count)
	updateCache(source, func(m *TranscodeMetrics) { m.DroppedFrames = count })
}

// SetTranscodeDuplicateFrames sets the duplicate frame count for a source.
func SetTranscodeDuplicateFrames(source string, count float64) {
	transcodeDuplicateFrames.WithLabelValues(source).Set(count)
	updateCache(source, func(m *TranscodeMetrics) { m.DuplicateFrames = count })
}

// SetTranscodeSpeed sets the processing speed for a source.
func SetTranscodeSpeed(source string, speed float64) {
	transcodeSpeed.WithLabelValues(source).Set(speed)
	updateCache(source, func(m *TranscodeMetrics) { m.Speed = speed })
}

// DeleteTranscodeMetrics removes all progress metrics for a source.
func DeleteTranscodeMetrics(source string) {
	transcodeFPS.DeleteLabelValues(source)
	transcodeDroppedFrames.DeleteLabelValues(source)
	transcodeDuplicateFrames.DeleteLabelValues(source)
	transcodeSpeed.DeleteLabelValues(source)

	transcodeCacheMu.Lock()
	delete(transcodeCache, source)
	transcodeCacheMu.Unlock()
}

// GetTranscodeMetrics returns a copy of the latest values for a source, or
// nil when no progress has been reported.
func GetTranscodeMetrics(source string) *TranscodeMetrics {
	transcodeCacheMu.RLock()
	defer transcodeCacheMu.RUnlock()
	if m, ok := transcodeCache[source]; ok {
		dup := *m
		return &dup
	}
	return nil
}

func updateCache(source string, update func(*TranscodeMetrics)) {
	transcodeCacheMu.Lock()
	defer transcodeCacheMu.Unlock()
	m, ok := transcodeCache[source]
	if !ok {
		m = &TranscodeMetrics{}
		transcodeCache[source] = m
	}
	update(m)
}
