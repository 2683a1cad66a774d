package metrics

import (
	"sync"
	"testing"
)

func TestTranscodeMetricsCache(t *testing.T) {
	source := "transcode:test-1"
	DeleteTranscodeMetrics(source)

	if m := GetTranscodeMetrics(source); m != nil {
		t.Error("expected nil for unknown source")
	}

	SetTranscodeFPS(source, 15.0)
	SetTranscodeDroppedFrames(source, 5)
	SetTranscodeDuplicateFrames(source, 2)
	SetTranscodeSpeed(source, 1.01)

	m := GetTranscodeMetrics(source)
	if m == nil {
		t.Fatal("expected non-nil metrics")
	}
	if m.FPS != 15.0 || m.DroppedFrames != 5 || m.DuplicateFrames != 2 || m.Speed != 1.01 {
		t.Errorf("unexpected metrics %+v", *m)
	}

	// Returned copy is independent of the cache.
	m.FPS = 999
	if again := GetTranscodeMetrics(source); again.FPS != 15.0 {
		t.Errorf("cache was modified, FPS = %v", again.FPS)
	}

	DeleteTranscodeMetrics(source)
	if deleted := GetTranscodeMetrics(source); deleted != nil {
		t.Error("expected nil after delete")
	}
}

func TestTranscodeMetricsConcurrency(t *testing.T) {
	source := "transcode:concurrent"
	DeleteTranscodeMetrics(source)

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(val float64) {
			defer wg.Done()
			SetTranscodeFPS(source, val)
			SetTranscodeSpeed(source, val)
			_ = GetTranscodeMetrics(source)
		}(float64(i))
	}
	wg.Wait()

	if GetTranscodeMetrics(source) == nil {
		t.Error("expected non-nil metrics after concurrent access")
	}
	DeleteTranscodeMetrics(source)
}
