package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bulutsoft-dev/Transmind-PI/internal/stream"
)

type countingSource struct {
	name   string
	frames []stream.Frame
	fail   bool
}

func (c *countingSource) Name() string { return c.name }

func (c *countingSource) Open(context.Context) (stream.Handle, error) {
	if c.fail {
		return nil, errors.New("no device")
	}
	return &countingHandle{src: c}, nil
}

type countingHandle struct {
	src *countingSource
}

func (h *countingHandle) CaptureOne(ctx context.Context) (stream.Frame, error) {
	if len(h.src.frames) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f := h.src.frames[0]
	h.src.frames = h.src.frames[1:]
	return f, nil
}

func (h *countingHandle) Close() error { return nil }

func TestSessionOptionsCountFrames(t *testing.T) {
	src := &countingSource{
		name:   "metrics-test-frames",
		frames: []stream.Frame{[]byte{0xFF, 0xD8, 1, 0xFF, 0xD9}, []byte{0xFF, 0xD8, 0xFF, 0xD9}},
	}
	active := testutil.ToFloat64(sessionsActive)

	s := stream.NewSession(src, SessionOptions()...)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := testutil.ToFloat64(sessionsActive); got != active+1 {
		t.Errorf("sessions_active = %v, want %v", got, active+1)
	}

	for range 2 {
		if _, err := s.Next(context.Background()); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	if got := testutil.ToFloat64(framesTotal.WithLabelValues(src.name)); got != 2 {
		t.Errorf("frames_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(bytesTotal.WithLabelValues(src.name)); got != 9 {
		t.Errorf("bytes_total = %v, want 9", got)
	}

	s.Close()
	if got := testutil.ToFloat64(sessionsActive); got != active {
		t.Errorf("sessions_active after close = %v, want %v", got, active)
	}
}

func TestSessionOptionsCountOpenFailure(t *testing.T) {
	src := &countingSource{name: "metrics-test-unavailable", fail: true}
	active := testutil.ToFloat64(sessionsActive)

	s := stream.NewSession(src, SessionOptions()...)
	if err := s.Open(context.Background()); !errors.Is(err, stream.ErrSourceUnavailable) {
		t.Fatalf("expected SourceUnavailable, got %v", err)
	}

	counter := sourceErrors.WithLabelValues(src.name, string(stream.KindSourceUnavailable))
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Errorf("source_errors_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sessionsActive); got != active {
		t.Errorf("sessions_active = %v, want %v", got, active)
	}
}

func TestSessionClosedBeforeOpen(t *testing.T) {
	active := testutil.ToFloat64(sessionsActive)
	s := stream.NewSession(&countingSource{name: "metrics-test-idle"}, SessionOptions()...)
	s.Close()
	if got := testutil.ToFloat64(sessionsActive); got != active {
		t.Errorf("sessions_active = %v, want %v", got, active)
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	RecordHealthCheck("healthy", "", 0.01)
	RecordHeartbeatPing(false, 2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{
		"transmind_health_checks_total",
		"transmind_heartbeat_missed_pings 2",
		`transmind_heartbeat_pings_total{result="failure"}`,
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}
