// Package metrics provides Prometheus metrics for stream sessions, sources,
// health probes and the heartbeat client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bulutsoft-dev/Transmind-PI/internal/stream"
)

const namespace = "transmind"

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "sessions_active",
		Help:      "Stream sessions that have not terminated",
	})

	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "frames_total",
		Help:      "Frames delivered to consumers",
	}, []string{"source"})

	bytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "bytes_total",
		Help:      "JPEG bytes delivered to consumers",
	}, []string{"source"})

	recoveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "recovery_attempts_total",
		Help:      "Source reopen attempts by outcome",
	}, []string{"source", "result"})

	sourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "source_errors_total",
		Help:      "Source failures by error kind",
	}, []string{"source", "kind"})

	consecutiveFailures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "consecutive_failures",
		Help:      "Consecutive failed recovery attempts per session",
	}, []string{"session"})

	broadcastClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "broadcast",
		Name:      "clients",
		Help:      "Clients attached to the shared stream",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
// This collects all promauto-registered metrics automatically.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SessionOptions returns session callbacks that keep the stream metrics
// current for the lifetime of a session.
func SessionOptions() []stream.SessionOption {
	return []stream.SessionOption{
		stream.WithStateCallback(observeState),
		stream.WithFrameCallback(func(s *stream.Session, f stream.Frame) {
			name := s.Source().Name()
			framesTotal.WithLabelValues(name).Inc()
			bytesTotal.WithLabelValues(name).Add(float64(len(f)))
		}),
		stream.WithRecoveryCallback(func(s *stream.Session, st stream.RecoveryState, err error) {
			result := "success"
			if err != nil {
				result = "failure"
			}
			recoveryAttempts.WithLabelValues(s.Source().Name(), result).Inc()
			consecutiveFailures.WithLabelValues(s.ID()).Set(float64(st.ConsecutiveFailures))
		}),
	}
}

func observeState(s *stream.Session, from, to stream.State, err error) {
	switch {
	case to == stream.StateTerminated:
		if from != stream.StateIdle {
			sessionsActive.Dec()
		}
		consecutiveFailures.DeleteLabelValues(s.ID())
	case from == stream.StateIdle:
		sessionsActive.Inc()
	}
	if err != nil {
		if kind := stream.KindOf(err); kind != "" {
			sourceErrors.WithLabelValues(s.Source().Name(), string(kind)).Inc()
		}
	}
}

// SetBroadcastClients sets the number of shared stream clients.
func SetBroadcastClients(n int) {
	broadcastClients.Set(float64(n))
}

// RecordSourceError counts a failure outside a session, such as a health probe
// or the shared broadcaster.
func RecordSourceError(source string, kind stream.Kind) {
	sourceErrors.WithLabelValues(source, string(kind)).Inc()
}
