package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	healthChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "health",
		Name:      "checks_total",
		Help:      "Health probes by status and reason",
	}, []string{"status", "reason"})

	healthLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "health",
		Name:      "probe_seconds",
		Help:      "Health probe duration",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 5},
	})

	heartbeatPings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "heartbeat",
		Name:      "pings_total",
		Help:      "Heartbeat pings by outcome",
	}, []string{"result"})

	heartbeatMissed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "heartbeat",
		Name:      "missed_pings",
		Help:      "Consecutive failed heartbeat pings",
	})
)

// RecordHealthCheck counts one probe result.
func RecordHealthCheck(status, reason string, seconds float64) {
	healthChecks.WithLabelValues(status, reason).Inc()
	healthLatency.Observe(seconds)
}

// RecordHeartbeatPing counts one ping and sets the missed ping gauge.
func RecordHeartbeatPing(success bool, missed int) {
	result := "success"
	if !success {
		result = "failure"
	}
	heartbeatPings.WithLabelValues(result).Inc()
	heartbeatMissed.Set(float64(missed))
}
