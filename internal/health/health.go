// Package health answers liveness queries about the configured frame source
// without going through any active stream session.
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bulutsoft-dev/Transmind-PI/internal/events"
	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
	"github.com/bulutsoft-dev/Transmind-PI/internal/metrics"
	"github.com/bulutsoft-dev/Transmind-PI/internal/stream"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 5 * time.Second

// Status is the outcome of a check.
type Status string

// Check outcomes.
const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Reason explains an unhealthy result.
type Reason string

// Unhealthy reasons.
const (
	ReasonNotInitialized Reason = "source_not_initialized"
	ReasonTimeout        Reason = "timeout"
	ReasonBusy           Reason = "device_busy"
	ReasonProbeFailed    Reason = "probe_failed"
)

// Target is a source that can be probed out of band.
type Target interface {
	Name() string
	// Initialized reports whether the source was ever opened successfully.
	Initialized() bool
	// Probe performs one short-lived capture or metadata query.
	Probe(ctx context.Context) error
}

// Result is one health check.
type Result struct {
	Source    string        `json:"source" example:"capture:/dev/video0" doc:"Probed source"`
	Status    Status        `json:"status" example:"healthy" doc:"healthy or unhealthy"`
	Reason    Reason        `json:"reason,omitempty" example:"timeout" doc:"Why the source is unhealthy"`
	Message   string        `json:"message,omitempty" doc:"Probe error detail"`
	Latency   time.Duration `json:"-"`
	LatencyMs int64         `json:"latency_ms" example:"38" doc:"Probe duration in milliseconds"`
	CheckedAt time.Time     `json:"checked_at" doc:"When the check ran"`
}

// Healthy reports whether the check passed.
func (r Result) Healthy() bool {
	return r.Status == StatusHealthy
}

// Event converts the result for the event bus.
func (r Result) Event() events.HealthCheckedEvent {
	return events.HealthCheckedEvent{
		Source:    r.Source,
		Status:    string(r.Status),
		Reason:    string(r.Reason),
		Message:   r.Message,
		LatencyMs: r.LatencyMs,
		Timestamp: r.CheckedAt.Format(time.RFC3339),
	}
}

// Prober runs health checks against a Target.
type Prober struct {
	target  Target
	timeout time.Duration
	bus     *events.Bus
	logger  logging.Logger

	mu   sync.Mutex
	last *Result
}

// Option configures a Prober.
type Option func(*Prober)

// WithBus publishes every result on bus.
func WithBus(bus *events.Bus) Option {
	return func(p *Prober) {
		p.bus = bus
	}
}

// NewProber creates a prober. A non-positive timeout means DefaultTimeout.
func NewProber(target Target, timeout time.Duration, opts ...Option) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := &Prober{
		target:  target,
		timeout: timeout,
		logger:  logging.GetLogger("health"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check probes the target once. A source that was never opened is reported
// unhealthy without being touched.
func (p *Prober) Check(ctx context.Context) Result {
	start := time.Now()
	res := Result{Source: p.target.Name(), Status: StatusHealthy, CheckedAt: start}

	if !p.target.Initialized() {
		res.Status = StatusUnhealthy
		res.Reason = ReasonNotInitialized
		res.Message = "source has not been opened"
	} else if err := p.probe(ctx); err != nil {
		res.Status = StatusUnhealthy
		res.Reason = classify(err)
		res.Message = err.Error()
	}

	res.Latency = time.Since(start)
	res.LatencyMs = res.Latency.Milliseconds()
	p.record(res)
	return res
}

// Last returns the most recent result, if any.
func (p *Prober) Last() (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Result{}, false
	}
	return *p.last, true
}

// probe runs the target's probe under the timeout. The result is returned
// when the timeout fires even if the probe itself ignores ctx.
func (p *Prober) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.target.Probe(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, stream.ErrBusy):
		return ReasonBusy
	default:
		return ReasonProbeFailed
	}
}

func (p *Prober) record(res Result) {
	p.mu.Lock()
	p.last = &res
	p.mu.Unlock()

	metrics.RecordHealthCheck(string(res.Status), string(res.Reason), res.Latency.Seconds())
	if res.Reason == ReasonBusy {
		metrics.RecordSourceError(res.Source, stream.KindSourceUnavailable)
	}

	if res.Healthy() {
		p.logger.Debug("Health check passed", "source", res.Source, "latency_ms", res.LatencyMs)
	} else {
		p.logger.Warn("Health check failed", "source", res.Source, "reason", res.Reason, "error", res.Message)
	}

	if p.bus != nil {
		p.bus.Publish(res.Event())
	}
}
