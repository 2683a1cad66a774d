// Package broadcast runs one long-lived stream session and fans its frames
// out to any number of viewers, so an exclusive source can be watched by
// more than one client.
package broadcast

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-mjpeg"

	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
	"github.com/bulutsoft-dev/Transmind-PI/internal/metrics"
	"github.com/bulutsoft-dev/Transmind-PI/internal/stream"
)

const defaultRestartDelay = time.Second

// ErrAlreadyStarted is returned by Start on a running broadcaster.
var ErrAlreadyStarted = errors.New("broadcaster already started")

// Broadcaster owns the shared session. When the session ends (initial open
// failure or a recovery ceiling) a new one is started after the restart delay.
type Broadcaster struct {
	source       stream.Source
	sessionOpts  []stream.SessionOption
	sessions     *stream.Sessions
	restartDelay time.Duration
	out          *mjpeg.Stream
	latest       atomic.Pointer[stream.Frame]
	logger       logging.Logger
	clients      atomic.Int32

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	quit    chan struct{}
	current *stream.Session
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithSessionOptions applies opts to every shared session.
func WithSessionOptions(opts ...stream.SessionOption) Option {
	return func(b *Broadcaster) {
		b.sessionOpts = append(b.sessionOpts, opts...)
	}
}

// WithSessions registers each shared session in ss.
func WithSessions(ss *stream.Sessions) Option {
	return func(b *Broadcaster) {
		b.sessions = ss
	}
}

// WithRestartDelay sets the pause between shared sessions.
func WithRestartDelay(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.restartDelay = d
		}
	}
}

// New creates a stopped broadcaster for src.
func New(src stream.Source, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		source:       src,
		restartDelay: defaultRestartDelay,
		out:          mjpeg.NewStream(),
		logger:       logging.GetLogger("broadcast"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start runs the shared session in the background until ctx is done or Stop
// is called.
func (b *Broadcaster) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.quit = make(chan struct{})
	go b.run(ctx, b.done)

	b.logger.Info("Shared stream started", "source", b.source.Name())
	return nil
}

// Stop ends the shared session, detaches every viewer and waits for the
// source handle to be released.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	cancel, done, quit := b.cancel, b.done, b.quit
	b.cancel, b.quit = nil, nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	close(quit)
	cancel()
	<-done
	// Wake subscribers parked in Current; an empty update carries no frame.
	_ = b.out.Update(nil)
	b.logger.Info("Shared stream stopped")
}

// Session returns the current shared session, if one is running.
func (b *Broadcaster) Session() *stream.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Snapshot returns the most recent frame without waiting for a new one. It
// keeps returning the last frame after the source goes down.
func (b *Broadcaster) Snapshot() ([]byte, bool) {
	frame := b.latest.Load()
	if frame == nil {
		return nil, false
	}
	return *frame, true
}

// Clients returns the number of attached viewers.
func (b *Broadcaster) Clients() int {
	return int(b.clients.Load())
}

// ServeHTTP attaches one viewer to the shared stream. Frames are written in
// the same multipart framing as a private stream. The viewer is detached
// when the client goes away or the broadcaster stops.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	quit := b.quit
	b.mu.Unlock()
	if quit == nil {
		http.Error(w, "shared stream is not running", http.StatusServiceUnavailable)
		return
	}

	metrics.SetBroadcastClients(int(b.clients.Add(1)))
	defer func() {
		metrics.SetBroadcastClients(int(b.clients.Add(-1)))
	}()

	h := w.Header()
	h.Set("Content-Type", stream.ContentType)
	h.Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	ctx := r.Context()
	frames := b.subscribe(ctx, quit)
	b.logger.Debug("Viewer attached", "remote", r.RemoteAddr)
	defer b.logger.Debug("Viewer detached", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case frame := <-frames:
			if _, err := stream.WritePart(w, frame); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// subscribe relays frames from the fan-out to one viewer. Current blocks
// until the next update, so the relay outlives the viewer by at most one
// frame.
func (b *Broadcaster) subscribe(ctx context.Context, quit <-chan struct{}) <-chan stream.Frame {
	frames := make(chan stream.Frame)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-quit:
				return
			default:
			}

			frame := b.out.Current()
			if len(frame) == 0 {
				continue
			}
			select {
			case frames <- stream.Frame(frame):
			case <-ctx.Done():
				return
			case <-quit:
				return
			}
		}
	}()
	return frames
}

func (b *Broadcaster) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		err := b.pump(ctx)
		if ctx.Err() != nil {
			return
		}
		b.logger.Warn("Shared session ended, restarting", "error", err, "delay", b.restartDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.restartDelay):
		}
	}
}

// pump drives one session until it terminates.
func (b *Broadcaster) pump(ctx context.Context) error {
	s := stream.NewSession(b.source, b.sessionOpts...)
	b.mu.Lock()
	b.current = s
	b.mu.Unlock()
	defer func() {
		s.Close()
		b.mu.Lock()
		if b.current == s {
			b.current = nil
		}
		b.mu.Unlock()
	}()

	if b.sessions != nil {
		b.sessions.Add(s)
	}
	if err := s.Open(ctx); err != nil {
		return err
	}
	for {
		frame, err := s.Next(ctx)
		if err != nil {
			return err
		}
		b.latest.Store(&frame)
		_ = b.out.Update(frame)
	}
}
