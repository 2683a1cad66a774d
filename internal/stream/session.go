package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
)

// State is a session lifecycle state.
type State string

// Session states.
const (
	StateIdle       State = "idle"
	StateOpening    State = "opening"
	StateStreaming  State = "streaming"
	StateRecovering State = "recovering"
	StateTerminated State = "terminated"
)

// StateFunc observes session state transitions. err carries the failure that
// caused the transition, if any.
type StateFunc func(s *Session, from, to State, err error)

// FrameFunc observes every frame handed to the consumer.
type FrameFunc func(s *Session, frame Frame)

// RecoveryFunc observes every recovery attempt. err is nil for the attempt
// that succeeded.
type RecoveryFunc func(s *Session, state RecoveryState, err error)

// Stats is a point-in-time view of a session.
type Stats struct {
	ID        string        `json:"id"`
	Source    string        `json:"source"`
	State     State         `json:"state"`
	Frames    uint64        `json:"frames"`
	Bytes     uint64        `json:"bytes"`
	StartedAt time.Time     `json:"started_at"`
	Recovery  RecoveryState `json:"recovery"`
	Error     string        `json:"error,omitempty"`
}

// Session drives one Source for one consumer. Frames are pulled with Next
// (or pushed to a writer with Serve) in capture order. Source failures while
// streaming go through the RecoveryController; a failed initial open does not.
//
// A session owns at most one Handle at a time and closes each handle it
// opens exactly once.
type Session struct {
	id        string
	source    Source
	logger    logging.Logger
	recovery  *RecoveryController
	startedAt time.Time

	onState    []StateFunc
	onFrame    []FrameFunc
	onRecovery []RecoveryFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  State
	handle Handle
	err    error
	frames uint64
	bytes  uint64

	terminateOnce sync.Once
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRecoveryPolicy overrides DefaultRecoveryPolicy.
func WithRecoveryPolicy(policy RecoveryPolicy) SessionOption {
	return func(s *Session) {
		s.recovery = NewRecoveryController(policy, s.logger)
	}
}

// WithLogger sets the session logger.
func WithLogger(logger logging.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
		s.recovery.logger = logger
	}
}

// WithStateCallback adds a state transition observer.
func WithStateCallback(fn StateFunc) SessionOption {
	return func(s *Session) {
		s.onState = append(s.onState, fn)
	}
}

// WithFrameCallback adds a frame observer.
func WithFrameCallback(fn FrameFunc) SessionOption {
	return func(s *Session) {
		s.onFrame = append(s.onFrame, fn)
	}
}

// WithRecoveryCallback adds a recovery attempt observer.
func WithRecoveryCallback(fn RecoveryFunc) SessionOption {
	return func(s *Session) {
		s.onRecovery = append(s.onRecovery, fn)
	}
}

// NewSession creates an idle session for src.
func NewSession(src Source, opts ...SessionOption) *Session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        id,
		source:    src,
		state:     StateIdle,
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.logger = logging.GetLogger("stream").With(slog.String("session_id", id), slog.String("source", src.Name()))
	s.recovery = NewRecoveryController(DefaultRecoveryPolicy(), s.logger)
	for _, opt := range opts {
		opt(s)
	}
	s.recovery.onAttempt = func(state RecoveryState, err error) {
		for _, fn := range s.onRecovery {
			fn(s, state, err)
		}
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Source returns the session's source.
func (s *Session) Source() Source {
	return s.source
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that terminated the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Recovery returns the current recovery state.
func (s *Session) Recovery() RecoveryState {
	return s.recovery.State()
}

// Done is closed once the session is terminated.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Stats returns a snapshot of the session.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		ID:        s.id,
		Source:    s.source.Name(),
		State:     s.state,
		Frames:    s.frames,
		Bytes:     s.bytes,
		StartedAt: s.startedAt,
	}
	if s.err != nil && !errors.Is(s.err, ErrConsumerGone) {
		st.Error = s.err.Error()
	}
	s.mu.Unlock()
	st.Recovery = s.recovery.State()
	return st
}

// Open opens the source. A failure terminates the session with
// SourceUnavailable and is not retried.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session %s: cannot open in state %s", s.id, state)
	}
	s.mu.Unlock()

	s.transition(StateOpening, nil)

	ctx, cancel := s.bind(ctx)
	defer cancel()

	h, err := s.source.Open(ctx)
	if err != nil {
		if !errors.Is(err, ErrSourceUnavailable) {
			err = NewError(KindSourceUnavailable, "open failed", err)
		}
		s.terminate(err)
		return err
	}
	if !s.adopt(h) {
		return ErrConsumerGone
	}

	s.transition(StateStreaming, nil)
	s.logger.Info("Session streaming")
	return nil
}

// Next returns the next frame. While the source is failing Next blocks inside
// recovery and yields nothing. It returns ErrConsumerGone once ctx is done or
// Close was called, and the terminal error once recovery gives up.
func (s *Session) Next(ctx context.Context) (Frame, error) {
	ctx, cancel := s.bind(ctx)
	defer cancel()

	s.mu.Lock()
	h, state, termErr := s.handle, s.state, s.err
	s.mu.Unlock()

	switch state {
	case StateTerminated:
		if termErr == nil {
			termErr = ErrConsumerGone
		}
		return nil, termErr
	case StateStreaming:
	default:
		return nil, fmt.Errorf("session %s: next in state %s", s.id, state)
	}

	frame, err := h.CaptureOne(ctx)
	if err == nil {
		s.deliver(frame)
		return frame, nil
	}
	if ctx.Err() != nil {
		s.terminate(ErrConsumerGone)
		return nil, ErrConsumerGone
	}

	s.logger.Warn("Source failed, recovering", "error", err)
	s.transition(StateRecovering, err)
	s.closeHandle()

	frame, err = s.recovery.Recover(ctx, s.reopen)
	if err != nil {
		if ctx.Err() != nil {
			s.terminate(ErrConsumerGone)
			return nil, ErrConsumerGone
		}
		s.terminate(err)
		return nil, err
	}

	s.transition(StateStreaming, nil)
	s.deliver(frame)
	return frame, nil
}

// Serve opens the session if it is still idle and writes every frame to w as
// a multipart part until the consumer goes away or the session terminates.
// A failed write is treated as a consumer disconnect and returns nil.
// The session is always terminated when Serve returns.
func (s *Session) Serve(ctx context.Context, w io.Writer) error {
	defer s.Close()

	if s.State() == StateIdle {
		if err := s.Open(ctx); err != nil {
			return err
		}
	}

	flusher, _ := w.(interface{ Flush() })
	for {
		frame, err := s.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrConsumerGone) {
				return nil
			}
			return err
		}
		if _, err := WritePart(w, frame); err != nil {
			s.logger.Debug("Write to consumer failed", "error", err)
			return nil
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// Close terminates the session as a consumer disconnect.
func (s *Session) Close() error {
	s.terminate(ErrConsumerGone)
	return nil
}

// bind returns a context that is also cancelled when the session terminates.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// reopen is the recovery attempt: open a fresh handle and capture one frame.
func (s *Session) reopen(ctx context.Context) (Frame, error) {
	h, err := s.source.Open(ctx)
	if err != nil {
		return nil, err
	}
	if !s.adopt(h) {
		return nil, ErrConsumerGone
	}
	frame, err := h.CaptureOne(ctx)
	if err != nil {
		s.closeHandle()
		return nil, err
	}
	return frame, nil
}

// adopt installs h as the live handle. If the session was terminated in the
// meantime h is closed instead and adopt returns false.
func (s *Session) adopt(h Handle) bool {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		s.closeQuietly(h)
		return false
	}
	s.handle = h
	s.mu.Unlock()
	return true
}

// closeHandle closes and forgets the live handle, if any.
func (s *Session) closeHandle() {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()
	if h != nil {
		s.closeQuietly(h)
	}
}

func (s *Session) closeQuietly(h Handle) {
	if err := h.Close(); err != nil {
		s.logger.Warn("Failed to close source handle", "error", err)
	}
}

func (s *Session) deliver(frame Frame) {
	s.recovery.Reset()
	s.mu.Lock()
	s.frames++
	s.bytes += uint64(len(frame))
	s.mu.Unlock()
	for _, fn := range s.onFrame {
		fn(s, frame)
	}
}

func (s *Session) transition(to State, err error) {
	s.mu.Lock()
	from := s.state
	if from == StateTerminated || from == to {
		s.mu.Unlock()
		return
	}
	s.state = to
	s.mu.Unlock()

	for _, fn := range s.onState {
		fn(s, from, to, err)
	}
}

// terminate moves the session to Terminated and releases the live handle.
// Only the first call has any effect.
func (s *Session) terminate(err error) {
	s.terminateOnce.Do(func() {
		s.mu.Lock()
		from := s.state
		s.state = StateTerminated
		s.err = err
		h := s.handle
		s.handle = nil
		frames := s.frames
		s.mu.Unlock()

		s.cancel()
		if h != nil {
			s.closeQuietly(h)
		}

		if errors.Is(err, ErrConsumerGone) {
			s.logger.Info("Consumer disconnected", "frames", frames, "duration", time.Since(s.startedAt).Round(time.Millisecond))
		} else {
			s.logger.Error("Session terminated", "error", err, "frames", frames)
		}

		for _, fn := range s.onState {
			fn(s, from, StateTerminated, err)
		}
	})
}
