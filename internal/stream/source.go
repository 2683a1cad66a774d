package stream

import (
	"context"
	"sync/atomic"
	"time"
)

// Source produces frames. Open acquires whatever the source needs exclusively
// (a device, a child process) and hands it back as a Handle.
type Source interface {
	Name() string
	Open(ctx context.Context) (Handle, error)
}

// Handle is one opened instance of a Source.
type Handle interface {
	// CaptureOne blocks until a frame is available, ctx is done, or the
	// source fails.
	CaptureOne(ctx context.Context) (Frame, error)
	// Close releases the handle. It is safe to call more than once.
	Close() error
}

// Activity records source usage that health checks can read without
// touching the source itself.
type Activity struct {
	opened    atomic.Bool
	lastFrame atomic.Int64
	holders   atomic.Int32
}

// MarkOpened records a successful open.
func (a *Activity) MarkOpened() {
	a.opened.Store(true)
}

// Initialized reports whether the source was ever opened successfully.
func (a *Activity) Initialized() bool {
	return a.opened.Load()
}

// MarkFrame records a delivered frame.
func (a *Activity) MarkFrame(t time.Time) {
	a.lastFrame.Store(t.UnixNano())
}

// LastFrame returns the time of the last delivered frame, or the zero time.
func (a *Activity) LastFrame() time.Time {
	n := a.lastFrame.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Acquired and Released track live handles.
func (a *Activity) Acquired() { a.holders.Add(1) }

func (a *Activity) Released() { a.holders.Add(-1) }

// Holders returns the number of live handles.
func (a *Activity) Holders() int {
	return int(a.holders.Load())
}
