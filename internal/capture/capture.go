// Package capture implements frame sources backed by local camera hardware.
//
// A camera can only be streamed by one reader at a time, so every Source
// holds a single-slot lease. Open takes the lease without waiting and the
// handle gives it back on Close. A second viewer, or a health probe, never
// queues behind the active session.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
	"github.com/bulutsoft-dev/Transmind-PI/internal/stream"
)

// Driver names.
const (
	DriverV4L2 = "v4l2"
	DriverUVC  = "uvc"
)

const (
	defaultWidth        = 640
	defaultHeight       = 480
	defaultFrameTimeout = 5 * time.Second
	defaultProbeWindow  = 5 * time.Second
)

var (
	// ErrUnsupported is returned by drivers that are not built for this platform.
	ErrUnsupported = errors.New("capture driver not supported on this platform")
	// ErrFrameTimeout is returned when the device delivers nothing within
	// the frame timeout. It matches context.DeadlineExceeded.
	ErrFrameTimeout = fmt.Errorf("timed out waiting for frame: %w", context.DeadlineExceeded)
)

// Device is an opened camera.
type Device interface {
	// ReadFrame blocks until the camera delivers one compressed frame.
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// Driver opens a Device.
type Driver interface {
	Name() string
	Open(ctx context.Context) (Device, error)
}

// Config describes the camera.
type Config struct {
	Driver        string
	Device        string // V4L2 device node
	USBID         string // vid:pid in hex, for the uvc driver
	Width         int
	Height        int
	FrameTimeout  time.Duration
	MaxFrameBytes int
	// ProbeWindow is how recent the active session's last frame must be for
	// a health probe to pass while the device is busy.
	ProbeWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.Driver == "" {
		c.Driver = DriverV4L2
	}
	if c.Width <= 0 || c.Height <= 0 {
		c.Width, c.Height = defaultWidth, defaultHeight
	}
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = defaultFrameTimeout
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = stream.DefaultMaxFrameSize
	}
	if c.ProbeWindow <= 0 {
		c.ProbeWindow = defaultProbeWindow
	}
	return c
}

// NewDriver returns the driver selected by cfg.Driver.
func NewDriver(cfg Config) (Driver, error) {
	cfg = cfg.withDefaults()
	switch cfg.Driver {
	case DriverV4L2:
		if cfg.Device == "" {
			return nil, errors.New("capture.device is required for the v4l2 driver")
		}
		return newV4L2Driver(cfg), nil
	case DriverUVC:
		vid, pid, err := ParseUSBID(cfg.USBID)
		if err != nil {
			return nil, err
		}
		return newUVCDriver(cfg, vid, pid), nil
	default:
		return nil, fmt.Errorf("unknown capture driver %q", cfg.Driver)
	}
}

// ParseUSBID parses a "vid:pid" pair of hex numbers such as "046d:0825".
func ParseUSBID(s string) (vid, pid uint16, err error) {
	v, p, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid USB id %q: want vid:pid", s)
	}
	vv, err := strconv.ParseUint(strings.TrimPrefix(v, "0x"), 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid USB vendor id %q: %w", v, err)
	}
	pp, err := strconv.ParseUint(strings.TrimPrefix(p, "0x"), 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid USB product id %q: %w", p, err)
	}
	return uint16(vv), uint16(pp), nil
}

// Source is a camera shared by sessions and health probes under one lease.
type Source struct {
	driver   Driver
	cfg      Config
	logger   logging.Logger
	lease    chan struct{}
	activity stream.Activity
}

// New creates a source for the camera behind driver.
func New(driver Driver, cfg Config) *Source {
	return &Source{
		driver: driver,
		cfg:    cfg.withDefaults(),
		logger: logging.GetLogger("capture"),
		lease:  make(chan struct{}, 1),
	}
}

// Name identifies the source in logs and metrics.
func (s *Source) Name() string {
	return s.driver.Name()
}

// Activity returns the source usage record.
func (s *Source) Activity() *stream.Activity {
	return &s.activity
}

// Initialized reports whether the camera has ever been opened.
func (s *Source) Initialized() bool {
	return s.activity.Initialized()
}

// Busy reports whether a handle currently holds the camera.
func (s *Source) Busy() bool {
	return len(s.lease) == cap(s.lease)
}

// Open takes the lease and opens the camera. It fails at once with
// SourceUnavailable wrapping stream.ErrBusy when another handle holds it.
func (s *Source) Open(ctx context.Context) (stream.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case s.lease <- struct{}{}:
	default:
		return nil, stream.NewError(stream.KindSourceUnavailable, s.Name(), stream.ErrBusy)
	}

	dev, err := s.driver.Open(ctx)
	if err != nil {
		<-s.lease
		return nil, stream.NewError(stream.KindSourceUnavailable, "open "+s.Name(), err)
	}

	s.activity.MarkOpened()
	s.activity.Acquired()
	s.logger.Debug("Camera opened", "source", s.Name())
	return &handle{src: s, dev: dev}, nil
}

// Init opens the camera once at startup and reads a frame to verify it.
// The camera is released again before Init returns.
func (s *Source) Init(ctx context.Context) error {
	h, err := s.Open(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	if _, err := h.CaptureOne(ctx); err != nil {
		return fmt.Errorf("initial capture: %w", err)
	}
	s.logger.Info("Camera initialized", "source", s.Name())
	return nil
}

// Probe checks the camera with a short-lived handle of its own. While a
// session holds the camera the probe passes if that session delivered a
// frame within the probe window, and fails with stream.ErrBusy otherwise.
func (s *Source) Probe(ctx context.Context) error {
	h, err := s.Open(ctx)
	if err != nil {
		if errors.Is(err, stream.ErrBusy) {
			last := s.activity.LastFrame()
			if !last.IsZero() && time.Since(last) <= s.cfg.ProbeWindow {
				return nil
			}
		}
		return err
	}
	defer h.Close()

	_, err = h.CaptureOne(ctx)
	return err
}

// frame validates a raw buffer from the driver. Drivers may hand back
// padding after the end-of-image marker, which is trimmed.
func (s *Source) frame(buf []byte) (stream.Frame, error) {
	if len(buf) > s.cfg.MaxFrameBytes {
		return nil, stream.NewError(stream.KindFrameTooLarge,
			fmt.Sprintf("%d bytes exceeds %d", len(buf), s.cfg.MaxFrameBytes), nil)
	}
	if !bytes.HasPrefix(buf, stream.StartMarker) {
		return nil, stream.NewError(stream.KindHardware, "frame without start marker", nil)
	}
	end := bytes.LastIndex(buf, stream.EndMarker)
	if end < len(stream.StartMarker) {
		return nil, stream.NewError(stream.KindHardware, "incomplete frame", nil)
	}
	return stream.Frame(buf[:end+len(stream.EndMarker)]), nil
}

type handle struct {
	src *Source

	mu     sync.Mutex
	dev    Device
	closed bool
}

// CaptureOne reads one frame from the camera.
func (h *handle) CaptureOne(ctx context.Context) (stream.Frame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, stream.NewError(stream.KindHardware, "device not initialized", nil)
	}

	buf, err := h.dev.ReadFrame(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if stream.KindOf(err) != "" {
			return nil, err
		}
		return nil, stream.NewError(stream.KindHardware, "capture", err)
	}

	frame, err := h.src.frame(buf)
	if err != nil {
		return nil, err
	}
	h.src.activity.MarkFrame(time.Now())
	return frame, nil
}

// Close releases the camera and the lease. A capture in flight finishes
// first; it is bounded by the frame timeout.
func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	err := h.dev.Close()
	h.src.activity.Released()
	<-h.src.lease
	if err != nil {
		return fmt.Errorf("close %s: %w", h.src.Name(), err)
	}
	h.src.logger.Debug("Camera released", "source", h.src.Name())
	return nil
}
