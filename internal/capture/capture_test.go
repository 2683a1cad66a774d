package capture

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bulutsoft-dev/Transmind-PI/internal/stream"
)

func jpeg(body string) []byte {
	b := append([]byte{0xFF, 0xD8}, body...)
	return append(b, 0xFF, 0xD9)
}

type read struct {
	buf []byte
	err error
}

type fakeDriver struct {
	mu      sync.Mutex
	reads   []read
	openErr error
	opens   int
	closes  int
}

func (d *fakeDriver) Name() string { return "capture:fake" }

func (d *fakeDriver) Open(context.Context) (Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.opens++
	return &fakeDevice{d: d}, nil
}

func (d *fakeDriver) counts() (opens, closes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens, d.closes
}

type fakeDevice struct {
	d *fakeDriver
}

func (f *fakeDevice) ReadFrame(context.Context) ([]byte, error) {
	f.d.mu.Lock()
	defer f.d.mu.Unlock()
	if len(f.d.reads) == 0 {
		return nil, errors.New("no more frames")
	}
	r := f.d.reads[0]
	f.d.reads = f.d.reads[1:]
	return r.buf, r.err
}

func (f *fakeDevice) Close() error {
	f.d.mu.Lock()
	f.d.closes++
	f.d.mu.Unlock()
	return nil
}

func TestOpenCaptureClose(t *testing.T) {
	padded := append(jpeg("one"), 0, 0, 0)
	drv := &fakeDriver{reads: []read{{buf: padded}}}
	src := New(drv, Config{})

	if src.Initialized() {
		t.Fatal("source should not be initialized before the first open")
	}

	h, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !src.Busy() {
		t.Error("expected source to be busy while a handle is open")
	}

	frame, err := h.CaptureOne(context.Background())
	if err != nil {
		t.Fatalf("CaptureOne: %v", err)
	}
	if !bytes.Equal(frame, jpeg("one")) {
		t.Errorf("frame = %x, want padding trimmed", []byte(frame))
	}
	if src.Activity().LastFrame().IsZero() {
		t.Error("expected last frame time to be recorded")
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, closes := drv.counts(); closes != 1 {
		t.Errorf("device closed %d times, want 1", closes)
	}
	if src.Busy() {
		t.Error("lease should be released after Close")
	}
	if !src.Initialized() {
		t.Error("source should be initialized after a successful open")
	}

	_, err = h.CaptureOne(context.Background())
	if !errors.Is(err, stream.ErrHardware) {
		t.Errorf("CaptureOne after Close = %v, want HardwareError", err)
	}
}

func TestSecondOpenIsBusy(t *testing.T) {
	drv := &fakeDriver{}
	src := New(drv, Config{})

	h, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	_, err = src.Open(context.Background())
	if !errors.Is(err, stream.ErrSourceUnavailable) {
		t.Errorf("second Open = %v, want SourceUnavailable", err)
	}
	if !errors.Is(err, stream.ErrBusy) {
		t.Errorf("second Open = %v, want ErrBusy cause", err)
	}

	h.Close()
	h2, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open after release: %v", err)
	}
	h2.Close()

	if opens, _ := drv.counts(); opens != 2 {
		t.Errorf("driver opened %d times, want 2", opens)
	}
}

func TestOpenFailureReleasesLease(t *testing.T) {
	drv := &fakeDriver{openErr: errors.New("no such device")}
	src := New(drv, Config{})

	_, err := src.Open(context.Background())
	if !errors.Is(err, stream.ErrSourceUnavailable) {
		t.Fatalf("Open = %v, want SourceUnavailable", err)
	}
	if errors.Is(err, stream.ErrBusy) {
		t.Error("driver failure must not be reported as busy")
	}
	if src.Busy() {
		t.Error("lease should be released after a failed open")
	}
	if src.Initialized() {
		t.Error("failed open must not initialize the source")
	}
}

func TestOpenCancelled(t *testing.T) {
	src := New(&fakeDriver{}, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.Open(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Open = %v, want context.Canceled", err)
	}
	if src.Busy() {
		t.Error("cancelled open should not take the lease")
	}
}

func TestCaptureValidation(t *testing.T) {
	tests := []struct {
		name string
		read read
		max  int
		want error
	}{
		{name: "missing start marker", read: read{buf: []byte{0x00, 0xFF, 0xD9}}, want: stream.ErrHardware},
		{name: "missing end marker", read: read{buf: []byte{0xFF, 0xD8, 0x01, 0x02}}, want: stream.ErrHardware},
		{name: "too large", read: read{buf: jpeg("0123456789")}, max: 8, want: stream.ErrFrameTooLarge},
		{name: "driver error", read: read{err: errors.New("EIO")}, want: stream.ErrHardware},
		{name: "coded driver error", read: read{err: stream.NewError(stream.KindSourceExhausted, "unplugged", nil)}, want: stream.ErrSourceExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := New(&fakeDriver{reads: []read{tt.read}}, Config{MaxFrameBytes: tt.max})
			h, err := src.Open(context.Background())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer h.Close()

			_, err = h.CaptureOne(context.Background())
			if !errors.Is(err, tt.want) {
				t.Errorf("CaptureOne = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestInitReleasesDevice(t *testing.T) {
	drv := &fakeDriver{reads: []read{{buf: jpeg("init")}}}
	src := New(drv, Config{})

	if err := src.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !src.Initialized() {
		t.Error("expected source to be initialized")
	}
	if src.Busy() {
		t.Error("Init must release the device")
	}
	if opens, closes := drv.counts(); opens != 1 || closes != 1 {
		t.Errorf("opens=%d closes=%d, want 1/1", opens, closes)
	}
}

func TestInitCaptureFailure(t *testing.T) {
	drv := &fakeDriver{reads: []read{{err: errors.New("select timeout")}}}
	src := New(drv, Config{})

	if err := src.Init(context.Background()); err == nil {
		t.Fatal("expected Init to fail")
	}
	if src.Busy() {
		t.Error("failed Init must release the device")
	}
}

func TestProbe(t *testing.T) {
	t.Run("idle device", func(t *testing.T) {
		drv := &fakeDriver{reads: []read{{buf: jpeg("probe")}}}
		src := New(drv, Config{})
		if err := src.Probe(context.Background()); err != nil {
			t.Fatalf("Probe: %v", err)
		}
		if src.Busy() {
			t.Error("probe handle should be released")
		}
	})

	t.Run("busy with recent frame", func(t *testing.T) {
		drv := &fakeDriver{reads: []read{{buf: jpeg("live")}}}
		src := New(drv, Config{ProbeWindow: time.Minute})
		h, err := src.Open(context.Background())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer h.Close()
		if _, err := h.CaptureOne(context.Background()); err != nil {
			t.Fatalf("CaptureOne: %v", err)
		}

		if err := src.Probe(context.Background()); err != nil {
			t.Errorf("Probe = %v, want healthy while session streams", err)
		}
		if opens, _ := drv.counts(); opens != 1 {
			t.Errorf("probe must not open the device, opens = %d", opens)
		}
	})

	t.Run("busy and stalled", func(t *testing.T) {
		src := New(&fakeDriver{}, Config{})
		h, err := src.Open(context.Background())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer h.Close()

		if err := src.Probe(context.Background()); !errors.Is(err, stream.ErrBusy) {
			t.Errorf("Probe = %v, want ErrBusy", err)
		}
	})
}

func TestSessionRecoversAcrossHardwareError(t *testing.T) {
	drv := &fakeDriver{reads: []read{
		{buf: jpeg("J1")},
		{buf: jpeg("J2")},
		{err: errors.New("VIDIOC_DQBUF: no such device")},
		{buf: jpeg("J3")},
	}}
	src := New(drv, Config{})
	s := stream.NewSession(src, stream.WithRecoveryPolicy(stream.RecoveryPolicy{
		InitialDelay: time.Millisecond,
		RetryDelay:   time.Millisecond,
	}))

	ctx := context.Background()
	if err := s.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}

	var got []string
	for range 3 {
		frame, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, string(frame[2:len(frame)-2]))
	}
	if !slices.Equal(got, []string{"J1", "J2", "J3"}) {
		t.Errorf("frames = %v", got)
	}
	if s.Recovery().ConsecutiveFailures != 0 {
		t.Errorf("consecutive failures = %d, want 0", s.Recovery().ConsecutiveFailures)
	}

	s.Close()
	opens, closes := drv.counts()
	if opens != 2 || closes != 2 {
		t.Errorf("opens=%d closes=%d, want 2/2", opens, closes)
	}
	if src.Busy() {
		t.Error("lease should be free after the session terminates")
	}
}

func TestParseUSBID(t *testing.T) {
	tests := []struct {
		in       string
		vid, pid uint16
		wantErr  bool
	}{
		{in: "046d:0825", vid: 0x046d, pid: 0x0825},
		{in: "0x35bd:0x0202", vid: 0x35bd, pid: 0x0202},
		{in: " 1d6b:0002 ", vid: 0x1d6b, pid: 0x0002},
		{in: "046d", wantErr: true},
		{in: "zzzz:0825", wantErr: true},
		{in: "046d:10000", wantErr: true},
	}
	for _, tt := range tests {
		vid, pid, err := ParseUSBID(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseUSBID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && (vid != tt.vid || pid != tt.pid) {
			t.Errorf("ParseUSBID(%q) = %04x:%04x, want %04x:%04x", tt.in, vid, pid, tt.vid, tt.pid)
		}
	}
}

func TestNewDriver(t *testing.T) {
	if _, err := NewDriver(Config{Driver: DriverV4L2}); err == nil {
		t.Error("v4l2 without a device should fail")
	}
	if _, err := NewDriver(Config{Driver: DriverUVC, USBID: "bad"}); err == nil {
		t.Error("uvc with a bad USB id should fail")
	}
	if _, err := NewDriver(Config{Driver: "gstreamer"}); err == nil {
		t.Error("unknown driver should fail")
	}

	drv, err := NewDriver(Config{Device: "/dev/video2"})
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	if drv.Name() != "capture:/dev/video2" {
		t.Errorf("Name = %q", drv.Name())
	}

	drv, err = NewDriver(Config{Driver: DriverUVC, USBID: "35bd:0202"})
	if err != nil {
		t.Fatalf("NewDriver uvc: %v", err)
	}
	if drv.Name() != "capture:usb:35bd:0202" {
		t.Errorf("Name = %q", drv.Name())
	}
}

func TestVideoNodesOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"video10", "video2", "video0", "video1"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}

	nodes, err := videoNodes(filepath.Join(dir, "video*"))
	if err != nil {
		t.Fatalf("videoNodes: %v", err)
	}
	var names []string
	for _, n := range nodes {
		names = append(names, filepath.Base(n))
	}
	if want := []string{"video0", "video1", "video2", "video10"}; !slices.Equal(names, want) {
		t.Errorf("order = %v, want %v", names, want)
	}
}
