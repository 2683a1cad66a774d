//go:build linux

package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/bulutsoft-dev/Transmind-PI/internal/stream"
)

func TestUVCReadFrameTimesOut(t *testing.T) {
	stall := make(chan struct{})
	defer close(stall)

	d := &uvcDevice{
		next: func() (io.Reader, error) {
			<-stall
			return nil, io.EOF
		},
		max:     1 << 20,
		timeout: 20 * time.Millisecond,
	}

	start := time.Now()
	_, err := d.ReadFrame(context.Background())
	if !errors.Is(err, ErrFrameTimeout) {
		t.Fatalf("err = %v, want ErrFrameTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestUVCStallBecomesHardwareError(t *testing.T) {
	stall := make(chan struct{})
	defer close(stall)

	d := &uvcDevice{
		next: func() (io.Reader, error) {
			<-stall
			return nil, io.EOF
		},
		max:     1 << 20,
		timeout: 20 * time.Millisecond,
	}
	src := New(&fakeDriver{}, Config{})
	h := &handle{src: src, dev: d}

	_, err := h.CaptureOne(context.Background())
	if kind := stream.KindOf(err); kind != stream.KindHardware {
		t.Errorf("kind = %v (%v), want hardware", kind, err)
	}
}

func TestUVCReadFrame(t *testing.T) {
	stall := make(chan struct{})
	defer close(stall)

	want := jpeg("uvc")
	d := &uvcDevice{
		next: func() (io.Reader, error) {
			return bytes.NewReader(want), nil
		},
		max:     1 << 20,
		timeout: time.Second,
	}

	got, err := d.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("frame = %x, want %x", got, want)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.next = func() (io.Reader, error) {
		<-stall
		return nil, io.EOF
	}
	if _, err := d.ReadFrame(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled read = %v", err)
	}
}
