//go:build linux

package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blackjack/webcam"

	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
)

// formatMJPG is the V4L2 fourcc for motion JPEG.
const formatMJPG = webcam.PixelFormat(uint32('M') | uint32('J')<<8 | uint32('P')<<16 | uint32('G')<<24)

// waitSlice bounds each WaitForFrame call so cancellation is noticed.
const waitSlice = 1 // seconds

type v4l2Driver struct {
	cfg Config
}

func newV4L2Driver(cfg Config) Driver {
	return &v4l2Driver{cfg: cfg}
}

func (d *v4l2Driver) Name() string {
	return "capture:" + d.cfg.Device
}

func (d *v4l2Driver) Open(_ context.Context) (Device, error) {
	cam, err := webcam.Open(d.cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.cfg.Device, err)
	}

	if _, ok := cam.GetSupportedFormats()[formatMJPG]; !ok {
		cam.Close()
		return nil, fmt.Errorf("%s does not support MJPEG", d.cfg.Device)
	}

	_, w, h, err := cam.SetImageFormat(formatMJPG, uint32(d.cfg.Width), uint32(d.cfg.Height))
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("set format on %s: %w", d.cfg.Device, err)
	}

	// Two buffers: one being filled while the other is copied out.
	if err := cam.SetBufferCount(2); err != nil {
		cam.Close()
		return nil, fmt.Errorf("set buffer count on %s: %w", d.cfg.Device, err)
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("start streaming on %s: %w", d.cfg.Device, err)
	}

	logging.GetLogger("capture").Debug("V4L2 streaming started",
		"device", d.cfg.Device, "width", w, "height", h)
	return &v4l2Device{cam: cam, timeout: d.cfg.FrameTimeout}, nil
}

type v4l2Device struct {
	cam     *webcam.Webcam
	timeout time.Duration
}

func (d *v4l2Device) ReadFrame(ctx context.Context) ([]byte, error) {
	deadline := time.Now().Add(d.timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := d.cam.WaitForFrame(waitSlice)
		var timeout *webcam.Timeout
		switch {
		case err == nil:
		case errors.As(err, &timeout):
			if time.Now().After(deadline) {
				return nil, ErrFrameTimeout
			}
			continue
		default:
			return nil, err
		}

		buf, index, err := d.cam.GetFrame()
		if err != nil {
			return nil, err
		}
		// The buffer is mmapped and reused by the driver once released.
		frame := make([]byte, len(buf))
		copy(frame, buf)
		if err := d.cam.ReleaseFrame(index); err != nil {
			return nil, err
		}
		if len(frame) == 0 {
			continue
		}
		return frame, nil
	}
}

func (d *v4l2Device) Close() error {
	stopErr := d.cam.StopStreaming()
	closeErr := d.cam.Close()
	return errors.Join(stopErr, closeErr)
}
