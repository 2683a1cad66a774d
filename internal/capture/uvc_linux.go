//go:build linux

package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/google/gousb"
	"github.com/kevmo314/go-uvc"
	"github.com/kevmo314/go-uvc/pkg/descriptors"
	"github.com/kevmo314/go-uvc/pkg/transfers"
)

// uvcDriver talks to a UVC camera over usbfs, bypassing V4L2. The first
// MJPEG format and frame descriptor the camera advertises are used.
type uvcDriver struct {
	cfg      Config
	vid, pid uint16
}

func newUVCDriver(cfg Config, vid, pid uint16) Driver {
	return &uvcDriver{cfg: cfg, vid: vid, pid: pid}
}

func (d *uvcDriver) Name() string {
	return fmt.Sprintf("capture:usb:%04x:%04x", d.vid, d.pid)
}

// devicePath resolves the usbfs node for the configured VID:PID.
func (d *uvcDriver) devicePath() (string, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(d.vid), gousb.ID(d.pid))
	if err != nil {
		return "", fmt.Errorf("find USB device %04x:%04x: %w", d.vid, d.pid, err)
	}
	if dev == nil {
		return "", fmt.Errorf("USB device %04x:%04x not found", d.vid, d.pid)
	}
	defer dev.Close()
	return fmt.Sprintf("/dev/bus/usb/%03v/%03v", dev.Desc.Bus, dev.Desc.Address), nil
}

func (d *uvcDriver) Open(_ context.Context) (Device, error) {
	path, err := d.devicePath()
	if err != nil {
		return nil, err
	}

	fd, err := syscall.Open(path, syscall.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	dev, err := uvc.NewUVCDevice(uintptr(fd))
	if err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("uvc device %s: %w", path, err)
	}

	info, err := dev.DeviceInfo()
	if err != nil {
		closeUVC(dev, fd)
		return nil, fmt.Errorf("uvc device info %s: %w", path, err)
	}

	for _, iface := range info.StreamingInterfaces {
		for i, desc := range iface.Descriptors {
			format, ok := desc.(*descriptors.MJPEGFormatDescriptor)
			if !ok || i+1 >= len(iface.Descriptors) {
				continue
			}
			frame, ok := iface.Descriptors[i+1].(*descriptors.MJPEGFrameDescriptor)
			if !ok {
				continue
			}
			reader, err := iface.ClaimFrameReader(format.Index(), frame.Index())
			if err != nil {
				closeUVC(dev, fd)
				return nil, fmt.Errorf("claim MJPEG stream on %s: %w", path, err)
			}
			return &uvcDevice{
				dev:    dev,
				fd:     fd,
				reader: reader,
				next: func() (io.Reader, error) {
					return reader.ReadFrame()
				},
				max:     int64(d.cfg.MaxFrameBytes),
				timeout: d.cfg.FrameTimeout,
			}, nil
		}
	}

	closeUVC(dev, fd)
	return nil, fmt.Errorf("%s has no MJPEG stream", path)
}

type uvcDevice struct {
	dev     *uvc.UVCDevice
	fd      int
	reader  *transfers.FrameReader
	next    func() (io.Reader, error)
	max     int64
	timeout time.Duration
}

type readResult struct {
	buf []byte
	err error
}

// ReadFrame runs the blocking usbfs read in its own goroutine so ctx and the
// frame timeout can end the wait. An abandoned read finishes when Close tears
// the device down.
func (d *uvcDevice) ReadFrame(ctx context.Context) ([]byte, error) {
	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	done := make(chan readResult, 1)
	go func() {
		fr, err := d.next()
		if err != nil {
			done <- readResult{err: err}
			return
		}
		buf, err := io.ReadAll(io.LimitReader(fr, d.max+1))
		done <- readResult{buf: buf, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrFrameTimeout
	case r := <-done:
		return r.buf, r.err
	}
}

func (d *uvcDevice) Close() error {
	var errs []error
	if d.reader != nil {
		errs = append(errs, d.reader.Close())
	}
	errs = append(errs, closeUVC(d.dev, d.fd))
	return errors.Join(errs...)
}

func closeUVC(dev *uvc.UVCDevice, fd int) error {
	var err error
	if dev != nil {
		err = dev.Close()
	}
	// Closing the device may already have closed fd.
	if cerr := syscall.Close(fd); cerr != nil && !errors.Is(cerr, syscall.EBADF) {
		err = errors.Join(err, cerr)
	}
	return err
}
