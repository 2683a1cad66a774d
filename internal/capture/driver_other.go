//go:build !linux

package capture

import (
	"context"
	"fmt"
)

type unsupportedDriver struct {
	name string
}

func newV4L2Driver(cfg Config) Driver {
	return unsupportedDriver{name: "capture:" + cfg.Device}
}

func newUVCDriver(_ Config, vid, pid uint16) Driver {
	return unsupportedDriver{name: fmt.Sprintf("capture:usb:%04x:%04x", vid, pid)}
}

func (d unsupportedDriver) Name() string {
	return d.name
}

func (d unsupportedDriver) Open(context.Context) (Device, error) {
	return nil, ErrUnsupported
}
