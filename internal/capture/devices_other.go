//go:build !linux

package capture

// ListDevices is only implemented on Linux.
func ListDevices() ([]DeviceInfo, error) {
	return nil, ErrUnsupported
}
