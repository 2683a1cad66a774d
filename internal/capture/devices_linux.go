//go:build linux

package capture

import (
	"slices"

	"github.com/blackjack/webcam"
)

// ListDevices inspects every V4L2 video node. Nodes held by another process
// are still listed, marked busy.
func ListDevices() ([]DeviceInfo, error) {
	nodes, err := videoNodes("/dev/video*")
	if err != nil {
		return nil, err
	}

	devices := make([]DeviceInfo, 0, len(nodes))
	for _, path := range nodes {
		info := DeviceInfo{Path: path, Name: sysfsName(path)}

		cam, err := webcam.Open(path)
		if err != nil {
			info.Busy = true
			devices = append(devices, info)
			continue
		}
		for format, name := range cam.GetSupportedFormats() {
			info.Formats = append(info.Formats, name)
			if format == formatMJPG {
				info.MJPEG = true
			}
		}
		cam.Close()
		slices.Sort(info.Formats)
		devices = append(devices, info)
	}
	return devices, nil
}
