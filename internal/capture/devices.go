package capture

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DeviceInfo describes a local V4L2 video node.
type DeviceInfo struct {
	Path    string   `json:"path" example:"/dev/video0" doc:"Device node"`
	Name    string   `json:"name" example:"HD Pro Webcam C920" doc:"Driver reported card name"`
	Formats []string `json:"formats,omitempty" doc:"Supported pixel formats"`
	MJPEG   bool     `json:"mjpeg" doc:"Whether the device can stream MJPEG"`
	Busy    bool     `json:"busy" doc:"Whether the device could not be opened for inspection"`
}

// sysfsName reads the card name the kernel exposes for a video node.
func sysfsName(path string) string {
	data, err := os.ReadFile(filepath.Join("/sys/class/video4linux", filepath.Base(path), "name"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// videoNodes returns /dev/video* in numeric order.
func videoNodes(pattern string) ([]string, error) {
	nodes, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(nodes, func(a, b string) int {
		if len(a) != len(b) {
			return len(a) - len(b)
		}
		return strings.Compare(a, b)
	})
	return nodes, nil
}
