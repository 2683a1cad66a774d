package stream

import "bytes"

// JPEG start-of-image and end-of-image markers.
var (
	StartMarker = []byte{0xFF, 0xD8}
	EndMarker   = []byte{0xFF, 0xD9}
)

// Frame is one complete JPEG image, SOI through EOI inclusive.
type Frame []byte

// Valid reports whether f is delimited by the JPEG start and end markers.
func (f Frame) Valid() bool {
	return len(f) >= 4 && bytes.HasPrefix(f, StartMarker) && bytes.HasSuffix(f, EndMarker)
}
