package stream

import "io"

// Boundary is the multipart boundary token used between frames.
const Boundary = "frame"

// ContentType is the response content type for an encoded frame stream.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

var (
	partHeader  = []byte("--" + Boundary + "\r\nContent-Type: image/jpeg\r\n\r\n")
	partTrailer = []byte("\r\n")
)

// Encode wraps one frame as a multipart part: boundary line, content type
// header, blank line, the frame bytes and a trailing line break.
func Encode(f Frame) []byte {
	out := make([]byte, 0, len(partHeader)+len(f)+len(partTrailer))
	out = append(out, partHeader...)
	out = append(out, f...)
	return append(out, partTrailer...)
}

// WritePart writes Encode(f) to w in a single call.
func WritePart(w io.Writer, f Frame) (int, error) {
	return w.Write(Encode(f))
}
