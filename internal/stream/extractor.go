package stream

import (
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameSize caps how many bytes the extractor buffers for a single
// frame before giving up on it.
const DefaultMaxFrameSize = 8 << 20

const (
	readChunkSize = 4096
	maxEmptyReads = 100
)

// ScanState is the extractor's position relative to the JPEG markers.
type ScanState int

// Extractor states.
const (
	ScanningForStart ScanState = iota
	ScanningForEnd
)

func (s ScanState) String() string {
	switch s {
	case ScanningForStart:
		return "scanning_for_start"
	case ScanningForEnd:
		return "scanning_for_end"
	default:
		return fmt.Sprintf("scan_state(%d)", int(s))
	}
}

// Extractor turns an unbounded motion-JPEG byte stream into discrete frames.
// It is fed incrementally and holds no reference to any reader, so chunk
// boundaries may fall anywhere, including between the two bytes of a marker.
//
// Bytes preceding a start marker are discarded, which resynchronizes the
// stream after corruption.
type Extractor struct {
	state    ScanState
	prev     byte
	hasPrev  bool
	buf      []byte
	maxSize  int
	lastSize int
}

// NewExtractor creates an extractor. maxFrameSize <= 0 selects DefaultMaxFrameSize.
func NewExtractor(maxFrameSize int) *Extractor {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Extractor{maxSize: maxFrameSize}
}

// State returns the current scan state.
func (e *Extractor) State() ScanState {
	return e.state
}

// Buffered returns the number of bytes accumulated for the frame in progress.
func (e *Extractor) Buffered() int {
	return len(e.buf)
}

// Reset drops any partial frame and returns to ScanningForStart.
func (e *Extractor) Reset() {
	e.state = ScanningForStart
	e.hasPrev = false
	e.buf = nil
}

// Feed consumes p and returns every frame completed by it, in stream order.
// When the frame in progress grows past the size cap, Feed returns the frames
// completed so far together with a FrameTooLarge error, discards the rest of
// p and starts over from ScanningForStart.
func (e *Extractor) Feed(p []byte) ([]Frame, error) {
	var frames []Frame

	for _, b := range p {
		switch e.state {
		case ScanningForStart:
			if e.hasPrev && e.prev == StartMarker[0] && b == StartMarker[1] {
				e.buf = make([]byte, 0, max(e.lastSize, readChunkSize))
				e.buf = append(e.buf, StartMarker...)
				e.state = ScanningForEnd
				e.hasPrev = false
				continue
			}
			e.prev, e.hasPrev = b, true

		case ScanningForEnd:
			e.buf = append(e.buf, b)
			n := len(e.buf)
			if e.buf[n-2] == EndMarker[0] && b == EndMarker[1] {
				frames = append(frames, Frame(e.buf))
				e.lastSize = n
				e.buf = nil
				e.state = ScanningForStart
				continue
			}
			if n > e.maxSize {
				e.Reset()
				return frames, NewError(KindFrameTooLarge,
					fmt.Sprintf("frame exceeded %d bytes without an end marker", e.maxSize), nil)
			}
		}
	}

	return frames, nil
}

// FrameReader reads frames from a byte stream through an Extractor.
type FrameReader struct {
	r       io.Reader
	ex      *Extractor
	chunk   []byte
	pending []Frame
	err     error
}

// NewFrameReader wraps r. maxFrameSize <= 0 selects DefaultMaxFrameSize.
func NewFrameReader(r io.Reader, maxFrameSize int) *FrameReader {
	return &FrameReader{
		r:     r,
		ex:    NewExtractor(maxFrameSize),
		chunk: make([]byte, readChunkSize),
	}
}

// ReadFrame blocks until the next complete frame is available.
//
// End of stream yields SourceExhausted whether or not a frame was in
// progress; a partial frame is never returned. Read faults yield
// HardwareError. Errors are sticky once every completed frame was returned.
func (fr *FrameReader) ReadFrame() (Frame, error) {
	empty := 0
	for {
		if len(fr.pending) > 0 {
			frame := fr.pending[0]
			fr.pending[0] = nil
			fr.pending = fr.pending[1:]
			return frame, nil
		}
		if fr.err != nil {
			return nil, fr.err
		}

		n, err := fr.r.Read(fr.chunk)
		if n > 0 {
			empty = 0
			frames, feedErr := fr.ex.Feed(fr.chunk[:n])
			fr.pending = append(fr.pending, frames...)
			if feedErr != nil {
				fr.err = feedErr
			}
		}

		switch {
		case err == nil && n == 0:
			empty++
			if empty >= maxEmptyReads {
				fr.err = NewError(KindHardware, "reader made no progress", io.ErrNoProgress)
			}
		case err == nil:
		case fr.err != nil:
		case errors.Is(err, io.EOF):
			fr.err = NewError(KindSourceExhausted,
				fmt.Sprintf("end of stream while %s", fr.ex.State()), nil)
		default:
			fr.err = NewError(KindHardware, "read failed", err)
		}
	}
}
