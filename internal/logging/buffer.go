package logging

import (
	"sync"
	"time"
)

// LogEntry is one buffered log record.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent log entries.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
}

// NewRingBuffer creates a buffer holding up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{entries: make([]LogEntry, size)}
}

// Write appends entry, evicting the oldest when full.
func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.entries[rb.next] = entry
	rb.next = (rb.next + 1) % len(rb.entries)
	if rb.next == 0 {
		rb.full = true
	}
}

// Tail returns up to n of the newest entries, oldest first. n <= 0 returns all.
func (rb *RingBuffer) Tail(n int) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	count := rb.next
	if rb.full {
		count = len(rb.entries)
	}
	if n <= 0 || n > count {
		n = count
	}

	out := make([]LogEntry, n)
	start := rb.next - n
	for i := range out {
		out[i] = rb.entries[(start+i+len(rb.entries))%len(rb.entries)]
	}
	return out
}

// Count returns the number of buffered entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.full {
		return len(rb.entries)
	}
	return rb.next
}
