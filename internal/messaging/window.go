// Package messaging implements the WhatsApp transport client: outbound text
// delivery with length-aware splitting, profile lookup, and an explicit
// fixed-window counter for outbound volume. This file holds the counter.
package messaging

import (
	"sync"
	"time"
)

// Window is a fixed-window counter keyed by the current hour. The count
// resets lazily when a read observes a new hour, so no background sweeper is
// needed. Safe for concurrent use.
type Window struct {
	mu    sync.Mutex
	hour  time.Time
	count int

	now func() time.Time // test seam
}

// NewWindow constructs an hourly counter.
func NewWindow() *Window {
	return &Window{now: time.Now}
}

// Incr counts one event in the current hour and returns the running total
// for that hour, resetting first if the hour has rolled over.
func (w *Window) Incr() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	h := w.now().UTC().Truncate(time.Hour)
	if !h.Equal(w.hour) {
		w.hour = h
		w.count = 0
	}
	w.count++
	return w.count
}

// Count returns the total for the current hour without counting, resetting
// first if the hour has rolled over.
func (w *Window) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	h := w.now().UTC().Truncate(time.Hour)
	if !h.Equal(w.hour) {
		w.hour = h
		w.count = 0
	}
	return w.count
}
