package logic

import "time"

// Debouncer collapses switch bounce into single logical events.
// After an accepted edge, every edge within the window is suppressed.
// Not safe for concurrent use; callers synchronize.
type Debouncer struct {
	window   time.Duration
	last     time.Time
	accepted bool
}

// NewDebouncer creates a Debouncer with the given lock-out window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Accept reports whether an edge seen at t is a new logical event.
func (d *Debouncer) Accept(t time.Time) bool {
	if d.accepted && t.Sub(d.last) < d.window {
		return false
	}
	d.last = t
	d.accepted = true
	return true
}
