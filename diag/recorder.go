package diag

import (
	"github.com/awmatheson/recoverable-cart-join/pkg/ring"
)

// DefaultRecorderCapacity is how many diagnostics a Recorder retains
// when created with capacity <= 0.
const DefaultRecorderCapacity = 256

// Recorder retains the last N diagnostics in a ring buffer. Tests use
// it to assert on rejection behavior; the ops surface exposes its
// snapshot for inspection.
type Recorder struct {
	ring *ring.Ring[Diagnostic]
}

// NewRecorder creates a recorder retaining the last capacity diagnostics.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultRecorderCapacity
	}
	return &Recorder{
		ring: ring.New[Diagnostic](capacity),
	}
}

// Report stores the diagnostic, evicting the oldest when full.
func (r *Recorder) Report(d Diagnostic) {
	r.ring.Write(d)
}

// Snapshot returns the retained diagnostics oldest-first.
func (r *Recorder) Snapshot() []Diagnostic {
	return r.ring.Snapshot()
}

// Len returns the number of retained diagnostics.
func (r *Recorder) Len() int {
	return r.ring.Len()
}

// Total returns the number of diagnostics ever reported.
func (r *Recorder) Total() int64 {
	return r.ring.Written()
}

// CountByReason returns how many retained diagnostics carry the reason.
func (r *Recorder) CountByReason(reason Reason) int {
	n := 0
	for _, d := range r.ring.Snapshot() {
		if d.Reason == reason {
			n++
		}
	}
	return n
}

// Clear drops all retained diagnostics.
func (r *Recorder) Clear() {
	r.ring.Clear()
}
