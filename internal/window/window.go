// Package window maintains the bounded sliding window of recent requests
// and derives the aggregate signals the alert engine consumes.
//
// DESIGN: A fixed-capacity ring buffer holds the last N records in arrival
// order. The 5xx tally is maintained incrementally on append and eviction,
// so the error rate is O(1) per observation instead of a rescan. The window
// is owned by a single consumer loop and is not safe for concurrent use;
// the watcher serializes access.
package window

import (
	"github.com/whotterre/log-watcher/internal/accesslog"
)

// State is the aggregate view derived from the window after an observation.
type State struct {
	CurrentPool  string  // pool of the most recent record
	PreviousPool string  // pool of the record observed immediately before it
	ErrorRate    float64 // percent of 5xx records in the window
	ErrorCount   int     // number of 5xx records in the window
	Len          int     // records currently held
	Transition   bool    // the latest observation switched between two known pools
}

// Window is a fixed-capacity FIFO of the most recent records.
type Window struct {
	buf  []accesslog.Record
	head int // index of the oldest record
	n    int
	errs int // 5xx records currently held
}

// New creates a window holding at most size records.
func New(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{buf: make([]accesslog.Record, size)}
}

// Cap returns the configured capacity.
func (w *Window) Cap() int { return len(w.buf) }

// Len returns the number of records currently held.
func (w *Window) Len() int { return w.n }

// Observe appends rec, evicting the oldest record at capacity, and returns
// the updated state. Transition is true only when both the new record and
// the one observed immediately before it carry known pools and they differ;
// the first record ever observed never registers one.
func (w *Window) Observe(rec accesslog.Record) State {
	var prevPool string
	transition := false
	if w.n > 0 {
		prev := w.buf[(w.head+w.n-1)%len(w.buf)]
		prevPool = prev.Pool
		transition = rec.HasPool() && prev.HasPool() && rec.Pool != prev.Pool
	}

	if w.n == len(w.buf) {
		// At capacity: the slot under head is the oldest record; replace it.
		if w.buf[w.head].IsServerError() {
			w.errs--
		}
		w.buf[w.head] = rec
		w.head = (w.head + 1) % len(w.buf)
	} else {
		w.buf[(w.head+w.n)%len(w.buf)] = rec
		w.n++
	}
	if rec.IsServerError() {
		w.errs++
	}

	return State{
		CurrentPool:  rec.Pool,
		PreviousPool: prevPool,
		ErrorRate:    w.rate(),
		ErrorCount:   w.errs,
		Len:          w.n,
		Transition:   transition,
	}
}

// State recomputes the aggregate view without observing anything new.
// Transition is always false here; it is a property of an observation, not
// of the window contents.
func (w *Window) State() State {
	st := State{
		ErrorRate:  w.rate(),
		ErrorCount: w.errs,
		Len:        w.n,
	}
	if w.n > 0 {
		st.CurrentPool = w.buf[(w.head+w.n-1)%len(w.buf)].Pool
	}
	if w.n > 1 {
		st.PreviousPool = w.buf[(w.head+w.n-2)%len(w.buf)].Pool
	}
	return st
}

// Records returns the held records oldest-first. The slice is a copy.
func (w *Window) Records() []accesslog.Record {
	out := make([]accesslog.Record, 0, w.n)
	for i := 0; i < w.n; i++ {
		out = append(out, w.buf[(w.head+i)%len(w.buf)])
	}
	return out
}

// rate is the in-window 5xx share as a percentage. Cold start computes over
// however many records are present; an empty window reports 0.
func (w *Window) rate() float64 {
	if w.n == 0 {
		return 0
	}
	return float64(w.errs) / float64(w.n) * 100
}
