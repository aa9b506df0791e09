// Package filter decides which parsed events are forwarded to the store.
package filter

import (
	"time"

	"github.com/setevik/naghist/internal/event"
)

// Mode is the admission policy.
type Mode int

const (
	// Today admits events whose local calendar date is the current date.
	Today Mode = iota
	// All admits every parsed event.
	All
)

func (m Mode) String() string {
	if m == All {
		return "all"
	}
	return "today"
}

// Filter is an admission policy over events. It performs no I/O.
type Filter struct {
	mode Mode
	now  func() time.Time
}

// New creates a Filter using the wall clock.
func New(mode Mode) *Filter {
	return &Filter{mode: mode, now: time.Now}
}

// WithClock returns a copy of f that reads the current time from now.
func (f *Filter) WithClock(now func() time.Time) *Filter {
	return &Filter{mode: f.mode, now: now}
}

// Mode returns the admission policy.
func (f *Filter) Mode() Mode {
	return f.mode
}

// Admit reports whether ev should be stored. In Today mode the clock is read
// on every call, so a run that crosses local midnight changes its answer
// mid-run.
func (f *Filter) Admit(ev *event.Event) bool {
	if f.mode == All {
		return true
	}
	return SameDay(ev.Timestamp, f.now())
}

// SameDay reports whether a and b fall on the same calendar date in local time.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}
