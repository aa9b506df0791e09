// Package event defines the alert record recovered from a monitoring log line.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the alert shape a log line describes.
type Kind string

const (
	KindHostAlert    Kind = "HOST ALERT"
	KindServiceAlert Kind = "SERVICE ALERT"
)

// Event is one parsed alert line. Events are built once per matched line and
// handed to the store as-is.
type Event struct {
	ID        string
	Timestamp time.Time
	Kind      Kind
	Host      string
	// Service is empty for host alerts whose service field is blank.
	Service string
	State   string
	Attempt string
	Details string
}

// New creates an Event with a generated UUID.
func New(ts time.Time, kind Kind, host, service, state, attempt, details string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: ts,
		Kind:      kind,
		Host:      host,
		Service:   service,
		State:     state,
		Attempt:   attempt,
		Details:   details,
	}
}

// ParseKind maps the literal log marker to a Kind. Matching is case-sensitive.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindHostAlert, KindServiceAlert:
		return Kind(s), true
	default:
		return "", false
	}
}

// Label returns a short human-readable label for the kind.
func (k Kind) Label() string {
	switch k {
	case KindHostAlert:
		return "Host"
	case KindServiceAlert:
		return "Service"
	default:
		return string(k)
	}
}
