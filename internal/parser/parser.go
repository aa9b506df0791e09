// Package parser recognizes HOST ALERT and SERVICE ALERT records in
// monitoring-tool event logs and decomposes them into typed events.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/setevik/naghist/internal/event"
)

// Mode selects how strictly a line must conform to the alert grammar.
type Mode int

const (
	// Strict requires the bracketed timestamp to be the first token.
	Strict Mode = iota
	// Lenient accepts the record anywhere in the line.
	Lenient
)

func (m Mode) String() string {
	if m == Lenient {
		return "lenient"
	}
	return "strict"
}

// ErrTimestamp is returned when a matched line carries an epoch value that
// cannot be converted to a point in time.
var ErrTimestamp = errors.New("invalid timestamp")

// Fields are the raw captures of a matched alert line.
type Fields struct {
	Epoch   string
	Kind    event.Kind
	Host    string
	Service string
	State   string
	Attempt string
	Details string
}

// Parser decomposes alert lines. It holds no per-line state and is safe to
// reuse.
type Parser struct {
	mode Mode
	re   *regexp.Regexp
}

// New creates a Parser for the given mode.
func New(mode Mode) *Parser {
	re := strictAlertRe
	if mode == Lenient {
		re = lenientAlertRe
	}
	return &Parser{mode: mode, re: re}
}

// Mode returns the matching mode.
func (p *Parser) Mode() Mode {
	return p.mode
}

// Match returns the captured fields of line, or false if the line is not an
// alert record. A match is always complete.
func (p *Parser) Match(line string) (Fields, bool) {
	m := p.re.FindStringSubmatch(strings.TrimSpace(line))
	if len(m) != groupCount {
		return Fields{}, false
	}

	kind, ok := event.ParseKind(m[groupKind])
	if !ok {
		return Fields{}, false
	}

	return Fields{
		Epoch:   m[groupEpoch],
		Kind:    kind,
		Host:    m[groupHost],
		Service: m[groupService],
		State:   m[groupState],
		Attempt: m[groupAttempt],
		Details: m[groupDetails],
	}, true
}

// Parse converts line into an Event. It returns (nil, nil) when the line does
// not match, and an error wrapping ErrTimestamp when the line matches but its
// timestamp cannot be converted.
func (p *Parser) Parse(line string) (*event.Event, error) {
	f, ok := p.Match(line)
	if !ok {
		return nil, nil
	}

	ts, err := Timestamp(f.Epoch)
	if err != nil {
		return nil, err
	}

	return event.New(ts, f.Kind, f.Host, f.Service, f.State, f.Attempt, f.Details), nil
}

// Timestamp interprets epoch as Unix seconds in local time. Values that
// overflow or land outside years 1..9999 are rejected.
func Timestamp(epoch string) (time.Time, error) {
	sec, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrTimestamp, epoch, err)
	}

	ts := time.Unix(sec, 0)
	if y := ts.Year(); y < 1 || y > 9999 {
		return time.Time{}, fmt.Errorf("%w %q: year %d out of range", ErrTimestamp, epoch, y)
	}
	return ts, nil
}
