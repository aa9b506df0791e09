// Package status normalizes free-form check plugin output into a status,
// a message and optional performance data.
package status

import (
	"strings"
)

const (
	// MaxStatusLen is the storage width of the status column, in characters.
	MaxStatusLen = 20

	// NoDuration is stored in place of a check duration; plugins do not report one.
	NoDuration = "N/A"

	perfSeparator = " | "
)

// Result is the normalized form of one check's stdout.
type Result struct {
	Status     string
	Message    string
	Perfdata   string
	Duration   string
	Attempt    string
	StatusInfo string
	// Rule names the output convention that produced Status.
	Rule string
}

// Parse normalizes trimmed check output. It never fails: output that matches
// no known convention falls through to the first-token rule. Callers must not
// pass empty output.
func Parse(output string) Result {
	output = strings.TrimSpace(output)

	segment, perf, _ := strings.Cut(output, perfSeparator)
	segment = strings.TrimSpace(segment)
	perf = strings.TrimSpace(perf)

	st, msg, ruleName := split(segment)
	st = Truncate(st)

	res := Result{
		Status:   st,
		Message:  msg,
		Perfdata: perf,
		Duration: NoDuration,
		Attempt:  Attempt(st),
		Rule:     ruleName,
	}
	res.StatusInfo = msg
	if perf != "" {
		res.StatusInfo = msg + perfSeparator + perf
	}
	return res
}

// Attempt derives the attempt counter stored with a metric. Critical results
// are recorded as a final attempt; everything else as a first attempt.
func Attempt(status string) string {
	if strings.EqualFold(status, "CRITICAL") {
		return "3/3"
	}
	return "1/1"
}

// Truncate cuts s to MaxStatusLen characters.
func Truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxStatusLen {
		return s
	}
	return string(r[:MaxStatusLen])
}

// split runs the ordered rules and falls back to the first-token rule.
func split(segment string) (string, string, string) {
	for _, r := range rules {
		if st, msg, ok := r.apply(segment); ok {
			return st, msg, r.name
		}
	}
	st, msg := firstToken(segment)
	return st, msg, "first token"
}
