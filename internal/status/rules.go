package status

import (
	"strings"
	"unicode"
)

// rule extracts status and message from the message-bearing segment of check
// output, or reports that it does not apply.
type rule struct {
	name  string
	apply func(segment string) (status, message string, ok bool)
}

// rules are evaluated in order; the first that applies wins.
var rules = []rule{
	prefixRule("OK - ", "OK"),
	prefixRule("CRITICAL - ", "CRITICAL"),
	{name: "colon", apply: colonRule},
}

func prefixRule(prefix, status string) rule {
	return rule{
		name: "prefix " + status,
		apply: func(segment string) (string, string, bool) {
			rest, ok := strings.CutPrefix(segment, prefix)
			if !ok {
				return "", "", false
			}
			return status, strings.TrimSpace(rest), true
		},
	}
}

// colonRule handles "STATUS: message".
func colonRule(segment string) (string, string, bool) {
	st, msg, ok := strings.Cut(segment, ":")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(st), strings.TrimSpace(msg), true
}

// firstToken treats the first whitespace-delimited word as the status and the
// rest, minus any leading " -" run, as the message.
func firstToken(segment string) (string, string) {
	fields := strings.Fields(segment)
	if len(fields) == 0 {
		return "", ""
	}
	tok := fields[0]
	rest := strings.TrimLeftFunc(segment, unicode.IsSpace)
	rest = strings.TrimPrefix(rest, tok)
	rest = strings.TrimLeft(rest, " -")
	return Truncate(tok), strings.TrimSpace(rest)
}
