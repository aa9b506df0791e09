package parser

import "regexp"

// alertGrammar matches "[epoch] HOST ALERT: f1;f2;f3;f4;rest". The last group
// runs to end of line and may contain ';'.
const alertGrammar = `\[(\d+)\]\s+(HOST ALERT|SERVICE ALERT):\s+(.*?);(.*?);(.*?);(.*?);(.*?)$`

var (
	// strictAlertRe requires the bracketed timestamp to open the line.
	strictAlertRe = regexp.MustCompile(`^` + alertGrammar)

	// lenientAlertRe finds the record anywhere in the line, e.g. behind a
	// syslog prefix.
	lenientAlertRe = regexp.MustCompile(alertGrammar)
)

// Capture group indexes into a submatch slice.
const (
	groupEpoch = iota + 1
	groupKind
	groupHost
	groupService
	groupState
	groupAttempt
	groupDetails

	groupCount = groupDetails + 1
)
