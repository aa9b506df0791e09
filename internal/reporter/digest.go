package reporter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/setevik/naghist/internal/event"
)

// DigestSummary holds aggregated alert counts for a period.
type DigestSummary struct {
	Since time.Time
	Until time.Time

	HostAlerts    int
	ServiceAlerts int
	ByState       map[string]int // state -> count
	ByHost        map[string]int // host -> count
	// Problems are services that reported CRITICAL, keyed "host/service".
	Problems map[string]int
}

// BuildDigest aggregates a list of events into a DigestSummary.
func BuildDigest(events []*event.Event, since, until time.Time) *DigestSummary {
	d := &DigestSummary{
		Since:    since,
		Until:    until,
		ByState:  make(map[string]int),
		ByHost:   make(map[string]int),
		Problems: make(map[string]int),
	}

	for _, ev := range events {
		switch ev.Kind {
		case event.KindHostAlert:
			d.HostAlerts++
		case event.KindServiceAlert:
			d.ServiceAlerts++
		}

		state := ev.State
		if state == "" {
			state = "unknown"
		}
		d.ByState[state]++
		d.ByHost[ev.Host]++

		if ev.Kind == event.KindServiceAlert && strings.EqualFold(ev.State, "CRITICAL") {
			d.Problems[ev.Host+"/"+ev.Service]++
		}
	}

	return d
}

// FormatDigest formats a DigestSummary as human-readable text.
func FormatDigest(d *DigestSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Period: %s - %s\n\n",
		d.Since.Local().Format("Jan 02 15:04"),
		d.Until.Local().Format("Jan 02 15:04"))

	fmt.Fprintf(&b, "Host alerts:      %d\n", d.HostAlerts)
	fmt.Fprintf(&b, "Service alerts:   %d\n", d.ServiceAlerts)

	if len(d.ByState) > 0 {
		fmt.Fprintf(&b, "By state:         %s\n", formatBreakdown(d.ByState))
	}
	if len(d.ByHost) > 0 {
		fmt.Fprintf(&b, "By host:          %s\n", formatBreakdown(d.ByHost))
	}
	if len(d.Problems) > 0 {
		fmt.Fprintf(&b, "Critical services: %s\n", formatBreakdown(d.Problems))
	}

	return b.String()
}

// formatBreakdown turns a map[string]int into "foo x2, bar x1" sorted by
// count desc, then name.
func formatBreakdown(m map[string]int) string {
	type entry struct {
		name  string
		count int
	}

	entries := make([]entry, 0, len(m))
	for name, count := range m {
		entries = append(entries, entry{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})

	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s ×%d", e.name, e.count)
	}
	return strings.Join(parts, ", ")
}
