// Package reporter renders run results and stored history for the terminal.
package reporter

import (
	"fmt"
	"io"
	"strings"

	"github.com/setevik/naghist/internal/event"
	"github.com/setevik/naghist/internal/format"
	"github.com/setevik/naghist/internal/metric"
	"github.com/setevik/naghist/internal/pipeline"
)

// Outcome classifies how a run ended.
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomeDegraded Outcome = "degraded"
	OutcomeFailed   Outcome = "FAILED"
)

// IngestOutcome classifies an ingestion result.
func IngestOutcome(res *pipeline.IngestResult) Outcome {
	switch {
	case res.Err != nil:
		return OutcomeFailed
	case res.Degraded():
		return OutcomeDegraded
	default:
		return OutcomeComplete
	}
}

// CollectOutcome classifies a collection result.
func CollectOutcome(res *pipeline.CollectResult) Outcome {
	switch {
	case res.Err != nil:
		return OutcomeFailed
	case res.Degraded():
		return OutcomeDegraded
	default:
		return OutcomeComplete
	}
}

// FormatIngest summarizes an ingestion run.
func FormatIngest(res *pipeline.IngestResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Source:      %s (%s)\n", res.Source, res.Mode)
	fmt.Fprintf(&b, "Lines:       %d read, %d matched, %d unmatched\n", res.Lines, res.Matched, res.Unmatched)
	if res.Filtered > 0 {
		fmt.Fprintf(&b, "Filtered:    %d not dated today\n", res.Filtered)
	}
	if res.Duplicates > 0 {
		fmt.Fprintf(&b, "Duplicates:  %d already stored\n", res.Duplicates)
	}
	for _, p := range res.Problems {
		fmt.Fprintf(&b, "Skipped:     line %d: %v\n", p.Line, p.Err)
	}
	if res.Err != nil {
		fmt.Fprintf(&b, "Error:       %v\n", res.Err)
	}
	if res.Finished.After(res.Started) {
		fmt.Fprintf(&b, "Elapsed:     %s\n", format.Elapsed(res.Finished.Sub(res.Started)))
	}
	fmt.Fprintf(&b, "Events written: %d (%s)\n", res.Written, IngestOutcome(res))

	return b.String()
}

// FormatCollect summarizes a collection run.
func FormatCollect(res *pipeline.CollectResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Checks:      %d run, %d collected, %d critical\n", res.Checks, res.Collected, res.Critical)
	for _, f := range res.Failures {
		fmt.Fprintf(&b, "Warning:     %s (%s): %v\n", f.Check.Service, f.Check.Target, f.Err)
	}
	if res.Err != nil {
		fmt.Fprintf(&b, "Error:       %v\n", res.Err)
	}
	if res.Finished.After(res.Started) {
		fmt.Fprintf(&b, "Elapsed:     %s\n", format.Elapsed(res.Finished.Sub(res.Started)))
	}
	fmt.Fprintf(&b, "Metrics written: %d (%s)\n", res.Written, CollectOutcome(res))

	return b.String()
}

// PrintEvents writes one block per event.
func PrintEvents(w io.Writer, events []*event.Event) {
	for _, ev := range events {
		ts := ev.Timestamp.Local().Format("2006-01-02 15:04:05")
		target := ev.Host
		if ev.Service != "" {
			target += "/" + ev.Service
		}
		fmt.Fprintf(w, "%s  %-7s %-10s %s\n", ts, ev.Kind.Label(), ev.State, target)
		if ev.Details != "" {
			fmt.Fprintf(w, "                     %s\n", ev.Details)
		}
	}
	fmt.Fprintf(w, "Total: %s\n", format.Count(len(events), "event"))
}

// PrintMetrics writes one line per metric.
func PrintMetrics(w io.Writer, metrics []*metric.Metric) {
	for _, m := range metrics {
		ts := m.LastCheck.Local().Format("2006-01-02 15:04:05")
		fmt.Fprintf(w, "%s  %-20s %-24s %-8s %s\n", ts, m.Host, m.Service, m.Status, m.StatusInfo)
	}
	fmt.Fprintf(w, "Total: %s\n", format.Count(len(metrics), "metric"))
}
