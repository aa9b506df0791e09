package reporter

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/setevik/naghist/internal/check"
	"github.com/setevik/naghist/internal/event"
	"github.com/setevik/naghist/internal/filter"
	"github.com/setevik/naghist/internal/metric"
	"github.com/setevik/naghist/internal/pipeline"
	"github.com/setevik/naghist/internal/status"
)

func TestIngestOutcome(t *testing.T) {
	tests := []struct {
		name string
		res  *pipeline.IngestResult
		want Outcome
	}{
		{"complete", &pipeline.IngestResult{Written: 3}, OutcomeComplete},
		{"degraded", &pipeline.IngestResult{Problems: []pipeline.LineProblem{{Line: 1}}}, OutcomeDegraded},
		{"failed", &pipeline.IngestResult{Err: errors.New("boom")}, OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IngestOutcome(tt.res); got != tt.want {
				t.Errorf("IngestOutcome = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatIngest(t *testing.T) {
	res := &pipeline.IngestResult{
		Source:    "/usr/local/nagios/var/nagios.log",
		Mode:      filter.Today,
		Lines:     4,
		Matched:   3,
		Unmatched: 1,
		Filtered:  1,
		Written:   2,
		Started:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Finished:  time.Date(2026, 3, 1, 10, 0, 1, 500_000_000, time.UTC),
		Problems: []pipeline.LineProblem{
			{Line: 9, Err: errors.New("invalid timestamp \"999\"")},
		},
	}

	out := FormatIngest(res)
	for _, want := range []string{
		"(today)",
		"4 read, 3 matched, 1 unmatched",
		"1 not dated today",
		"line 9: invalid timestamp",
		"Elapsed:     1.5s",
		"Events written: 2 (degraded)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatIngestFailed(t *testing.T) {
	res := &pipeline.IngestResult{Source: "x"}
	res.Abort(errors.New("log source unavailable"))

	out := FormatIngest(res)
	if !strings.Contains(out, "Events written: 0 (FAILED)") {
		t.Errorf("output = %s", out)
	}
	if !strings.Contains(out, "log source unavailable") {
		t.Errorf("output should include the error: %s", out)
	}
}

func TestFormatCollect(t *testing.T) {
	res := &pipeline.CollectResult{
		Checks:    3,
		Collected: 2,
		Critical:  1,
		Written:   2,
		Failures: []pipeline.CheckFailure{
			{Check: check.Check{Service: "Health Status", Target: "apache-container"}, Err: check.ErrNoOutput},
		},
	}

	out := FormatCollect(res)
	for _, want := range []string{
		"3 run, 2 collected, 1 critical",
		"Health Status (apache-container): check produced no output",
		"Metrics written: 2 (degraded)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if CollectOutcome(&pipeline.CollectResult{Written: 1}) != OutcomeComplete {
		t.Error("clean run should be complete")
	}
}

func TestPrintEvents(t *testing.T) {
	var buf bytes.Buffer
	PrintEvents(&buf, []*event.Event{
		event.New(time.Now(), event.KindServiceAlert, "web01", "HTTP", "CRITICAL", "HARD", "refused"),
		event.New(time.Now(), event.KindHostAlert, "db01", "", "DOWN", "1", ""),
	})

	out := buf.String()
	if !strings.Contains(out, "web01/HTTP") || !strings.Contains(out, "refused") {
		t.Errorf("output = %s", out)
	}
	if strings.Contains(out, "db01/") {
		t.Errorf("host alert should not print an empty service: %s", out)
	}
	if !strings.Contains(out, "Total: 2 events") {
		t.Errorf("output = %s", out)
	}
}

func TestPrintMetrics(t *testing.T) {
	var buf bytes.Buffer
	PrintMetrics(&buf, []*metric.Metric{
		metric.New("docker-server", "CPU Usage", status.Parse("OK - cpu 3% | cpu=3%"), time.Now()),
	})

	out := buf.String()
	if !strings.Contains(out, "cpu 3% | cpu=3%") || !strings.Contains(out, "Total: 1 metric") {
		t.Errorf("output = %s", out)
	}
}
