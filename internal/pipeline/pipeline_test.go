package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/setevik/naghist/internal/check"
	"github.com/setevik/naghist/internal/event"
	"github.com/setevik/naghist/internal/filter"
	"github.com/setevik/naghist/internal/metric"
	"github.com/setevik/naghist/internal/parser"
	"github.com/setevik/naghist/internal/source"
	"github.com/setevik/naghist/internal/store"
)

// memSink records events and metrics in memory.
type memSink struct {
	events  []*event.Event
	batches [][]*metric.Metric
	failOn  int // fail the n-th insert (1-based), 0 = never
	inserts int
}

func (s *memSink) InsertEvent(_ context.Context, ev *event.Event) error {
	s.inserts++
	if s.failOn > 0 && s.inserts == s.failOn {
		return errors.New("store unavailable")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *memSink) EventExists(_ context.Context, ev *event.Event) (bool, error) {
	for _, e := range s.events {
		if e.Timestamp.Equal(ev.Timestamp) && e.Host == ev.Host && e.Service == ev.Service &&
			e.State == ev.State && e.Details == ev.Details && e.Kind == ev.Kind {
			return true, nil
		}
	}
	return false, nil
}

func (s *memSink) InsertMetrics(_ context.Context, batch []*metric.Metric) error {
	s.inserts++
	if s.failOn > 0 && s.inserts == s.failOn {
		return errors.New("store unavailable")
	}
	s.batches = append(s.batches, batch)
	return nil
}

var fixedNow = time.Date(2026, 10, 19, 15, 0, 0, 0, time.Local)

func alertLine(ts time.Time, kind, rest string) string {
	return fmt.Sprintf("[%d] %s: %s", ts.Unix(), kind, rest)
}

func todayIngester(mode filter.Mode) *Ingester {
	f := filter.New(mode).WithClock(func() time.Time { return fixedNow })
	return NewIngester(parser.New(parser.Strict), f)
}

func sampleLog() string {
	today := fixedNow.Add(-2 * time.Hour)
	yesterday := fixedNow.Add(-26 * time.Hour)
	return strings.Join([]string{
		alertLine(today, "SERVICE ALERT", "web01;HTTP;CRITICAL;HARD;3;Connection refused"),
		"[1708300000] Nagios 4.4.6 starting... (PID=1234)",
		alertLine(yesterday, "HOST ALERT", "db01;DOWN;HARD;3;PING CRITICAL"),
		alertLine(today.Add(time.Minute), "HOST ALERT", "db01;;UP;1/1;PING OK"),
	}, "\n")
}

func TestIngestToday(t *testing.T) {
	sink := &memSink{}
	res, err := todayIngester(filter.Today).Run(context.Background(), source.NewString("test", sampleLog()), sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Written != 2 || len(sink.events) != 2 {
		t.Errorf("Written = %d, stored %d, want 2", res.Written, len(sink.events))
	}
	if res.Lines != 4 {
		t.Errorf("Lines = %d, want 4", res.Lines)
	}
	if res.Matched != 3 {
		t.Errorf("Matched = %d, want 3", res.Matched)
	}
	if res.Unmatched != 1 {
		t.Errorf("Unmatched = %d, want 1", res.Unmatched)
	}
	if res.Filtered != 1 {
		t.Errorf("Filtered = %d, want 1", res.Filtered)
	}
	if res.ByKind[event.KindServiceAlert] != 1 || res.ByKind[event.KindHostAlert] != 1 {
		t.Errorf("ByKind = %v", res.ByKind)
	}
	if res.Degraded() {
		t.Error("run should not be degraded")
	}
	if res.RunID == "" || res.Finished.Before(res.Started) {
		t.Errorf("bad run bookkeeping: %+v", res)
	}

	if sink.events[0].Host != "web01" || sink.events[0].Details != "3;Connection refused" {
		t.Errorf("first event = %+v", sink.events[0])
	}
	if sink.events[1].Service != "" || sink.events[1].Kind != event.KindHostAlert {
		t.Errorf("second event = %+v", sink.events[1])
	}
}

func TestIngestBackfill(t *testing.T) {
	sink := &memSink{}
	in := todayIngester(filter.All)
	if !in.ReportUnmatched {
		t.Error("backfill should report unmatched lines")
	}

	res, err := in.Run(context.Background(), source.NewString("test", sampleLog()), sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Written != 3 {
		t.Errorf("Written = %d, want 3", res.Written)
	}
	if res.Filtered != 0 {
		t.Errorf("Filtered = %d, want 0", res.Filtered)
	}
}

func TestIngestBadTimestamp(t *testing.T) {
	log := strings.Join([]string{
		"[99999999999999] SERVICE ALERT: h;s;OK;1/1;far future",
		alertLine(fixedNow, "SERVICE ALERT", "h;s;OK;1/1;fine"),
	}, "\n")

	sink := &memSink{}
	res, err := todayIngester(filter.All).Run(context.Background(), source.NewString("test", log), sink)
	if err != nil {
		t.Fatalf("bad timestamp must not abort the run: %v", err)
	}
	if res.Written != 1 {
		t.Errorf("Written = %d, want 1", res.Written)
	}
	if len(res.Problems) != 1 || res.Problems[0].Line != 1 {
		t.Fatalf("Problems = %+v", res.Problems)
	}
	if !errors.Is(res.Problems[0].Err, parser.ErrTimestamp) {
		t.Errorf("problem err = %v", res.Problems[0].Err)
	}
	if !res.Degraded() {
		t.Error("run with skipped lines should be degraded")
	}
}

func TestIngestBadTimestampLogsLine(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	bad := "[99999999999999] SERVICE ALERT: h;s;OK;1/1;far future"
	if _, err := todayIngester(filter.All).Run(context.Background(), source.NewString("test", bad), &memSink{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"skipping line with bad timestamp",
		"line_no=1",
		`line="[99999999999999] SERVICE ALERT: h;s;OK;1/1;far future"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestIngestSourceUnavailable(t *testing.T) {
	sink := &memSink{}
	res, err := todayIngester(filter.Today).Run(context.Background(), source.NewFile("/nonexistent/nagios.log"), sink)
	if !errors.Is(err, source.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if res.Written != 0 || res.Err == nil {
		t.Errorf("result = %+v", res)
	}
	if len(sink.events) != 0 {
		t.Error("nothing should be written")
	}
}

func TestIngestSinkFailureAborts(t *testing.T) {
	sink := &memSink{failOn: 2}
	res, err := todayIngester(filter.All).Run(context.Background(), source.NewString("test", sampleLog()), sink)
	if err == nil {
		t.Fatal("expected sink failure")
	}
	if res.Written != 0 {
		t.Errorf("Written = %d after abort, want 0", res.Written)
	}
	if sink.inserts != 2 {
		t.Errorf("inserts = %d, processing should stop at the failure", sink.inserts)
	}
	if res.Degraded() {
		t.Error("aborted run is fatal, not degraded")
	}
}

func TestIngestSkipDuplicates(t *testing.T) {
	sink := &memSink{}
	in := todayIngester(filter.Today)
	src := source.NewString("test", sampleLog())

	if _, err := in.Run(context.Background(), src, sink); err != nil {
		t.Fatal(err)
	}

	// Without dedup a second run duplicates today's events.
	res, err := in.Run(context.Background(), src, sink)
	if err != nil {
		t.Fatal(err)
	}
	if res.Written != 2 || len(sink.events) != 4 {
		t.Errorf("Written = %d, stored = %d; want 2, 4", res.Written, len(sink.events))
	}

	in.SkipDuplicates = true
	res, err = in.Run(context.Background(), src, sink)
	if err != nil {
		t.Fatal(err)
	}
	if res.Written != 0 || res.Duplicates != 2 {
		t.Errorf("Written = %d, Duplicates = %d; want 0, 2", res.Written, res.Duplicates)
	}
}

func TestIngestIntoStore(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, store.Options{Path: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	in := todayIngester(filter.Today)
	in.SkipDuplicates = true

	for i := 0; i < 2; i++ {
		var res *IngestResult
		err := db.WithTx(ctx, func(tx *store.Tx) error {
			var runErr error
			res, runErr = in.Run(ctx, source.NewString("test", sampleLog()), tx)
			return runErr
		})
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if i == 1 && res.Duplicates != 2 {
			t.Errorf("second run Duplicates = %d, want 2", res.Duplicates)
		}
	}

	events, _, err := db.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if events != 2 {
		t.Errorf("stored events = %d, want 2", events)
	}
}

// fakeRunner returns canned output per script.
type fakeRunner struct {
	outputs map[string]check.Output
	errs    map[string]error
	calls   []check.Check
}

func (r *fakeRunner) Run(_ context.Context, c check.Check) (check.Output, error) {
	r.calls = append(r.calls, c)
	if err, ok := r.errs[c.Script]; ok {
		return check.Output{}, err
	}
	return r.outputs[c.Script], nil
}

func sampleChecks() []check.Check {
	return []check.Check{
		{Host: "docker-server", Target: "mysql-container", Script: "status", Service: "Status"},
		{Host: "docker-server", Target: "mysql-container", Script: "cpu", Service: "CPU Usage"},
		{Host: "docker-server", Target: "apache-container", Script: "empty", Service: "Health Status"},
		{Host: "docker-server", Target: "apache-container", Script: "broken", Service: "Block I/O"},
		{Host: "docker-server", Target: "host", Script: "net", Service: "Network Usage (Host)"},
	}
}

func sampleRunner() *fakeRunner {
	return &fakeRunner{
		outputs: map[string]check.Output{
			"status": {Stdout: "CRITICAL - container exited", ExitCode: 2},
			"cpu":    {Stdout: "OK - cpu 3% | cpu=3%"},
			"empty":  {Stdout: "   \n", ExitCode: 3},
			"net":    {Stdout: "WARNING: rx 900Mb/s | rx=900"},
		},
		errs: map[string]error{
			"broken": errors.New("exec: permission denied"),
		},
	}
}

func TestCollect(t *testing.T) {
	runner := sampleRunner()
	c := NewCollector(runner)
	c.Now = func() time.Time { return fixedNow }
	sink := &memSink{}

	res, err := c.Run(context.Background(), sampleChecks(), sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(runner.calls) != 5 {
		t.Errorf("runner calls = %d, want 5", len(runner.calls))
	}
	for i, call := range runner.calls {
		if call != sampleChecks()[i] {
			t.Errorf("call %d = %+v, checks must run in configuration order", i, call)
		}
	}

	if res.Checks != 5 || res.Collected != 3 || res.Written != 3 {
		t.Errorf("result = %+v", res)
	}
	if res.Critical != 1 {
		t.Errorf("Critical = %d, want 1", res.Critical)
	}
	if len(res.Failures) != 2 {
		t.Fatalf("Failures = %d, want 2", len(res.Failures))
	}
	if !errors.Is(res.Failures[0].Err, check.ErrNoOutput) {
		t.Errorf("first failure = %v, want ErrNoOutput", res.Failures[0].Err)
	}
	if !res.Degraded() {
		t.Error("run with failed checks should be degraded")
	}

	if len(sink.batches) != 1 {
		t.Fatalf("batches = %d, want exactly 1", len(sink.batches))
	}
	batch := sink.batches[0]
	if batch[0].Status != "CRITICAL" || batch[0].Attempt != "3/3" {
		t.Errorf("status metric = %+v", batch[0])
	}
	if batch[1].StatusInfo != "cpu 3% | cpu=3%" {
		t.Errorf("cpu StatusInfo = %q", batch[1].StatusInfo)
	}
	if batch[2].Service != "Network Usage (Host)" || batch[2].Status != "WARNING" {
		t.Errorf("net metric = %+v", batch[2])
	}
	for _, m := range batch {
		if !m.LastCheck.Equal(fixedNow) {
			t.Errorf("LastCheck = %v", m.LastCheck)
		}
	}
}

func TestCollectNothing(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]check.Output{"empty": {}}}
	sink := &memSink{}

	res, err := NewCollector(runner).Run(context.Background(), []check.Check{{Script: "empty", Service: "x"}}, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Written != 0 || len(sink.batches) != 0 {
		t.Errorf("empty run should not insert: %+v", res)
	}
}

func TestCollectBatchFailure(t *testing.T) {
	sink := &memSink{failOn: 1}

	res, err := NewCollector(sampleRunner()).Run(context.Background(), sampleChecks(), sink)
	if err == nil {
		t.Fatal("expected batch failure")
	}
	if res.Written != 0 || res.Collected != 3 {
		t.Errorf("result = %+v", res)
	}
	if res.Degraded() {
		t.Error("failed batch is fatal, not degraded")
	}
}

func TestCollectIntoStore(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, store.Options{Path: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	err = db.WithTx(ctx, func(tx *store.Tx) error {
		_, err := NewCollector(sampleRunner()).Run(ctx, sampleChecks(), tx)
		return err
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	metrics, err := db.QueryMetrics(ctx, store.MetricFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 3 {
		t.Errorf("stored metrics = %d, want 3", len(metrics))
	}
}
