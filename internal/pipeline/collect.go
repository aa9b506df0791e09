package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/setevik/naghist/internal/check"
	"github.com/setevik/naghist/internal/metric"
	"github.com/setevik/naghist/internal/status"
)

// MetricSink receives the collected batch. store.Tx implements it.
type MetricSink interface {
	InsertMetrics(ctx context.Context, batch []*metric.Metric) error
}

// CheckFailure is a check that produced no metric.
type CheckFailure struct {
	Check check.Check
	Err   error
}

// CollectResult summarizes one metric collection run.
type CollectResult struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	Checks    int
	Collected int
	Critical  int
	// Written is the number of metrics in the stored batch; zero when the
	// batch insert failed.
	Written int

	Failures []CheckFailure
	Err      error
}

// Degraded reports whether the run completed but some checks failed.
func (r *CollectResult) Degraded() bool {
	return r.Err == nil && len(r.Failures) > 0
}

// Abort records a fatal error; none of the batch is considered stored.
func (r *CollectResult) Abort(err error) {
	r.Err = err
	r.Written = 0
}

// Collector runs checks in order and stores their normalized results.
type Collector struct {
	Runner check.Runner
	// Now supplies the last-check time of each metric.
	Now func() time.Time
}

// NewCollector creates a Collector using the wall clock.
func NewCollector(r check.Runner) *Collector {
	return &Collector{Runner: r, Now: time.Now}
}

// Run invokes each check one at a time, builds a metric from every non-empty
// stdout and hands the whole batch to sink once.
func (c *Collector) Run(ctx context.Context, checks []check.Check, sink MetricSink) (*CollectResult, error) {
	res := &CollectResult{
		RunID:   uuid.NewString(),
		Started: time.Now(),
		Checks:  len(checks),
	}
	defer func() { res.Finished = time.Now() }()

	slog.Info("collection started", "run", res.RunID, "checks", len(checks))

	var batch []*metric.Metric
	for _, chk := range checks {
		m, err := c.collect(ctx, chk)
		if err != nil {
			res.Failures = append(res.Failures, CheckFailure{Check: chk, Err: err})
			slog.Warn("check failed",
				"host", chk.Host,
				"service", chk.Service,
				"script", chk.Script,
				"target", chk.Target,
				"error", err,
			)
			continue
		}
		if m.Critical() {
			res.Critical++
		}
		batch = append(batch, m)
	}
	res.Collected = len(batch)

	if len(batch) == 0 {
		slog.Warn("no metrics collected", "run", res.RunID)
		return res, nil
	}

	if err := sink.InsertMetrics(ctx, batch); err != nil {
		err = fmt.Errorf("storing %d metrics: %w", len(batch), err)
		res.Abort(err)
		return res, err
	}
	res.Written = len(batch)

	slog.Info("collection finished",
		"run", res.RunID,
		"collected", res.Collected,
		"failed", len(res.Failures),
	)
	return res, nil
}

func (c *Collector) collect(ctx context.Context, chk check.Check) (*metric.Metric, error) {
	lastCheck := c.Now()

	out, err := c.Runner.Run(ctx, chk)
	if err != nil {
		return nil, err
	}
	if out.Stderr != "" {
		slog.Debug("check stderr", "service", chk.Service, "stderr", out.Stderr)
	}
	stdout := strings.TrimSpace(out.Stdout)
	if stdout == "" {
		return nil, fmt.Errorf("%s: %w (exit %d)", chk, check.ErrNoOutput, out.ExitCode)
	}

	res := status.Parse(stdout)
	slog.Debug("check output parsed",
		"service", chk.Service,
		"target", chk.Target,
		"rule", res.Rule,
		"status", res.Status,
	)
	return metric.New(chk.Host, chk.Service, res, lastCheck), nil
}
