// Package telemetry exposes run outcomes as Prometheus metrics written to a
// node_exporter textfile.
package telemetry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/setevik/naghist/internal/pipeline"
)

// Recorder collects run outcomes into its own registry.
type Recorder struct {
	registry *prometheus.Registry

	lines         *prometheus.CounterVec
	events        *prometheus.CounterVec
	checks        *prometheus.CounterVec
	metricsStored prometheus.Counter
	lastRun       *prometheus.GaugeVec
	lastDuration  *prometheus.GaugeVec
	lastSuccess   *prometheus.GaugeVec

	// by fully qualified name, for Restore
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
}

// NewRecorder creates a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "naghist",
			Name:      "log_lines_total",
			Help:      "Log lines read, by outcome.",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "naghist",
			Name:      "events_written_total",
			Help:      "Alert events written to the store, by kind.",
		}, []string{"kind"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "naghist",
			Name:      "checks_total",
			Help:      "Checks invoked, by outcome.",
		}, []string{"outcome"}),
		metricsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "naghist",
			Name:      "metrics_written_total",
			Help:      "Check metrics written to the store.",
		}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "naghist",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished, by pipeline.",
		}, []string{"pipeline"}),
		lastDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "naghist",
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run, by pipeline.",
		}, []string{"pipeline"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "naghist",
			Name:      "last_run_success",
			Help:      "1 if the last run completed without a fatal error.",
		}, []string{"pipeline"}),
	}

	r.counters = map[string]*prometheus.CounterVec{
		"naghist_log_lines_total":      r.lines,
		"naghist_events_written_total": r.events,
		"naghist_checks_total":         r.checks,
	}
	r.gauges = map[string]*prometheus.GaugeVec{
		"naghist_last_run_timestamp_seconds": r.lastRun,
		"naghist_last_run_duration_seconds":  r.lastDuration,
		"naghist_last_run_success":           r.lastSuccess,
	}

	r.registry.MustRegister(
		r.lines,
		r.events,
		r.checks,
		r.metricsStored,
		r.lastRun,
		r.lastDuration,
		r.lastSuccess,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveIngest records an ingestion result.
func (r *Recorder) ObserveIngest(res *pipeline.IngestResult) {
	r.lines.WithLabelValues("unmatched").Add(float64(res.Unmatched))
	r.lines.WithLabelValues("filtered").Add(float64(res.Filtered))
	r.lines.WithLabelValues("duplicate").Add(float64(res.Duplicates))
	r.lines.WithLabelValues("bad_timestamp").Add(float64(len(res.Problems)))
	r.lines.WithLabelValues("written").Add(float64(res.Written))
	for kind, n := range res.ByKind {
		r.events.WithLabelValues(string(kind)).Add(float64(n))
	}
	r.observeRun("ingest", res.Started, res.Finished, res.Err == nil)
}

// ObserveCollect records a collection result.
func (r *Recorder) ObserveCollect(res *pipeline.CollectResult) {
	r.checks.WithLabelValues("collected").Add(float64(res.Collected))
	r.checks.WithLabelValues("failed").Add(float64(len(res.Failures)))
	r.checks.WithLabelValues("critical").Add(float64(res.Critical))
	r.metricsStored.Add(float64(res.Written))
	r.observeRun("collect", res.Started, res.Finished, res.Err == nil)
}

func (r *Recorder) observeRun(name string, started, finished time.Time, ok bool) {
	r.lastRun.WithLabelValues(name).Set(float64(finished.Unix()))
	r.lastDuration.WithLabelValues(name).Set(finished.Sub(started).Seconds())
	success := 0.0
	if ok {
		success = 1
	}
	r.lastSuccess.WithLabelValues(name).Set(success)
}

// Restore seeds the recorder from a textfile written by an earlier run, so
// counters keep accumulating and series of the other pipeline survive the
// next WriteTextfile. A missing file is not an error. Unknown families and
// series with unexpected labels are dropped.
func (r *Recorder) Restore(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening metrics textfile: %w", err)
	}
	defer f.Close()

	var parser expfmt.TextParser // zero value validates names per model.NameValidationScheme (UTF8Validation)
	families, err := parser.TextToMetricFamilies(f)
	if err != nil {
		return fmt.Errorf("parsing metrics textfile: %w", err)
	}

	for name, mf := range families {
		for _, m := range mf.GetMetric() {
			r.seed(name, m)
		}
	}
	return nil
}

func (r *Recorder) seed(name string, m *dto.Metric) {
	labels := prometheus.Labels{}
	for _, lp := range m.GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}

	if name == "naghist_metrics_written_total" {
		if v := m.GetCounter().GetValue(); v > 0 && len(labels) == 0 {
			r.metricsStored.Add(v)
		}
		return
	}
	if vec, ok := r.counters[name]; ok {
		c, err := vec.GetMetricWith(labels)
		if v := m.GetCounter().GetValue(); err == nil && v > 0 {
			c.Add(v)
		}
		return
	}
	if vec, ok := r.gauges[name]; ok {
		if g, err := vec.GetMetricWith(labels); err == nil {
			g.Set(m.GetGauge().GetValue())
		}
	}
}

// WriteTextfile writes the registry to path in the Prometheus text format.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
