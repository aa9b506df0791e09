// Package pipeline wires the parsers to their sources and sinks: log lines to
// stored events, and check output to stored metrics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/setevik/naghist/internal/event"
	"github.com/setevik/naghist/internal/filter"
	"github.com/setevik/naghist/internal/parser"
	"github.com/setevik/naghist/internal/source"
)

// EventSink receives admitted events. store.Tx implements it.
type EventSink interface {
	InsertEvent(ctx context.Context, ev *event.Event) error
	EventExists(ctx context.Context, ev *event.Event) (bool, error)
}

// LineProblem is a matched line that could not become an event.
type LineProblem struct {
	Line int
	Text string
	Err  error
}

// IngestResult summarizes one ingestion run.
type IngestResult struct {
	RunID    string
	Source   string
	Mode     filter.Mode
	Started  time.Time
	Finished time.Time

	Lines      int
	Matched    int
	Unmatched  int
	Filtered   int
	Duplicates int
	// Written is the number of events handed to the sink. It is reset to
	// zero when the run aborts, since nothing is then considered durable.
	Written int
	// ByKind breaks Written down by event kind.
	ByKind map[event.Kind]int

	Problems []LineProblem
	// Err is the fatal error that ended the run, if any.
	Err error
}

// Degraded reports whether the run completed but skipped some lines.
func (r *IngestResult) Degraded() bool {
	return r.Err == nil && len(r.Problems) > 0
}

// Abort records a fatal error; the run's writes are treated as lost.
func (r *IngestResult) Abort(err error) {
	r.Err = err
	r.Written = 0
	r.ByKind = map[event.Kind]int{}
}

// Ingester turns a log source into stored events.
type Ingester struct {
	Parser *parser.Parser
	Filter *filter.Filter

	// ReportUnmatched logs every non-matching line as a diagnostic.
	ReportUnmatched bool

	// SkipDuplicates consults the sink before inserting and drops events
	// already stored.
	SkipDuplicates bool
}

// NewIngester creates an Ingester. Backfill runs (filter.All) report
// non-matching lines.
func NewIngester(p *parser.Parser, f *filter.Filter) *Ingester {
	return &Ingester{
		Parser:          p,
		Filter:          f,
		ReportUnmatched: f.Mode() == filter.All,
	}
}

// Run reads src line by line and writes admitted events to sink. Per-line
// problems are collected in the result; an unavailable source or a sink
// failure aborts the run and is returned.
func (in *Ingester) Run(ctx context.Context, src source.Source, sink EventSink) (*IngestResult, error) {
	res := &IngestResult{
		RunID:   uuid.NewString(),
		Source:  src.Name(),
		Mode:    in.Filter.Mode(),
		Started: time.Now(),
		ByKind:  map[event.Kind]int{},
	}
	defer func() { res.Finished = time.Now() }()

	slog.Info("ingestion started",
		"run", res.RunID,
		"source", res.Source,
		"filter", res.Mode,
		"parser", in.Parser.Mode(),
	)

	rc, err := src.Open()
	if err != nil {
		res.Abort(err)
		return res, err
	}
	defer rc.Close()

	err = source.Lines(rc, func(n int, raw string) error {
		res.Lines++
		return in.handleLine(ctx, res, sink, n, strings.TrimSpace(raw))
	})
	if err != nil {
		res.Abort(err)
		return res, err
	}

	slog.Info("ingestion finished",
		"run", res.RunID,
		"lines", res.Lines,
		"matched", res.Matched,
		"written", res.Written,
		"filtered", res.Filtered,
		"duplicates", res.Duplicates,
		"problems", len(res.Problems),
	)
	return res, nil
}

func (in *Ingester) handleLine(ctx context.Context, res *IngestResult, sink EventSink, n int, line string) error {
	ev, err := in.Parser.Parse(line)
	switch {
	case errors.Is(err, parser.ErrTimestamp):
		res.Matched++
		res.Problems = append(res.Problems, LineProblem{Line: n, Text: line, Err: err})
		slog.Warn("skipping line with bad timestamp", "line_no", n, "line", line, "error", err)
		return nil
	case err != nil:
		return fmt.Errorf("line %d: %w", n, err)
	case ev == nil:
		res.Unmatched++
		if in.ReportUnmatched {
			slog.Info("line does not match", "line_no", n, "line", line)
		}
		return nil
	}

	res.Matched++
	if !in.Filter.Admit(ev) {
		res.Filtered++
		return nil
	}

	if in.SkipDuplicates {
		dup, err := sink.EventExists(ctx, ev)
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		if dup {
			res.Duplicates++
			slog.Debug("skipping stored event", "line_no", n, "host", ev.Host, "service", ev.Service)
			return nil
		}
	}

	if err := sink.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("line %d: %w", n, err)
	}
	res.Written++
	res.ByKind[ev.Kind]++
	return nil
}
