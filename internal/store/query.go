package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/setevik/naghist/internal/event"
	"github.com/setevik/naghist/internal/metric"
)

// EventFilter controls which events are returned by QueryEvents.
type EventFilter struct {
	Since time.Time
	Until time.Time
	Host  string
	Kind  event.Kind
	State string
	Limit int
}

// QueryEvents returns events matching the filter, newest first.
func (d *DB) QueryEvents(ctx context.Context, f EventFilter) ([]*event.Event, error) {
	sel := sq.Select("id", "timestamp", "event_type", "host", "service", "state", "details").
		From(eventsTable)

	if !f.Since.IsZero() {
		sel = sel.Where(sq.GtOrEq{"timestamp": f.Since.UTC()})
	}
	if !f.Until.IsZero() {
		sel = sel.Where(sq.LtOrEq{"timestamp": f.Until.UTC()})
	}
	if f.Host != "" {
		sel = sel.Where(sq.Eq{"host": f.Host})
	}
	if f.Kind != "" {
		sel = sel.Where(sq.Eq{"event_type": string(f.Kind)})
	}
	if f.State != "" {
		sel = sel.Where(sq.Eq{"state": f.State})
	}

	sel = sel.OrderBy("timestamp DESC")
	if f.Limit > 0 {
		sel = sel.Limit(uint64(f.Limit))
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building event query: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*event.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MetricFilter controls which metrics are returned by QueryMetrics.
type MetricFilter struct {
	Since   time.Time
	Host    string
	Service string
	Status  string
	Limit   int
}

// QueryMetrics returns metrics matching the filter, newest first.
func (d *DB) QueryMetrics(ctx context.Context, f MetricFilter) ([]*metric.Metric, error) {
	sel := sq.Select("id", "host", "service", "status", "last_check", "duration", "attempt", "status_info").
		From(metricsTable)

	if !f.Since.IsZero() {
		sel = sel.Where(sq.GtOrEq{"last_check": f.Since.UTC()})
	}
	if f.Host != "" {
		sel = sel.Where(sq.Eq{"host": f.Host})
	}
	if f.Service != "" {
		sel = sel.Where(sq.Eq{"service": f.Service})
	}
	if f.Status != "" {
		sel = sel.Where(sq.Eq{"status": f.Status})
	}

	sel = sel.OrderBy("last_check DESC")
	if f.Limit > 0 {
		sel = sel.Limit(uint64(f.Limit))
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building metric query: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*metric.Metric
	for rows.Next() {
		var m metric.Metric
		var duration, attempt, info sql.NullString
		if err := rows.Scan(&m.ID, &m.Host, &m.Service, &m.Status, &m.LastCheck, &duration, &attempt, &info); err != nil {
			return nil, fmt.Errorf("scanning metric row: %w", err)
		}
		m.Duration = duration.String
		m.Attempt = attempt.String
		m.StatusInfo = info.String
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}

func scanEvent(rows *sql.Rows) (*event.Event, error) {
	var ev event.Event
	var kind string
	var details sql.NullString

	err := rows.Scan(
		&ev.ID,
		&ev.Timestamp,
		&kind,
		&ev.Host,
		&ev.Service,
		&ev.State,
		&details,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning event row: %w", err)
	}

	ev.Kind = event.Kind(kind)
	ev.Details = details.String
	return &ev, nil
}
