package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/setevik/naghist/internal/event"
	"github.com/setevik/naghist/internal/metric"
)

// Tx is a write scope obtained from DB.WithTx.
type Tx struct {
	tx *sql.Tx
}

// InsertEvent stores one event.
func (t *Tx) InsertEvent(ctx context.Context, ev *event.Event) error {
	query, args, err := sq.Insert(eventsTable).
		Columns("id", "timestamp", "event_type", "host", "service", "state", "details").
		Values(ev.ID, ev.Timestamp.UTC(), string(ev.Kind), ev.Host, ev.Service, ev.State, ev.Details).
		ToSql()
	if err != nil {
		return fmt.Errorf("building event insert: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// InsertMetrics stores a batch of metrics with a single statement. An empty
// batch is a no-op.
func (t *Tx) InsertMetrics(ctx context.Context, batch []*metric.Metric) error {
	if len(batch) == 0 {
		return nil
	}

	ins := sq.Insert(metricsTable).
		Columns("id", "host", "service", "status", "last_check", "duration", "attempt", "status_info")
	for _, m := range batch {
		ins = ins.Values(m.ID, m.Host, m.Service, m.Status, m.LastCheck.UTC(), m.Duration, m.Attempt, m.StatusInfo)
	}

	query, args, err := ins.ToSql()
	if err != nil {
		return fmt.Errorf("building metrics insert: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting %d metrics: %w", len(batch), err)
	}
	return nil
}

// EventExists reports whether an event with the same timestamp, kind, host,
// service, state and details is already stored.
func (t *Tx) EventExists(ctx context.Context, ev *event.Event) (bool, error) {
	query, args, err := sq.Select("COUNT(*)").
		From(eventsTable).
		Where(sq.Eq{
			"timestamp":  ev.Timestamp.UTC(),
			"event_type": string(ev.Kind),
			"host":       ev.Host,
			"service":    ev.Service,
			"state":      ev.State,
			"details":    ev.Details,
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building duplicate check: %w", err)
	}

	var count int
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("checking duplicate event: %w", err)
	}
	return count > 0, nil
}
