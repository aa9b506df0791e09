// Package store persists events and metrics to SQLite or MySQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"

	eventsTable  = "events"
	metricsTable = "metrics"
)

// Options locate a database.
type Options struct {
	Driver   string
	Path     string // sqlite3 only
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

// DSN builds the driver-specific data source name for o.
func DSN(o Options) (string, error) {
	switch o.Driver {
	case DriverSQLite, "":
		return "file:" + o.Path + "?_journal_mode=WAL&_busy_timeout=5000", nil
	case DriverMySQL:
		cfg := mysql.NewConfig()
		cfg.User = o.User
		cfg.Passwd = o.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
		cfg.DBName = o.Name
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		return cfg.FormatDSN(), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", o.Driver)
	}
}

// DB wraps a database connection for event and metric storage.
type DB struct {
	db     *sql.DB
	driver string
}

// Open connects to the database described by o and brings the schema up to
// date. SQLite parent directories are created as needed.
func Open(ctx context.Context, o Options) (*DB, error) {
	driver := o.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	if driver == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(o.Path), 0o750); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	dsn, err := DSN(o)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One writer per run.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := migrate(ctx, db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &DB{db: db, driver: driver}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Driver returns the SQL driver name in use.
func (d *DB) Driver() string {
	return d.driver
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise, including on panic.
func (d *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			slog.Warn("rollback failed", "error", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Purge deletes events and metrics older than retention and returns the
// number of rows removed.
func (d *DB) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC()

	var total int64
	for _, del := range []sq.DeleteBuilder{
		sq.Delete(eventsTable).Where(sq.Lt{"timestamp": cutoff}),
		sq.Delete(metricsTable).Where(sq.Lt{"last_check": cutoff}),
	} {
		query, args, err := del.ToSql()
		if err != nil {
			return total, fmt.Errorf("building purge: %w", err)
		}
		res, err := d.db.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("purging old rows: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Count returns the number of stored events and metrics.
func (d *DB) Count(ctx context.Context) (events, metrics int64, err error) {
	for table, dst := range map[string]*int64{eventsTable: &events, metricsTable: &metrics} {
		query, args, err := sq.Select("COUNT(*)").From(table).ToSql()
		if err != nil {
			return 0, 0, fmt.Errorf("building count: %w", err)
		}
		if err := d.db.QueryRowContext(ctx, query, args...).Scan(dst); err != nil {
			return 0, 0, fmt.Errorf("counting %s: %w", table, err)
		}
	}
	return events, metrics, nil
}

func migrate(ctx context.Context, db *sql.DB, driver string) error {
	migrations := sqliteMigrations
	if driver == DriverMySQL {
		migrations = mysqlMigrations
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	slog.Debug("database schema up to date", "driver", driver)
	return nil
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id         TEXT PRIMARY KEY,
		timestamp  DATETIME NOT NULL,
		event_type TEXT NOT NULL,
		host       TEXT NOT NULL,
		service    TEXT NOT NULL DEFAULT '',
		state      TEXT NOT NULL,
		details    TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_ts ON events(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_events_host_ts ON events(host, timestamp)`,
	`CREATE TABLE IF NOT EXISTS metrics (
		id          TEXT PRIMARY KEY,
		host        TEXT NOT NULL,
		service     TEXT NOT NULL,
		status      VARCHAR(20) NOT NULL,
		last_check  DATETIME NOT NULL,
		duration    TEXT,
		attempt     TEXT,
		status_info TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_metrics_host_check ON metrics(host, service, last_check)`,
}

var mysqlMigrations = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id         CHAR(36) PRIMARY KEY,
		timestamp  DATETIME NOT NULL,
		event_type VARCHAR(32) NOT NULL,
		host       VARCHAR(255) NOT NULL,
		service    VARCHAR(255) NOT NULL DEFAULT '',
		state      VARCHAR(64) NOT NULL,
		details    TEXT,
		INDEX idx_events_ts (timestamp),
		INDEX idx_events_host_ts (host, timestamp)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS metrics (
		id          CHAR(36) PRIMARY KEY,
		host        VARCHAR(255) NOT NULL,
		service     VARCHAR(255) NOT NULL,
		status      VARCHAR(20) NOT NULL,
		last_check  DATETIME NOT NULL,
		duration    VARCHAR(32),
		attempt     VARCHAR(16),
		status_info TEXT,
		INDEX idx_metrics_host_check (host, service, last_check)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
