// naghist turns monitoring event logs and check plugin output into
// structured history stored in SQLite or MySQL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/setevik/naghist/internal/check"
	"github.com/setevik/naghist/internal/config"
	"github.com/setevik/naghist/internal/event"
	"github.com/setevik/naghist/internal/filter"
	"github.com/setevik/naghist/internal/parser"
	"github.com/setevik/naghist/internal/pipeline"
	"github.com/setevik/naghist/internal/reporter"
	"github.com/setevik/naghist/internal/source"
	"github.com/setevik/naghist/internal/store"
	"github.com/setevik/naghist/internal/telemetry"
)

var version = "dev"

// Exit codes.
const (
	exitOK       = 0
	exitFatal    = 1
	exitDegraded = 2
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitFatal)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "ingest":
		os.Exit(runIngest(args))
	case "collect":
		os.Exit(runCollect(args))
	case "query":
		runQuery(args)
	case "digest":
		runDigest(args)
	case "version", "-version", "--version":
		fmt.Println("naghist", version)
	case "help", "-h", "-help", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(exitFatal)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: naghist <command> [flags]

commands:
  ingest    store today's HOST/SERVICE ALERT lines (-backfill for all)
  collect   run configured checks and store their results
  query     list stored events or metrics
  digest    summarize stored events
  version   print version
`)
}

// --- ingest subcommand ---

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	backfill := fs.Bool("backfill", false, "ingest every matching line, not just today's")
	logFile := fs.String("log", "", "event log to read (\"-\" for stdin; default from config)")
	lenient := fs.Bool("lenient", false, "match alert records anywhere in a line")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if *logFile != "" {
		cfg.Ingest.LogFile = *logFile
	}

	mode := parser.Strict
	if *lenient || cfg.Ingest.Lenient {
		mode = parser.Lenient
	}
	admit := filter.Today
	if *backfill {
		admit = filter.All
	}

	ctx := context.Background()
	db, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		fmt.Println("Events written: 0 (FAILED)")
		return exitFatal
	}
	defer db.Close()

	in := pipeline.NewIngester(parser.New(mode), filter.New(admit))
	in.SkipDuplicates = cfg.Ingest.SkipDuplicates
	src := source.NewFile(cfg.Ingest.LogFile)

	var res *pipeline.IngestResult
	err = db.WithTx(ctx, func(tx *store.Tx) error {
		var runErr error
		res, runErr = in.Run(ctx, src, tx)
		return runErr
	})
	if err != nil {
		if res == nil {
			res = &pipeline.IngestResult{Source: src.Name(), Mode: admit}
		}
		res.Abort(err)
		slog.Error("ingestion failed", "error", err)
	}

	if cfg.Collect.MetricsTextfile != "" {
		recordRun(cfg.Collect.MetricsTextfile, func(rec *telemetry.Recorder) { rec.ObserveIngest(res) })
	}

	fmt.Print(reporter.FormatIngest(res))
	return exitCode(reporter.IngestOutcome(res))
}

// --- collect subcommand ---

func runCollect(args []string) int {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	checks := cfg.CheckList()
	if len(checks) == 0 {
		fmt.Fprintln(os.Stderr, "no checks configured")
	}

	ctx := context.Background()
	db, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		fmt.Println("Metrics written: 0 (FAILED)")
		return exitFatal
	}
	defer db.Close()

	col := pipeline.NewCollector(check.NewExecRunner(cfg.Collect.Timeout.Duration))

	var res *pipeline.CollectResult
	err = db.WithTx(ctx, func(tx *store.Tx) error {
		var runErr error
		res, runErr = col.Run(ctx, checks, tx)
		return runErr
	})
	if err != nil {
		if res == nil {
			res = &pipeline.CollectResult{Checks: len(checks)}
		}
		res.Abort(err)
		slog.Error("collection failed", "error", err)
	}

	if cfg.Collect.MetricsTextfile != "" {
		recordRun(cfg.Collect.MetricsTextfile, func(rec *telemetry.Recorder) { rec.ObserveCollect(res) })
	}

	fmt.Print(reporter.FormatCollect(res))
	return exitCode(reporter.CollectOutcome(res))
}

// --- query subcommand ---

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	last := fs.String("last", "24h", "time window (e.g. 24h, 7d, 30d)")
	host := fs.String("host", "", "filter by host")
	kind := fs.String("kind", "", "filter events by kind (host, service)")
	state := fs.String("state", "", "filter by state / status")
	metrics := fs.Bool("metrics", false, "list check metrics instead of events")
	limit := fs.Int("limit", 50, "max rows to show")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	setupLogging("error") // quiet for CLI output

	window, err := parseDuration(*last)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --last value %q: %v\n", *last, err)
		os.Exit(exitFatal)
	}
	since := time.Now().Add(-window)

	ctx := context.Background()
	db, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(exitFatal)
	}
	defer db.Close()

	if *metrics {
		rows, err := db.QueryMetrics(ctx, store.MetricFilter{
			Since:  since,
			Host:   *host,
			Status: *state,
			Limit:  *limit,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "query error: %v\n", err)
			os.Exit(exitFatal)
		}
		if len(rows) == 0 {
			fmt.Println("No metrics found.")
			return
		}
		reporter.PrintMetrics(os.Stdout, rows)
		return
	}

	k, err := parseKind(*kind)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFatal)
	}

	events, err := db.QueryEvents(ctx, store.EventFilter{
		Since: since,
		Host:  *host,
		Kind:  k,
		State: *state,
		Limit: *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "query error: %v\n", err)
		os.Exit(exitFatal)
	}
	if len(events) == 0 {
		fmt.Println("No events found.")
		return
	}
	reporter.PrintEvents(os.Stdout, events)
}

// --- digest subcommand ---

func runDigest(args []string) {
	fs := flag.NewFlagSet("digest", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	last := fs.String("last", "7d", "time window for digest")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	setupLogging("error")

	window, err := parseDuration(*last)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --last value: %v\n", err)
		os.Exit(exitFatal)
	}

	ctx := context.Background()
	db, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(exitFatal)
	}
	defer db.Close()

	until := time.Now()
	since := until.Add(-window)

	events, err := db.QueryEvents(ctx, store.EventFilter{Since: since, Until: until})
	if err != nil {
		fmt.Fprintf(os.Stderr, "query error: %v\n", err)
		os.Exit(exitFatal)
	}

	fmt.Print(reporter.FormatDigest(reporter.BuildDigest(events, since, until)))
}

// --- utilities ---

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(exitFatal)
	}
	setupLogging(cfg.Log.Level)
	return cfg
}

// openStore connects to the configured database and applies retention.
func openStore(ctx context.Context, cfg *config.Config) (*store.DB, error) {
	dbc := cfg.Database
	db, err := store.Open(ctx, store.Options{
		Driver:   dbc.Driver,
		Path:     dbc.Path,
		Host:     dbc.Host,
		Port:     dbc.Port,
		User:     dbc.User,
		Password: dbc.Password,
		Name:     dbc.Name,
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("database opened", "driver", db.Driver())

	if dbc.Retention.Duration > 0 {
		purged, err := db.Purge(ctx, dbc.Retention.Duration)
		if err != nil {
			slog.Warn("failed to purge old rows", "error", err)
		} else if purged > 0 {
			slog.Info("purged old rows", "count", purged, "retention", dbc.Retention.Duration)
		}
	}
	return db, nil
}

// recordRun merges one run into the shared metrics textfile.
func recordRun(path string, observe func(rec *telemetry.Recorder)) {
	rec := telemetry.NewRecorder()
	if err := rec.Restore(path); err != nil {
		slog.Warn("discarding unreadable metrics textfile", "path", path, "error", err)
		rec = telemetry.NewRecorder()
	}
	observe(rec)
	if err := rec.WriteTextfile(path); err != nil {
		slog.Warn("failed to write metrics textfile", "path", path, "error", err)
	}
}

func exitCode(o reporter.Outcome) int {
	switch o {
	case reporter.OutcomeFailed:
		return exitFatal
	case reporter.OutcomeDegraded:
		return exitDegraded
	default:
		return exitOK
	}
}

// parseKind accepts "host", "service" or the literal log marker.
func parseKind(s string) (event.Kind, error) {
	switch strings.ToLower(s) {
	case "":
		return "", nil
	case "host", "host alert":
		return event.KindHostAlert, nil
	case "service", "service alert":
		return event.KindServiceAlert, nil
	}
	return "", errors.New("invalid --kind: want host or service")
}

// parseDuration extends time.ParseDuration with support for "d" (days) suffix.
func parseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		s = strings.TrimSuffix(s, "d")
		var days int
		if _, err := fmt.Sscanf(s, "%d", &days); err != nil {
			return 0, fmt.Errorf("invalid days format: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
