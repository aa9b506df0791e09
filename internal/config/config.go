// Package config handles TOML configuration loading with sensible defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/setevik/naghist/internal/check"
)

// Config is the top-level configuration for naghist.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Database DatabaseConfig `toml:"database"`
	Ingest   IngestConfig   `toml:"ingest"`
	Collect  CollectConfig  `toml:"collect"`
	Checks   []CheckConfig  `toml:"check"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// DatabaseConfig locates the history database.
type DatabaseConfig struct {
	Driver    string   `toml:"driver"`
	Path      string   `toml:"path"`
	Host      string   `toml:"host"`
	Port      int      `toml:"port"`
	User      string   `toml:"user"`
	Password  string   `toml:"password"`
	Name      string   `toml:"name"`
	Retention Duration `toml:"retention"`
}

// IngestConfig controls event log ingestion.
type IngestConfig struct {
	LogFile        string `toml:"log_file"`
	Lenient        bool   `toml:"lenient"`
	SkipDuplicates bool   `toml:"skip_duplicates"`
}

// CollectConfig controls check execution.
type CollectConfig struct {
	Timeout         Duration `toml:"timeout"`
	MetricsTextfile string   `toml:"metrics_textfile"`
}

// CheckConfig is one check to run. Container "host" (or empty) runs the
// script without an argument.
type CheckConfig struct {
	Host      string `toml:"host"`
	Container string `toml:"container"`
	Script    string `toml:"script"`
	Service   string `toml:"service"`
}

// Duration wraps time.Duration for TOML string parsing (e.g. "5m", "1h").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			Path:   filepath.Join(dataHome(), "naghist", "history.db"),
			Port:   3306,
			Name:   "nagios_history",
		},
		Ingest: IngestConfig{
			LogFile: "/usr/local/nagios/var/nagios.log",
		},
		Collect: CollectConfig{
			Timeout: Duration{30 * time.Second},
		},
	}
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "naghist", "config.toml")
}

// Load reads configuration from the given path, falling back to defaults
// for any unset fields. If the file does not exist, returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite3"))
		}
	case "mysql":
		if c.Database.Host == "" {
			errs = append(errs, errors.New("database.host is required for mysql"))
		}
		if c.Database.Name == "" {
			errs = append(errs, errors.New("database.name is required for mysql"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not one of sqlite3, mysql", c.Database.Driver))
	}

	if c.Collect.Timeout.Duration < 0 {
		errs = append(errs, errors.New("collect.timeout must not be negative"))
	}

	for i, chk := range c.Checks {
		if chk.Script == "" {
			errs = append(errs, fmt.Errorf("check[%d]: script is required", i))
		}
		if chk.Service == "" {
			errs = append(errs, fmt.Errorf("check[%d]: service is required", i))
		}
		if chk.Host == "" {
			errs = append(errs, fmt.Errorf("check[%d]: host is required", i))
		}
	}

	return errors.Join(errs...)
}

func dataHome() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

// CheckList converts the configured checks, in order.
func (c *Config) CheckList() []check.Check {
	checks := make([]check.Check, 0, len(c.Checks))
	for _, cc := range c.Checks {
		checks = append(checks, check.Check{
			Host:    cc.Host,
			Target:  cc.Container,
			Script:  cc.Script,
			Service: cc.Service,
		})
	}
	return checks
}
