package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values. Secrets such as the
// Postgres DSN are usually supplied this way (often from a .env file).
const (
	EnvConfigPath  = "EVENTSCHED_CONFIG"
	EnvLogLevel    = "EVENTSCHED_LOG_LEVEL"
	EnvListen      = "EVENTSCHED_LISTEN"
	EnvPostgresDSN = "EVENTSCHED_POSTGRES_DSN"

	DefaultPath = "eventsched.yaml"
)

// Storage drivers.
const (
	DriverCSV      = "csv"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StorageConfig selects where the catalog is persisted.
type StorageConfig struct {
	// Driver is one of "csv" (default), "sqlite" or "postgres".
	Driver string `yaml:"driver" toml:"driver" json:"driver"`
	// DataDir holds events.csv and recurrent.csv for the csv driver.
	DataDir     string `yaml:"data_dir" toml:"data_dir" json:"data_dir"`
	SQLitePath  string `yaml:"sqlite_path" toml:"sqlite_path" json:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn" toml:"postgres_dsn" json:"-"`
}

type RecurrenceConfig struct {
	// MaxOccurrences caps how many events one recurrence may create.
	MaxOccurrences int `yaml:"max_occurrences" toml:"max_occurrences" json:"max_occurrences"`
}

// RemindersConfig drives the periodic upcoming-event sweep.
type RemindersConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled" json:"enabled"`
	// Cron is a standard 5-field schedule, e.g. "* * * * *".
	Cron          string `yaml:"cron" toml:"cron" json:"cron"`
	MinutesBefore int    `yaml:"minutes_before" toml:"minutes_before" json:"minutes_before"`
}

// BackupConfig drives scheduled backups into Dir.
type BackupConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Cron    string `yaml:"cron" toml:"cron" json:"cron"`
	Dir     string `yaml:"dir" toml:"dir" json:"dir"`
}

type RestoreConfig struct {
	// OnCollision is "keep", "reject" or "renumber".
	OnCollision string `yaml:"on_collision" toml:"on_collision" json:"on_collision"`
}

// BasicAuthConfig enables HTTP Basic Auth on every endpoint except /health
// when Username is set. PasswordHash is an argon2id hash produced by
// `eventsched hash-password`.
type BasicAuthConfig struct {
	Username     string `yaml:"username" toml:"username" json:"username"`
	PasswordHash string `yaml:"password_hash" toml:"password_hash" json:"-"`
}

// Enabled reports whether credentials are configured.
func (b BasicAuthConfig) Enabled() bool {
	return b.Username != "" && b.PasswordHash != ""
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" toml:"listen" json:"listen"`

	// Timezone is the IANA zone event times are read and written in
	// ("Local" for the host zone).
	Timezone string `yaml:"timezone" toml:"timezone" json:"timezone"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level" toml:"log_level" json:"log_level"`

	Storage    StorageConfig    `yaml:"storage" toml:"storage" json:"storage"`
	Recurrence RecurrenceConfig `yaml:"recurrence" toml:"recurrence" json:"recurrence"`
	Reminders  RemindersConfig  `yaml:"reminders" toml:"reminders" json:"reminders"`
	Backup     BackupConfig     `yaml:"backup" toml:"backup" json:"backup"`
	Restore    RestoreConfig    `yaml:"restore" toml:"restore" json:"restore"`
	BasicAuth  BasicAuthConfig  `yaml:"basic_auth" toml:"basic_auth" json:"basic_auth"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "Local",
		LogLevel: "info",
		Storage: StorageConfig{
			Driver:     DriverCSV,
			DataDir:    ".",
			SQLitePath: "eventsched.db",
		},
		Recurrence: RecurrenceConfig{MaxOccurrences: 5000},
		Reminders: RemindersConfig{
			Enabled:       true,
			Cron:          "* * * * *",
			MinutesBefore: 15,
		},
		Backup: BackupConfig{
			Enabled: false,
			Cron:    "0 3 * * *",
			Dir:     "backup",
		},
		Restore: RestoreConfig{OnCollision: "keep"},
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = d.Storage.Driver
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = d.Storage.DataDir
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = d.Storage.SQLitePath
	}
	if c.Recurrence.MaxOccurrences <= 0 {
		c.Recurrence.MaxOccurrences = d.Recurrence.MaxOccurrences
	}
	if c.Reminders.Cron == "" {
		c.Reminders.Cron = d.Reminders.Cron
	}
	if c.Reminders.MinutesBefore <= 0 {
		c.Reminders.MinutesBefore = d.Reminders.MinutesBefore
	}
	if c.Backup.Cron == "" {
		c.Backup.Cron = d.Backup.Cron
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = d.Backup.Dir
	}
	c.Restore.OnCollision = strings.ToLower(strings.TrimSpace(c.Restore.OnCollision))
	if c.Restore.OnCollision == "" {
		c.Restore.OnCollision = d.Restore.OnCollision
	}
}

// ApplyEnv overrides file values with any EVENTSCHED_* variables that are set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		c.Storage.PostgresDSN = v
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case DriverCSV, DriverSQLite:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of csv, sqlite, postgres", c.Storage.Driver))
	}

	switch c.Restore.OnCollision {
	case "keep", "reject", "renumber":
	default:
		errs = append(errs, fmt.Errorf("restore.on_collision %q is not one of keep, reject, renumber", c.Restore.OnCollision))
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Reminders.Enabled {
		if _, err := cron.ParseStandard(c.Reminders.Cron); err != nil {
			errs = append(errs, fmt.Errorf("reminders.cron: %w", err))
		}
	}
	if c.Backup.Enabled {
		if _, err := cron.ParseStandard(c.Backup.Cron); err != nil {
			errs = append(errs, fmt.Errorf("backup.cron: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Location resolves Timezone. "Local" and "" map to time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from path. Files ending in .toml are decoded as
// TOML, anything else as YAML.
//
// Behavior:
//   - If the file does not exist, a default config is written there with
//     0600 perms and returned.
//   - Otherwise the file is decoded and defaults are filled in.
//
// Environment overrides are not applied; call ApplyEnv.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if isTOML(path) {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms,
// in the format implied by the extension.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return err
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(dir, ".eventsched-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
