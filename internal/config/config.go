package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither an explicit path nor OVENBOOK_CONFIG_PATH is set.
const DefaultPath = "configs/config.yaml"

type Config struct {
	HTTP struct {
		Address             string `yaml:"address"`
		APIKey              string `yaml:"api_key"`
		ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	} `yaml:"http"`

	Database DatabaseConfig `yaml:"database"`
	Backup   BackupConfig   `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Tracing TracingConfig `yaml:"tracing"`

	Booking struct {
		MaxActivePerUser   int    `yaml:"max_active_per_user"`
		GraceWindowMinutes int    `yaml:"grace_window_minutes"`
		MaxDurationDays    int    `yaml:"max_duration_days"`
		MinPurposeLength   int    `yaml:"min_purpose_length"`
		MaxFlap            int    `yaml:"max_flap"`
		CancelReason       string `yaml:"cancel_reason"`
	} `yaml:"booking"`

	Sweep struct {
		IntervalMinutes int `yaml:"interval_minutes"` // 0 disables the periodic loop
		MinGapSeconds   int `yaml:"min_gap_seconds"`
	} `yaml:"sweep"`

	Notifications struct {
		Enabled       bool   `yaml:"enabled"`
		From          string `yaml:"from"`
		RatePerMinute int    `yaml:"rate_per_minute"`
	} `yaml:"notifications"`

	Events struct {
		RabbitURL string `yaml:"rabbit_url"`
		Exchange  string `yaml:"exchange"`
	} `yaml:"events"`

	Ovens struct {
		ConfigPath           string `yaml:"config_path"`
		WatchIntervalSeconds int    `yaml:"watch_interval_seconds"`
	} `yaml:"ovens"`

	Admins []AdminConfig `yaml:"admins"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console or json
	} `yaml:"logging"`
}

// DatabaseConfig selects the booking store backend.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // sqlite3, postgres or memory
	Path         string `yaml:"path"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// AdminConfig seeds an approved admin account on startup.
type AdminConfig struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// ResolvePath picks the config file: explicit path, then env, then default.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("OVENBOOK_CONFIG_PATH"); env != "" {
		return env
	}
	return DefaultPath
}

func Load(path string) (*Config, error) {
	path = ResolvePath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if cfg.Database.Driver == "sqlite3" {
		if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/ovenbook.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "ovenbook"
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "ovenbook.events"
	}
	if c.Ovens.ConfigPath == "" {
		c.Ovens.ConfigPath = "configs/ovens.yaml"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// Validate checks fields that have no usable default.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver)
	}
	if c.Booking.MaxActivePerUser < 0 {
		return fmt.Errorf("booking.max_active_per_user cannot be negative")
	}
	if c.Booking.MaxFlap < 0 {
		return fmt.Errorf("booking.max_flap cannot be negative")
	}
	for i, a := range c.Admins {
		if a.ID == "" {
			return fmt.Errorf("admins[%d]: id is required", i)
		}
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func (c *Config) GraceWindow() time.Duration {
	if c.Booking.GraceWindowMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Booking.GraceWindowMinutes) * time.Minute
}

func (c *Config) MaxDuration() time.Duration {
	if c.Booking.MaxDurationDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.Booking.MaxDurationDays) * 24 * time.Hour
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

// SweepInterval returns 0 when the periodic sweep is disabled.
func (c *Config) SweepInterval() time.Duration {
	if c.Sweep.IntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Sweep.IntervalMinutes) * time.Minute
}

func (c *Config) SweepMinGap() time.Duration {
	if c.Sweep.MinGapSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Sweep.MinGapSeconds) * time.Second
}

func (c *Config) OvensWatchInterval() time.Duration {
	if c.Ovens.WatchIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Ovens.WatchIntervalSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) HTTPReadTimeout() time.Duration {
	if c.HTTP.ReadTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.HTTP.ReadTimeoutSeconds) * time.Second
}

func (c *Config) HTTPWriteTimeout() time.Duration {
	if c.HTTP.WriteTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.HTTP.WriteTimeoutSeconds) * time.Second
}

// NotificationInterval is the minimum spacing between two notifications.
func (c *Config) NotificationInterval() time.Duration {
	if c.Notifications.RatePerMinute <= 0 {
		return time.Second
	}
	return time.Minute / time.Duration(c.Notifications.RatePerMinute)
}

// LogLevel returns the parsed logging level, falling back to info.
func (c *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Logging.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
