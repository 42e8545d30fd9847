package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Timeline TimelineConfig `toml:"timeline"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DatabaseConfig struct {
	Driver Driver `toml:"driver"`
	// Path backs the sqlite driver; DSN backs postgres.
	Path string `toml:"path"`
	DSN  string `toml:"dsn"`
}

type ServerConfig struct {
	Bind            string `toml:"bind"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

type TimelineConfig struct {
	BatchTimeout string `toml:"batch_timeout"`
	MaxBatchIDs  int    `toml:"max_batch_ids"`
}

type LoggingConfig struct {
	Level   string `toml:"level"` // debug | info | warn | error
	DevFile string `toml:"dev_file"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   dbPath,
		},
		Server: ServerConfig{
			Bind:            "127.0.0.1:8171",
			ShutdownTimeout: "5s",
		},
		Timeline: TimelineConfig{
			BatchTimeout: "10s",
			MaxBatchIDs:  200,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return errors.New("database path is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("database dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid database.driver: %q", c.Database.Driver)
	}

	if strings.TrimSpace(c.Server.Bind) == "" {
		return errors.New("server bind address is required")
	}
	if _, err := c.ServerShutdownTimeout(); err != nil {
		return err
	}
	if _, err := c.TimelineBatchTimeout(); err != nil {
		return err
	}
	if c.Timeline.MaxBatchIDs < 1 {
		return errors.New("timeline.max_batch_ids must be >= 1")
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	return nil
}

func (c Config) ServerShutdownTimeout() (time.Duration, error) {
	return parseDuration("server.shutdown_timeout", c.Server.ShutdownTimeout, 5*time.Second)
}

func (c Config) TimelineBatchTimeout() (time.Duration, error) {
	return parseDuration("timeline.batch_timeout", c.Timeline.BatchTimeout, 10*time.Second)
}

func parseDuration(field, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", field, raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", field)
	}
	return d, nil
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
