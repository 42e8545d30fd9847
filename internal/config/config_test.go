package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/tmp/flyt.db")
	if cfg.Database.Driver != DriverSQLite {
		t.Fatalf("unexpected driver %q", cfg.Database.Driver)
	}
	if cfg.Database.Path != "/tmp/flyt.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Server.Bind == "" {
		t.Fatal("expected a default bind address")
	}
	if cfg.Timeline.MaxBatchIDs < 1 {
		t.Fatalf("unexpected batch limit %d", cfg.Timeline.MaxBatchIDs)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate, got %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	defaults := Default("/tmp/flyt.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != defaults.Database.Path {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[database]
driver = "postgres"
dsn = "postgres://flyt@localhost/flyt"

[server]
bind = "0.0.0.0:9090"

[timeline]
batch_timeout = "2s"
max_batch_ids = 50

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path, Default("/tmp/default.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Driver != DriverPostgres || cfg.Database.DSN != "postgres://flyt@localhost/flyt" {
		t.Fatalf("unexpected database config %#v", cfg.Database)
	}
	if cfg.Server.Bind != "0.0.0.0:9090" {
		t.Fatalf("unexpected bind %q", cfg.Server.Bind)
	}
	timeout, err := cfg.TimelineBatchTimeout()
	if err != nil {
		t.Fatalf("TimelineBatchTimeout() error = %v", err)
	}
	if timeout != 2*time.Second {
		t.Fatalf("unexpected batch timeout %v", timeout)
	}
	if cfg.Timeline.MaxBatchIDs != 50 {
		t.Fatalf("unexpected batch limit %d", cfg.Timeline.MaxBatchIDs)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected log level %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalidDriver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[database]
driver = "oracle"
path = "/custom/flyt.db"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Load(path, Default("/tmp/default.db")); err == nil {
		t.Fatal("expected error for invalid driver")
	}
}

func TestValidateRequiresDSNForPostgres(t *testing.T) {
	cfg := Default("/tmp/flyt.db")
	cfg.Database.Driver = DriverPostgres
	cfg.Database.DSN = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing dsn")
	}
}

func TestValidateRejectsBadDurations(t *testing.T) {
	cfg := Default("/tmp/flyt.db")
	cfg.Timeline.BatchTimeout = "soon"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unparseable duration")
	}

	cfg = Default("/tmp/flyt.db")
	cfg.Timeline.BatchTimeout = "-1s"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestEnsureConfigDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "config.toml")
	if err := EnsureConfigDir(target); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(target)); err != nil {
		t.Fatalf("expected dir to exist, stat error %v", err)
	}
}
