package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"

	serveradapter "github.com/hylla/flyt/internal/adapters/server"
	"github.com/hylla/flyt/internal/adapters/storage/postgres"
	"github.com/hylla/flyt/internal/adapters/storage/sqlite"
	"github.com/hylla/flyt/internal/app"
	"github.com/hylla/flyt/internal/config"
	"github.com/hylla/flyt/internal/platform"
)

// version stores a package-level helper value.
var version = "dev"

// serveCommandRunner starts the HTTP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, svc *app.Service) error {
	return serveradapter.Run(ctx, cfg, svc)
}

// main handles main.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run runs the requested command flow.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("flyt", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configPath string
		dbPath     string
		dsn        string
		appName    string
		devMode    bool
		showVer    bool
	)
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("FLYT_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("FLYT_APP_NAME")); envApp != "" {
		appName = envApp
	} else {
		appName = "flyt"
	}
	fs.StringVar(&configPath, "config", "", "path to config TOML")
	fs.StringVar(&dbPath, "db", "", "path to sqlite database")
	fs.StringVar(&dsn, "dsn", "", "postgres DSN (selects the postgres driver)")
	fs.StringVar(&appName, "app", appName, "application name for config/data path resolution")
	fs.BoolVar(&devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	fs.BoolVar(&showVer, "version", false, "show version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showVer {
		_, _ = fmt.Fprintf(stdout, "flyt %s\n", version)
		return nil
	}

	paths, err := platform.Resolve(platform.Options{
		AppName: appName,
		DevMode: devMode,
	})
	if err != nil {
		return err
	}

	command := firstArg(fs.Args())
	switch command {
	case "paths":
		_, _ = fmt.Fprintf(stdout, "app: %s\n", appName)
		_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", devMode)
		_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
		_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
		_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
		return nil
	case "", "serve", "timeline":
		// Continue.
	default:
		return fmt.Errorf("unknown command: %s", command)
	}

	dbOverridden := strings.TrimSpace(dbPath) != ""
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("FLYT_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("FLYT_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}
	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("FLYT_DSN"))
	}

	defaultCfg := config.Default(dbPath)
	cfg, err := config.Load(configPath, defaultCfg)
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	if strings.TrimSpace(dsn) != "" {
		cfg.Database.Driver = config.DriverPostgres
		cfg.Database.DSN = dsn
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logger, err := newRuntimeLogger(stderr, appName, devMode, cfg.Logging, time.Now)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil {
			_, _ = fmt.Fprintf(stderr, "warning: close runtime log sink: %v\n", closeErr)
		}
	}()

	logger.Info("startup configuration resolved", "app", appName, "dev_mode", devMode, "command", command, "driver", cfg.Database.Driver)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	batchTimeout, err := cfg.TimelineBatchTimeout()
	if err != nil {
		return err
	}
	svc := app.NewService(repo, uuid.NewString, nil, logger, app.ServiceConfig{
		TimelineTimeout: batchTimeout,
		MaxBatchIDs:     cfg.Timeline.MaxBatchIDs,
	})
	logger.Debug("application service initialized", "batch_timeout", batchTimeout, "max_batch_ids", cfg.Timeline.MaxBatchIDs)

	switch command {
	case "", "serve":
		logger.Info("command flow start", "command", "serve")
		if err := runServe(ctx, svc, restArgs(fs.Args()), cfg); err != nil {
			logger.Error("command flow failed", "command", "serve", "err", err)
			return fmt.Errorf("run serve command: %w", err)
		}
		logger.Info("command flow complete", "command", "serve")
		return nil
	case "timeline":
		logger.Info("command flow start", "command", "timeline")
		if err := runTimeline(ctx, svc, restArgs(fs.Args()), stdout); err != nil {
			logger.Error("command flow failed", "command", "timeline", "err", err)
			return fmt.Errorf("run timeline command: %w", err)
		}
		logger.Info("command flow complete", "command", "timeline")
		return nil
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// openRepository selects the storage adapter from the configured driver.
func openRepository(ctx context.Context, cfg config.Config, logger *runtimeLogger) (app.Repository, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		logger.Info("connecting postgres repository")
		repo, err := postgres.Connect(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Error("postgres connect failed", "err", err)
			return nil, nil, fmt.Errorf("connect postgres repository: %w", err)
		}
		logger.Info("postgres repository ready")
		return repo, repo.Close, nil
	default:
		logger.Info("opening sqlite repository", "db_path", cfg.Database.Path)
		repo, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
			return nil, nil, fmt.Errorf("open sqlite repository: %w", err)
		}
		logger.Info("sqlite repository ready", "db_path", cfg.Database.Path, "migrations", "ensured")
		return repo, func() {
			if closeErr := repo.Close(); closeErr != nil {
				logger.Warn("sqlite close failed", "db_path", cfg.Database.Path, "err", closeErr)
			}
		}, nil
	}
}

// runServe runs the serve subcommand flow.
func runServe(ctx context.Context, svc *app.Service, args []string, cfg config.Config) error {
	fs := flag.NewFlagSet("flyt serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		httpBind    string
		apiEndpoint string
	)
	fs.StringVar(&httpBind, "http", cfg.Server.Bind, "HTTP listen address")
	fs.StringVar(&apiEndpoint, "api-endpoint", "/api/v1", "HTTP API base endpoint")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse serve flags: %w", err)
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected serve arguments: %v", fs.Args())
	}

	shutdownTimeout, err := cfg.ServerShutdownTimeout()
	if err != nil {
		return err
	}
	return serveCommandRunner(ctx, serveradapter.Config{
		HTTPBind:        httpBind,
		APIEndpoint:     apiEndpoint,
		ShutdownTimeout: shutdownTimeout,
	}, svc)
}

// runTimeline runs the timeline subcommand flow, printing projections as JSON.
func runTimeline(ctx context.Context, svc *app.Service, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("flyt timeline", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var idsRaw string
	fs.StringVar(&idsRaw, "ids", "", "comma-separated item ids")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse timeline flags: %w", err)
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected timeline arguments: %v", fs.Args())
	}
	if strings.TrimSpace(idsRaw) == "" {
		return fmt.Errorf("--ids is required")
	}

	timelines, err := svc.ItemTimelines(ctx, strings.Split(idsRaw, ","))
	if err != nil {
		return fmt.Errorf("project timelines: %w", err)
	}
	encoded, err := json.MarshalIndent(timelines, "", "  ")
	if err != nil {
		return fmt.Errorf("encode timelines json: %w", err)
	}
	encoded = append(encoded, '\n')
	if _, err := stdout.Write(encoded); err != nil {
		return fmt.Errorf("write timelines to stdout: %w", err)
	}
	return nil
}

// firstArg handles first arg.
func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// restArgs returns subcommand arguments after the command word.
func restArgs(args []string) []string {
	if len(args) <= 1 {
		return nil
	}
	return args[1:]
}

// parseBoolEnv parses input into a normalized form.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// runtimeLogger fans log events to a styled console sink and an optional dev-file sink.
type runtimeLogger struct {
	sinks     []*charmLog.Logger
	closeFile func() error
	devLog    string
}

// newRuntimeLogger configures runtime log sinks from CLI/config state.
func newRuntimeLogger(stderr io.Writer, appName string, devMode bool, cfg config.LoggingConfig, now func() time.Time) (*runtimeLogger, error) {
	levelRaw := strings.TrimSpace(cfg.Level)
	if levelRaw == "" {
		levelRaw = "info"
	}
	level, err := charmLog.ParseLevel(levelRaw)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", cfg.Level, err)
	}

	if now == nil {
		now = time.Now
	}
	if stderr == nil {
		stderr = io.Discard
	}

	consoleLogger := charmLog.NewWithOptions(stderr, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.TextFormatter,
	})

	logger := &runtimeLogger{
		sinks: []*charmLog.Logger{consoleLogger},
	}
	if !devMode {
		return logger, nil
	}

	devLogPath, err := platform.DevLogFilePath(cfg.DevFile, appName, now().UTC())
	if err != nil {
		return nil, fmt.Errorf("resolve dev log file path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(devLogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create dev log dir: %w", err)
	}
	logFile, err := os.OpenFile(devLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dev log file: %w", err)
	}

	// Keep file output parseable and unstyled while preserving styled console logs.
	fileLogger := charmLog.NewWithOptions(logFile, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.LogfmtFormatter,
	})
	logger.sinks = append(logger.sinks, fileLogger)
	logger.closeFile = logFile.Close
	logger.devLog = devLogPath
	return logger, nil
}

// DevLogPath returns the active dev log file path.
func (l *runtimeLogger) DevLogPath() string {
	if l == nil {
		return ""
	}
	return l.devLog
}

// Close closes the optional dev-file sink.
func (l *runtimeLogger) Close() error {
	if l == nil || l.closeFile == nil {
		return nil
	}
	return l.closeFile()
}

// Debug logs a debug event to all configured sinks.
func (l *runtimeLogger) Debug(msg any, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Debug(msg, keyvals...)
	}
}

// Info logs an informational event to all configured sinks.
func (l *runtimeLogger) Info(msg any, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Info(msg, keyvals...)
	}
}

// Warn logs a warning event to all configured sinks.
func (l *runtimeLogger) Warn(msg any, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Warn(msg, keyvals...)
	}
}

// Error logs an error event to all configured sinks.
func (l *runtimeLogger) Error(msg any, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Error(msg, keyvals...)
	}
}
