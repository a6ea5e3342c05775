package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/faucetdb/askdb/internal/config"
	"github.com/faucetdb/askdb/internal/connector"
	"github.com/faucetdb/askdb/internal/connector/duckdb"
	"github.com/faucetdb/askdb/internal/connector/mssql"
	"github.com/faucetdb/askdb/internal/connector/mysql"
	"github.com/faucetdb/askdb/internal/connector/oracle"
	"github.com/faucetdb/askdb/internal/connector/postgres"
	"github.com/faucetdb/askdb/internal/connector/snowflake"
	"github.com/faucetdb/askdb/internal/connector/sqlite"
	"github.com/faucetdb/askdb/internal/model"
	"github.com/faucetdb/askdb/internal/service"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// ASKDB_DATA_DIR env var, or ~/.askdb as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("ASKDB_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".askdb")
}

// openConfigStore opens the SQLite store under the data directory.
func openConfigStore() (*config.Store, error) {
	return config.NewStore(resolveDataDir())
}

// newRegistry creates a connector registry with all supported database drivers registered.
func newRegistry() *connector.Registry {
	registry := connector.NewRegistry()
	registry.RegisterDriver("postgres", postgres.New)
	registry.RegisterDriver("mysql", mysql.New)
	registry.RegisterDriver("mssql", mssql.New)
	registry.RegisterDriver("oracle", oracle.New)
	registry.RegisterDriver("snowflake", snowflake.New)
	registry.RegisterDriver("sqlite", sqlite.New)
	registry.RegisterDriver("duckdb", duckdb.New)
	return registry
}

// newLogger builds the process logger from the logging section. Logs go to
// stderr so stdout stays clean for command output.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	return newLoggerTo(os.Stderr, cfg)
}

func newLoggerTo(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// --- PID file management ---

func pidFilePath() string {
	return filepath.Join(resolveDataDir(), "askdb.pid")
}

func writePID(pid int) error {
	dir := resolveDataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0644)
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID() {
	os.Remove(pidFilePath())
}

func logFilePath() string {
	return filepath.Join(resolveDataDir(), "askdb.log")
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}

// findService looks name up among the services from the config file and
// the store, with the same precedence bootstrap uses.
func findService(ctx context.Context, name string) (model.ServiceConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return model.ServiceConfig{}, err
	}
	store, err := openConfigStore()
	if err != nil {
		return model.ServiceConfig{}, fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	services, err := collectServices(ctx, cfg, store)
	if err != nil {
		return model.ServiceConfig{}, fmt.Errorf("list services: %w", err)
	}
	for _, svc := range services {
		if svc.Name == name {
			return svc, nil
		}
	}
	return model.ServiceConfig{}, fmt.Errorf("service %q not found", name)
}

// connectNamedService opens a connection to a single service without
// connecting the rest. The returned func closes it.
func connectNamedService(ctx context.Context, name string) (connector.Connector, func(), error) {
	svc, err := findService(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	registry := newRegistry()
	if err := registry.Connect(name, service.ConnectionConfig(svc)); err != nil {
		return nil, nil, fmt.Errorf("connect %q: %w", name, err)
	}
	conn, err := registry.Get(name)
	if err != nil {
		registry.CloseAll()
		return nil, nil, err
	}
	return conn, registry.CloseAll, nil
}
