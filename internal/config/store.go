package config

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/faucetdb/askdb/internal/model"
)

// Store manages askdb's local state backed by SQLite. It persists services
// added from the CLI, API keys, settings and the ask history.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new config store. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "askdb.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open config database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate config database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Service CRUD
// ---------------------------------------------------------------------------

// serviceRow is a flat struct that maps 1:1 to the services table columns.
// model.ServiceConfig nests Pool and holds a slice, neither of which maps
// directly to a column.
type serviceRow struct {
	ID                   int64     `db:"id"`
	Name                 string    `db:"name"`
	Label                string    `db:"label"`
	Driver               string    `db:"driver"`
	DSN                  string    `db:"dsn"`
	PrivateKeyPath       string    `db:"private_key_path"`
	SchemaName           string    `db:"schema_name"`
	SensitiveColumnsJSON string    `db:"sensitive_columns_json"`
	CustomInstructions   string    `db:"custom_instructions"`
	IsActive             bool      `db:"is_active"`
	MaxOpenConns         int       `db:"max_open_conns"`
	MaxIdleConns         int       `db:"max_idle_conns"`
	ConnMaxLifetimeMs    int64     `db:"conn_max_lifetime_ms"`
	ConnMaxIdleTimeMs    int64     `db:"conn_max_idle_time_ms"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

func serviceRowFromModel(svc *model.ServiceConfig) (serviceRow, error) {
	cols := svc.SensitiveColumns
	if cols == nil {
		cols = []string{}
	}
	colsJSON, err := json.Marshal(cols)
	if err != nil {
		return serviceRow{}, fmt.Errorf("marshal sensitive columns: %w", err)
	}
	return serviceRow{
		ID:                   svc.ID,
		Name:                 svc.Name,
		Label:                svc.Label,
		Driver:               svc.Driver,
		DSN:                  svc.DSN,
		PrivateKeyPath:       svc.PrivateKeyPath,
		SchemaName:           svc.Schema,
		SensitiveColumnsJSON: string(colsJSON),
		CustomInstructions:   svc.CustomInstructions,
		IsActive:             svc.IsActive,
		MaxOpenConns:         svc.Pool.MaxOpenConns,
		MaxIdleConns:         svc.Pool.MaxIdleConns,
		ConnMaxLifetimeMs:    svc.Pool.ConnMaxLifetime.Milliseconds(),
		ConnMaxIdleTimeMs:    svc.Pool.ConnMaxIdleTime.Milliseconds(),
		CreatedAt:            svc.CreatedAt,
		UpdatedAt:            svc.UpdatedAt,
	}, nil
}

func (r serviceRow) toModel() (model.ServiceConfig, error) {
	var cols []string
	if r.SensitiveColumnsJSON != "" && r.SensitiveColumnsJSON != "[]" {
		if err := json.Unmarshal([]byte(r.SensitiveColumnsJSON), &cols); err != nil {
			return model.ServiceConfig{}, fmt.Errorf("unmarshal sensitive columns for %q: %w", r.Name, err)
		}
	}
	return model.ServiceConfig{
		ID:                 r.ID,
		Name:               r.Name,
		Label:              r.Label,
		Driver:             r.Driver,
		DSN:                r.DSN,
		PrivateKeyPath:     r.PrivateKeyPath,
		Schema:             r.SchemaName,
		SensitiveColumns:   cols,
		CustomInstructions: r.CustomInstructions,
		IsActive:           r.IsActive,
		Pool: model.PoolConfig{
			MaxOpenConns:    r.MaxOpenConns,
			MaxIdleConns:    r.MaxIdleConns,
			ConnMaxLifetime: time.Duration(r.ConnMaxLifetimeMs) * time.Millisecond,
			ConnMaxIdleTime: time.Duration(r.ConnMaxIdleTimeMs) * time.Millisecond,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// CreateService inserts a new service configuration. The ID, CreatedAt, and
// UpdatedAt fields on svc are populated after a successful insert.
func (s *Store) CreateService(ctx context.Context, svc *model.ServiceConfig) error {
	now := time.Now().UTC()
	svc.CreatedAt = now
	svc.UpdatedAt = now

	row, err := serviceRowFromModel(svc)
	if err != nil {
		return err
	}

	const q = `INSERT INTO services
		(name, label, driver, dsn, private_key_path, schema_name, sensitive_columns_json,
		 custom_instructions, is_active, max_open_conns, max_idle_conns,
		 conn_max_lifetime_ms, conn_max_idle_time_ms, created_at, updated_at)
		VALUES
		(:name, :label, :driver, :dsn, :private_key_path, :schema_name, :sensitive_columns_json,
		 :custom_instructions, :is_active, :max_open_conns, :max_idle_conns,
		 :conn_max_lifetime_ms, :conn_max_idle_time_ms, :created_at, :updated_at)`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("service %q: %w", svc.Name, ErrAlreadyExists)
		}
		return fmt.Errorf("insert service: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get service id: %w", err)
	}
	svc.ID = id
	return nil
}

// GetService returns a service by ID.
func (s *Store) GetService(ctx context.Context, id int64) (*model.ServiceConfig, error) {
	return s.getService(ctx, "SELECT * FROM services WHERE id = ?", id)
}

// GetServiceByName returns a service by its unique name.
func (s *Store) GetServiceByName(ctx context.Context, name string) (*model.ServiceConfig, error) {
	return s.getService(ctx, "SELECT * FROM services WHERE name = ?", name)
}

func (s *Store) getService(ctx context.Context, q string, arg any) (*model.ServiceConfig, error) {
	var row serviceRow
	if err := s.db.GetContext(ctx, &row, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	svc, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

// ListServices returns all configured service definitions.
func (s *Store) ListServices(ctx context.Context) ([]model.ServiceConfig, error) {
	var rows []serviceRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM services ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	services := make([]model.ServiceConfig, 0, len(rows))
	for _, r := range rows {
		svc, err := r.toModel()
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, nil
}

// UpdateService updates an existing service configuration. The UpdatedAt field
// on svc is refreshed automatically.
func (s *Store) UpdateService(ctx context.Context, svc *model.ServiceConfig) error {
	svc.UpdatedAt = time.Now().UTC()
	row, err := serviceRowFromModel(svc)
	if err != nil {
		return err
	}

	const q = `UPDATE services SET
		name = :name, label = :label, driver = :driver, dsn = :dsn, private_key_path = :private_key_path,
		schema_name = :schema_name, sensitive_columns_json = :sensitive_columns_json,
		custom_instructions = :custom_instructions, is_active = :is_active,
		max_open_conns = :max_open_conns, max_idle_conns = :max_idle_conns,
		conn_max_lifetime_ms = :conn_max_lifetime_ms, conn_max_idle_time_ms = :conn_max_idle_time_ms,
		updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("update service: %w", err)
	}
	return requireAffected(result, "update service")
}

// DeleteServiceByName removes a service configuration by name.
func (s *Store) DeleteServiceByName(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM services WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	return requireAffected(result, "delete service")
}

// ---------------------------------------------------------------------------
// API Key management
// ---------------------------------------------------------------------------

// CreateAPIKey inserts a new API key record. The key_hash must already be set
// (use HashAPIKey). The ID and CreatedAt fields are populated after insert.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	key.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO api_keys
		(key_hash, key_prefix, label, is_active, expires_at, created_at)
		VALUES
		(:key_hash, :key_prefix, :label, :is_active, :expires_at, :created_at)`

	result, err := s.db.NamedExecContext(ctx, q, key)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get api key id: %w", err)
	}
	key.ID = id
	return nil
}

// GetAPIKeyByHash looks up an API key by its SHA-256 hash.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, "SELECT * FROM api_keys WHERE key_hash = ?", hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return &key, nil
}

// ListAPIKeys returns all API keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	if err := s.db.SelectContext(ctx, &keys, "SELECT * FROM api_keys ORDER BY created_at DESC"); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKeyByPrefix marks an active API key as inactive by its prefix.
func (s *Store) RevokeAPIKeyByPrefix(ctx context.Context, prefix string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET is_active = 0 WHERE key_prefix = ? AND is_active = 1", prefix)
	if err != nil {
		return fmt.Errorf("revoke api key by prefix: %w", err)
	}
	return requireAffected(result, "revoke api key")
}

// UpdateAPIKeyLastUsed sets the last_used timestamp for an API key.
func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET last_used = ? WHERE id = ?", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return requireAffected(result, "update api key last used")
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns the value stored under key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	if err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts a key-value setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Ask history
// ---------------------------------------------------------------------------

// HistoryFilter narrows ListAsks.
type HistoryFilter struct {
	Service    string
	FailedOnly bool
	Limit      int
}

// RecordAsk stores one ask outcome. An empty ID is filled with a
// time-ordered UUID and CreatedAt is set to now.
func (s *Store) RecordAsk(ctx context.Context, rec *model.AskRecord) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate history id: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT INTO ask_history
		(id, request_id, service, question, sql_text, answer, row_count, duration_ms,
		 input_tokens, output_tokens, error_code, error, created_at)
		VALUES
		(:id, :request_id, :service, :question, :sql_text, :answer, :row_count, :duration_ms,
		 :input_tokens, :output_tokens, :error_code, :error, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, rec); err != nil {
		return fmt.Errorf("insert ask history: %w", err)
	}
	return nil
}

// GetAsk returns one history record by ID.
func (s *Store) GetAsk(ctx context.Context, id string) (*model.AskRecord, error) {
	var rec model.AskRecord
	if err := s.db.GetContext(ctx, &rec, "SELECT * FROM ask_history WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ask history: %w", err)
	}
	return &rec, nil
}

// ListAsks returns history records, newest first. A Limit of zero or less
// means 50.
func (s *Store) ListAsks(ctx context.Context, f HistoryFilter) ([]model.AskRecord, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	q := "SELECT * FROM ask_history WHERE 1 = 1"
	var args []any
	if f.Service != "" {
		q += " AND service = ?"
		args = append(args, f.Service)
	}
	if f.FailedOnly {
		q += " AND error_code <> ''"
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, f.Limit)

	recs := []model.AskRecord{}
	if err := s.db.SelectContext(ctx, &recs, q, args...); err != nil {
		return nil, fmt.Errorf("list ask history: %w", err)
	}
	return recs, nil
}

// PruneAsks deletes all but the newest keep records and returns how many
// were removed.
func (s *Store) PruneAsks(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM ask_history WHERE id NOT IN (
		SELECT id FROM ask_history ORDER BY created_at DESC, id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune ask history: %w", err)
	}
	return result.RowsAffected()
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

// HashAPIKey returns the hex-encoded SHA-256 hash of a raw API key string.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

func requireAffected(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
