package config

import (
	"fmt"
	"strings"
)

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			driver TEXT NOT NULL,
			dsn TEXT NOT NULL,
			private_key_path TEXT NOT NULL DEFAULT '',
			schema_name TEXT NOT NULL DEFAULT '',
			sensitive_columns_json TEXT NOT NULL DEFAULT '[]',
			custom_instructions TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			max_open_conns INTEGER NOT NULL DEFAULT 10,
			max_idle_conns INTEGER NOT NULL DEFAULT 2,
			conn_max_lifetime_ms INTEGER NOT NULL DEFAULT 300000,
			conn_max_idle_time_ms INTEGER NOT NULL DEFAULT 60000,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS api_keys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key_hash TEXT UNIQUE NOT NULL,
			key_prefix TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			expires_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_used DATETIME
		)`,

		`CREATE INDEX IF NOT EXISTS idx_api_keys_hash ON api_keys(key_hash)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS ask_history (
			id TEXT PRIMARY KEY,
			service TEXT NOT NULL,
			question TEXT NOT NULL,
			sql_text TEXT NOT NULL DEFAULT '',
			answer TEXT NOT NULL DEFAULT '',
			row_count INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			error_code TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_ask_history_service ON ask_history(service, created_at)`,

		`ALTER TABLE ask_history ADD COLUMN request_id TEXT NOT NULL DEFAULT ''`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// SQLite ALTER TABLE ADD COLUMN fails if column already exists;
			// treat "duplicate column" as a no-op for idempotent migrations.
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
