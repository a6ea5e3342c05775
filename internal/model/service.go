package model

import "time"

// ServiceConfig holds the configuration for a database service connection.
// Each service maps to one database that questions can be asked against.
type ServiceConfig struct {
	ID             int64  `json:"id" db:"id"`
	Name           string `json:"name" db:"name"`
	Label          string `json:"label" db:"label"`
	Driver         string `json:"driver" db:"driver"` // postgres, mysql, mssql, oracle, snowflake, sqlite, duckdb
	DSN            string `json:"dsn,omitempty" db:"dsn"`
	PrivateKeyPath string `json:"private_key_path,omitempty" db:"private_key_path"`
	Schema         string `json:"schema" db:"schema_name"`
	// SensitiveColumns are "table.column" or "*.column" patterns hidden
	// from the model prompt.
	SensitiveColumns   []string   `json:"sensitive_columns,omitempty"`
	CustomInstructions string     `json:"custom_instructions,omitempty"`
	IsActive           bool       `json:"is_active" db:"is_active"`
	Pool               PoolConfig `json:"pool"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// PoolConfig controls the database connection pool behavior for a service.
type PoolConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// DefaultPoolConfig returns sensible defaults for a database connection pool.
// Ask traffic is bursty and read-only, so the pool stays small.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}
