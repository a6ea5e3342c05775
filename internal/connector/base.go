package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrNotConnected is returned by operations on a connector whose pool has
// not been opened.
var ErrNotConnected = errors.New("connector is not connected")

// Base carries the connection pool shared by every driver. Drivers embed
// it and add introspection and dialect details.
type Base struct {
	db *sqlx.DB
	// SchemaName is the database schema introspected for the prompt.
	SchemaName string
}

// Open connects with the given database/sql driver name and applies the
// pool settings from cfg.
func (b *Base) Open(driverName, dsn string, cfg ConnectionConfig) error {
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return fmt.Errorf("%s connect: %w", driverName, err)
	}
	b.Attach(db, cfg)
	return nil
}

// Attach installs an already-open pool. Used by Open and by tests that
// hand in a mocked database.
func (b *Base) Attach(db *sqlx.DB, cfg ConnectionConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.SchemaName != "" {
		b.SchemaName = cfg.SchemaName
	}
	b.db = db
}

// Disconnect closes the pool.
func (b *Base) Disconnect() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (b *Base) Ping(ctx context.Context) error {
	if b.db == nil {
		return ErrNotConnected
	}
	return b.db.PingContext(ctx)
}

// DB returns the underlying pool, or nil before Connect.
func (b *Base) DB() *sqlx.DB {
	return b.db
}
