package postgres

import (
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/faucetdb/askdb/internal/connector"
)

// PostgresConnector implements connector.Connector for PostgreSQL databases.
type PostgresConnector struct {
	connector.Base
}

// New creates a new PostgresConnector that introspects the public schema
// unless configured otherwise.
func New() connector.Connector {
	return &PostgresConnector{Base: connector.Base{SchemaName: "public"}}
}

// Connect opens a pgx-backed pool.
func (c *PostgresConnector) Connect(cfg connector.ConnectionConfig) error {
	return c.Open("pgx", cfg.DSN, cfg)
}

// DriverName returns the driver identifier for PostgreSQL.
func (c *PostgresConnector) DriverName() string { return "postgres" }

// Dialect names PostgreSQL in the model prompt.
func (c *PostgresConnector) Dialect() string { return "PostgreSQL" }

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double quotes.
func (c *PostgresConnector) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SupportsReadOnlyTx is true: pgx issues BEGIN READ ONLY.
func (c *PostgresConnector) SupportsReadOnlyTx() bool { return true }
