package sqlite

import (
	"strings"

	_ "modernc.org/sqlite"

	"github.com/faucetdb/askdb/internal/connector"
)

// SQLiteConnector implements connector.Connector for SQLite databases.
type SQLiteConnector struct {
	connector.Base
}

// New creates a new SQLiteConnector.
func New() connector.Connector {
	return &SQLiteConnector{Base: connector.Base{SchemaName: "main"}}
}

// Connect opens the database file named by the DSN, e.g.
// "/path/to/db.sqlite", "file:data.db?mode=ro" or ":memory:".
func (c *SQLiteConnector) Connect(cfg connector.ConnectionConfig) error {
	return c.Open("sqlite", cfg.DSN, cfg)
}

// DriverName returns the driver identifier for SQLite.
func (c *SQLiteConnector) DriverName() string { return "sqlite" }

// Dialect names SQLite in the model prompt.
func (c *SQLiteConnector) Dialect() string { return "SQLite" }

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double quotes.
func (c *SQLiteConnector) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SupportsReadOnlyTx is false; open the file with mode=ro for a hard
// guarantee.
func (c *SQLiteConnector) SupportsReadOnlyTx() bool { return false }
