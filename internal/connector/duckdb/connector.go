package duckdb

import (
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/faucetdb/askdb/internal/connector"
)

// DuckDBConnector implements connector.Connector for DuckDB database files.
type DuckDBConnector struct {
	connector.Base
}

// New creates a new DuckDBConnector.
func New() connector.Connector {
	return &DuckDBConnector{Base: connector.Base{SchemaName: "main"}}
}

// Connect opens the database file named by the DSN. An empty DSN is an
// in-memory database; append ?access_mode=read_only to open a file
// read-only.
func (c *DuckDBConnector) Connect(cfg connector.ConnectionConfig) error {
	return c.Open("duckdb", cfg.DSN, cfg)
}

// DriverName returns the driver identifier for DuckDB.
func (c *DuckDBConnector) DriverName() string { return "duckdb" }

// Dialect names DuckDB in the model prompt.
func (c *DuckDBConnector) Dialect() string { return "DuckDB" }

// QuoteIdentifier wraps a SQL identifier in double quotes.
func (c *DuckDBConnector) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SupportsReadOnlyTx is false; go-duckdb rejects the ReadOnly option.
func (c *DuckDBConnector) SupportsReadOnlyTx() bool { return false }
