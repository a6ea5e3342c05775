package mssql

import (
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/faucetdb/askdb/internal/connector"
)

// MSSQLConnector implements connector.Connector for SQL Server databases.
type MSSQLConnector struct {
	connector.Base
}

// New creates a new MSSQLConnector that introspects dbo by default.
func New() connector.Connector {
	return &MSSQLConnector{Base: connector.Base{SchemaName: "dbo"}}
}

// Connect opens a go-mssqldb pool.
func (c *MSSQLConnector) Connect(cfg connector.ConnectionConfig) error {
	return c.Open("sqlserver", cfg.DSN, cfg)
}

// DriverName returns the driver identifier for SQL Server.
func (c *MSSQLConnector) DriverName() string { return "mssql" }

// Dialect names T-SQL so the model uses TOP and square brackets.
func (c *MSSQLConnector) Dialect() string { return "Microsoft SQL Server (T-SQL)" }

// QuoteIdentifier wraps a SQL identifier in brackets, escaping any
// embedded closing brackets.
func (c *MSSQLConnector) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// SupportsReadOnlyTx is false: SQL Server rejects read-only isolation
// through go-mssqldb. Grant the service login read access only.
func (c *MSSQLConnector) SupportsReadOnlyTx() bool { return false }
