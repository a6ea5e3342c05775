package mysql

import (
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/faucetdb/askdb/internal/connector"
)

// MySQLConnector implements connector.Connector for MySQL and MariaDB.
type MySQLConnector struct {
	connector.Base
}

// New creates a new MySQLConnector. Without a configured schema it
// introspects the connection's current database.
func New() connector.Connector {
	return &MySQLConnector{}
}

// Connect opens the pool and resolves the schema name from DATABASE()
// when none was configured.
func (c *MySQLConnector) Connect(cfg connector.ConnectionConfig) error {
	if err := c.Open("mysql", cfg.DSN, cfg); err != nil {
		return err
	}
	if c.SchemaName == "" {
		var dbName string
		if err := c.DB().Get(&dbName, "SELECT DATABASE()"); err == nil && dbName != "" {
			c.SchemaName = dbName
		}
	}
	return nil
}

// DriverName returns the driver identifier for MySQL.
func (c *MySQLConnector) DriverName() string { return "mysql" }

// Dialect names MySQL in the model prompt.
func (c *MySQLConnector) Dialect() string { return "MySQL" }

// QuoteIdentifier wraps a SQL identifier in backticks, escaping any
// embedded backticks.
func (c *MySQLConnector) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// SupportsReadOnlyTx is true: go-sql-driver issues START TRANSACTION READ ONLY.
func (c *MySQLConnector) SupportsReadOnlyTx() bool { return true }
