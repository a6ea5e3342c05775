package connector_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/faucetdb/askdb/internal/connector"
	"github.com/faucetdb/askdb/internal/connector/mssql"
	"github.com/faucetdb/askdb/internal/connector/mysql"
	"github.com/faucetdb/askdb/internal/connector/oracle"
	"github.com/faucetdb/askdb/internal/connector/postgres"
	"github.com/faucetdb/askdb/internal/connector/snowflake"
)

func TestMain(m *testing.M) {
	if os.Getenv("ASKDB_INTEGRATION") == "" {
		fmt.Println("skipping integration tests: set ASKDB_INTEGRATION=1 to run")
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// dsnFromEnv returns the DSN in the named variable or skips the test.
func dsnFromEnv(t *testing.T, name string) string {
	t.Helper()
	dsn := os.Getenv(name)
	if dsn == "" {
		t.Skipf("%s not set", name)
	}
	return dsn
}

// ---------------------------------------------------------------------------
// Helper: run a common suite of sub-tests against any connector
// ---------------------------------------------------------------------------

func runConnectorSuite(t *testing.T, conn connector.Connector, cfg connector.ConnectionConfig) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg.DSN = connector.SanitizeDSN(cfg.Driver, cfg.DSN)
	if err := conn.Connect(cfg); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Disconnect()

	t.Run("Ping", func(t *testing.T) {
		if err := conn.Ping(ctx); err != nil {
			t.Fatalf("Ping failed: %v", err)
		}
	})

	t.Run("IntrospectSchema", func(t *testing.T) {
		s, err := conn.IntrospectSchema(ctx)
		if err != nil {
			t.Fatalf("IntrospectSchema failed: %v", err)
		}
		if len(s.Tables) == 0 {
			t.Fatal("IntrospectSchema returned zero tables")
		}
		t.Logf("IntrospectSchema found %d tables, %d relationships", len(s.Tables), len(s.Relationships))
	})

	t.Run("Executor", func(t *testing.T) {
		exec := connector.NewExecutor(conn, connector.ExecutorOptions{MaxRows: 10})
		query := "SELECT 1 AS one"
		if conn.DriverName() == "oracle" {
			query = "SELECT 1 AS one FROM DUAL"
		}
		rows, err := exec(ctx, query)
		if err != nil {
			t.Fatalf("executor failed: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("rows = %+v, want one row", rows)
		}
	})
}

// ---------------------------------------------------------------------------
// Per-database integration tests
// ---------------------------------------------------------------------------

func TestPostgresIntegration(t *testing.T) {
	dsn := dsnFromEnv(t, "ASKDB_TEST_POSTGRES_DSN")
	runConnectorSuite(t, postgres.New(), connector.ConnectionConfig{Driver: "postgres", DSN: dsn})
}

func TestMySQLIntegration(t *testing.T) {
	dsn := dsnFromEnv(t, "ASKDB_TEST_MYSQL_DSN")
	runConnectorSuite(t, mysql.New(), connector.ConnectionConfig{Driver: "mysql", DSN: dsn})
}

func TestMSSQLIntegration(t *testing.T) {
	dsn := dsnFromEnv(t, "ASKDB_TEST_MSSQL_DSN")
	runConnectorSuite(t, mssql.New(), connector.ConnectionConfig{Driver: "mssql", DSN: dsn})
}

func TestOracleIntegration(t *testing.T) {
	dsn := dsnFromEnv(t, "ASKDB_TEST_ORACLE_DSN")
	runConnectorSuite(t, oracle.New(), connector.ConnectionConfig{Driver: "oracle", DSN: dsn})
}

func TestSnowflakeIntegration(t *testing.T) {
	dsn := dsnFromEnv(t, "ASKDB_TEST_SNOWFLAKE_DSN")
	runConnectorSuite(t, snowflake.New(), connector.ConnectionConfig{
		Driver:         "snowflake",
		DSN:            dsn,
		PrivateKeyPath: os.Getenv("ASKDB_TEST_SNOWFLAKE_KEY"),
	})
}
