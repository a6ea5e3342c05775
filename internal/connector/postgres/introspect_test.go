package postgres

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/askdb/internal/connector"
)

func newMocked(t *testing.T) (*PostgresConnector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	c := New().(*PostgresConnector)
	c.Attach(sqlx.NewDb(db, "pgx"), connector.ConnectionConfig{SchemaName: "shop"})
	t.Cleanup(func() { _ = db.Close() })
	return c, mock
}

func TestIntrospectSchemaFromCatalog(t *testing.T) {
	c, mock := newMocked(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM information_schema.tables t`)).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "table_type", "table_comment"}).
			AddRow("customers", "BASE TABLE", "Registered buyers").
			AddRow("orders", "BASE TABLE", nil).
			AddRow("recent_orders", "VIEW", nil))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM information_schema.columns c`)).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "udt_name", "is_nullable", "ordinal_position", "column_comment"}).
			AddRow("customers", "id", "integer", "int4", "NO", 1, nil).
			AddRow("customers", "tags", "ARRAY", "_text", "YES", 2, "free-form labels").
			AddRow("orders", "id", "integer", "int4", "NO", 1, nil).
			AddRow("orders", "customer_id", "integer", "int4", "NO", 2, nil).
			AddRow("recent_orders", "id", "integer", "int4", "YES", 1, nil))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE tc.constraint_type = 'PRIMARY KEY'`)).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name"}).
			AddRow("customers", "id").
			AddRow("orders", "id"))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE tc.constraint_type = 'FOREIGN KEY'`)).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "referenced_table", "referenced_column"}).
			AddRow("orders", "customer_id", "customers", "id"))

	s, err := c.IntrospectSchema(context.Background())
	if err != nil {
		t.Fatalf("IntrospectSchema() error = %v", err)
	}

	customers, ok := s.Table("customers")
	if !ok {
		t.Fatal("customers missing")
	}
	if customers.Description != "Registered buyers" {
		t.Errorf("Description = %q", customers.Description)
	}
	if !customers.Columns[0].PrimaryKey {
		t.Errorf("customers.id should be a primary key")
	}
	if tags := customers.Columns[1]; tags.Type != "_text array" || tags.Description != "free-form labels" || !tags.Nullable {
		t.Errorf("tags column = %+v", tags)
	}
	if v, _ := s.Table("recent_orders"); v.Type != "view" {
		t.Errorf("recent_orders type = %q, want view", v.Type)
	}
	if len(s.Relationships) != 1 || s.Relationships[0].FromColumn != "customer_id" {
		t.Errorf("relationships = %+v", s.Relationships)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations not met: %v", err)
	}
}

func TestQuoteIdentifier(t *testing.T) {
	c := New()
	if got := c.QuoteIdentifier(`order"s`); got != `"order""s"` {
		t.Errorf("QuoteIdentifier = %s", got)
	}
	if !c.SupportsReadOnlyTx() || c.Dialect() != "PostgreSQL" {
		t.Error("postgres should use read-only transactions and the PostgreSQL dialect")
	}
}
