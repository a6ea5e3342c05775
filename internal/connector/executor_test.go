package connector

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/faucetdb/askdb/internal/schema"
)

// mockedConnector is a Connector backed by a sqlmock pool.
type mockedConnector struct {
	Base
	readOnly bool
}

func (m *mockedConnector) Connect(ConnectionConfig) error { return nil }
func (m *mockedConnector) IntrospectSchema(context.Context) (*schema.Schema, error) {
	return &schema.Schema{}, nil
}
func (m *mockedConnector) DriverName() string                 { return "sqlmock" }
func (m *mockedConnector) Dialect() string                    { return "ANSI SQL" }
func (m *mockedConnector) QuoteIdentifier(name string) string { return `"` + name + `"` }
func (m *mockedConnector) SupportsReadOnlyTx() bool           { return m.readOnly }

func newSQLMock(t *testing.T) (*mockedConnector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	conn := &mockedConnector{readOnly: true}
	conn.Attach(sqlx.NewDb(db, "sqlmock"), ConnectionConfig{})
	t.Cleanup(func() { _ = db.Close() })
	return conn, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations not met: %v", err)
	}
}

// ---------------------------------------------------------------------------
// NewExecutor
// ---------------------------------------------------------------------------

func TestExecutorReturnsRowsAndRollsBack(t *testing.T) {
	conn, mock := newSQLMock(t)
	query := `SELECT name, total FROM orders LIMIT 1000`

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "total"}).
			AddRow([]byte("Ada"), int64(42)).
			AddRow("Linus", nil))
	mock.ExpectRollback()

	rows, err := NewExecutor(conn, ExecutorOptions{})(context.Background(), query)
	if err != nil {
		t.Fatalf("exec error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0]["name"] != "Ada" {
		t.Errorf("[]byte column should become string, got %#v", rows[0]["name"])
	}
	if rows[0]["total"] != int64(42) {
		t.Errorf("total = %#v", rows[0]["total"])
	}
	if rows[1]["total"] != nil {
		t.Errorf("NULL should stay nil, got %#v", rows[1]["total"])
	}
	assertSQLMock(t, mock)
}

func TestExecutorEmptyResultIsNotNil(t *testing.T) {
	conn, mock := newSQLMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM orders`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	rows, err := NewExecutor(conn, ExecutorOptions{})(context.Background(), `SELECT id FROM orders`)
	if err != nil {
		t.Fatalf("exec error = %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("rows = %#v, want empty non-nil", rows)
	}
	assertSQLMock(t, mock)
}

func TestExecutorQueryError(t *testing.T) {
	conn, mock := newSQLMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT nope FROM orders`)).
		WillReturnError(errors.New(`column "nope" does not exist`))
	mock.ExpectRollback()

	_, err := NewExecutor(conn, ExecutorOptions{})(context.Background(), `SELECT nope FROM orders`)
	if err == nil || !strings.Contains(err.Error(), `column "nope" does not exist`) {
		t.Fatalf("err = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestExecutorBeginError(t *testing.T) {
	conn, mock := newSQLMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := NewExecutor(conn, ExecutorOptions{})(context.Background(), `SELECT 1`)
	if err == nil || !strings.HasPrefix(err.Error(), "begin transaction:") {
		t.Fatalf("err = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestExecutorMaxRows(t *testing.T) {
	conn, mock := newSQLMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM orders`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).AddRow(3))
	mock.ExpectRollback()

	_, err := NewExecutor(conn, ExecutorOptions{MaxRows: 2})(context.Background(), `SELECT id FROM orders`)
	if err == nil || err.Error() != "result exceeds the maximum of 2 rows" {
		t.Fatalf("err = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestExecutorNotConnected(t *testing.T) {
	_, err := NewExecutor(&mockedConnector{}, ExecutorOptions{})(context.Background(), `SELECT 1`)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

// ---------------------------------------------------------------------------
// AssembleSchema
// ---------------------------------------------------------------------------

func TestAssembleSchema(t *testing.T) {
	s := AssembleSchema(
		[]TableInfo{{Name: "customers", Description: "People who buy"}, {Name: "orders"}, {Name: "order_totals", View: true}},
		[]ColumnInfo{
			{Table: "orders", Name: "customer_id", Type: "int", Position: 2},
			{Table: "orders", Name: "id", Type: "int", Position: 1},
			{Table: "customers", Name: "id", Type: "int", Position: 1},
			{Table: "customers", Name: "email", Type: "text", Nullable: true, Position: 2, Description: "contact"},
			{Table: "ghost", Name: "id", Type: "int", Position: 1},
		},
		[]KeyInfo{{Table: "orders", Column: "id"}, {Table: "customers", Column: "id"}},
		[]ForeignKeyInfo{
			{Table: "orders", Column: "customer_id", RefTable: "customers", RefColumn: "id"},
			{Table: "orders", Column: "warehouse_id", RefTable: "warehouses", RefColumn: "id"},
		},
	)

	if len(s.Tables) != 3 {
		t.Fatalf("tables = %+v", s.Tables)
	}
	orders, _ := s.Table("orders")
	if orders.Columns[0].Name != "id" || !orders.Columns[0].PrimaryKey {
		t.Errorf("orders columns not sorted by position: %+v", orders.Columns)
	}
	if orders.Columns[1].PrimaryKey {
		t.Error("customer_id should not be a primary key")
	}
	customers, _ := s.Table("customers")
	if customers.Description != "People who buy" || customers.Columns[1].Description != "contact" {
		t.Errorf("descriptions lost: %+v", customers)
	}
	if v, _ := s.Table("order_totals"); v.Type != "view" {
		t.Errorf("order_totals type = %q", v.Type)
	}
	if len(s.Relationships) != 1 {
		t.Fatalf("relationships = %+v, want only the known target", s.Relationships)
	}
	if r := s.Relationships[0]; r.ToTable != "customers" || r.Type != "many-to-one" {
		t.Errorf("relationship = %+v", r)
	}
}
