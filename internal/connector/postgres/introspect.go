package postgres

import (
	"context"
	"fmt"

	"github.com/faucetdb/askdb/internal/connector"
	"github.com/faucetdb/askdb/internal/schema"
)

// columnRow holds the result of querying information_schema.columns.
type columnRow struct {
	TableName  string  `db:"table_name"`
	ColumnName string  `db:"column_name"`
	DataType   string  `db:"data_type"`
	UDTName    string  `db:"udt_name"`
	IsNullable string  `db:"is_nullable"`
	Position   int     `db:"ordinal_position"`
	Comment    *string `db:"column_comment"`
}

// tableRow holds the result of querying information_schema.tables.
type tableRow struct {
	TableName string  `db:"table_name"`
	TableType string  `db:"table_type"`
	Comment   *string `db:"table_comment"`
}

// keyRow holds a primary key column mapping.
type keyRow struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
}

// fkRow holds a foreign key relationship.
type fkRow struct {
	TableName        string `db:"table_name"`
	ColumnName       string `db:"column_name"`
	ReferencedTable  string `db:"referenced_table"`
	ReferencedColumn string `db:"referenced_column"`
}

// IntrospectSchema returns the tables and views of the configured schema
// with their columns, primary keys, foreign keys and comments.
func (c *PostgresConnector) IntrospectSchema(ctx context.Context) (*schema.Schema, error) {
	if c.DB() == nil {
		return nil, connector.ErrNotConnected
	}

	tables, err := c.fetchTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}
	columns, err := c.fetchColumns(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}
	pks, err := c.fetchPrimaryKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect primary keys: %w", err)
	}
	fks, err := c.fetchForeignKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect foreign keys: %w", err)
	}

	tableInfos := make([]connector.TableInfo, 0, len(tables))
	for _, t := range tables {
		tableInfos = append(tableInfos, connector.TableInfo{
			Name:        t.TableName,
			View:        t.TableType == "VIEW",
			Description: deref(t.Comment),
		})
	}
	colInfos := make([]connector.ColumnInfo, 0, len(columns))
	for _, col := range columns {
		typ := col.UDTName
		if col.DataType == "ARRAY" {
			typ = col.UDTName + " array"
		}
		colInfos = append(colInfos, connector.ColumnInfo{
			Table:       col.TableName,
			Name:        col.ColumnName,
			Type:        typ,
			Nullable:    col.IsNullable == "YES",
			Position:    col.Position,
			Description: deref(col.Comment),
		})
	}
	keyInfos := make([]connector.KeyInfo, 0, len(pks))
	for _, pk := range pks {
		keyInfos = append(keyInfos, connector.KeyInfo{Table: pk.TableName, Column: pk.ColumnName})
	}
	fkInfos := make([]connector.ForeignKeyInfo, 0, len(fks))
	for _, fk := range fks {
		fkInfos = append(fkInfos, connector.ForeignKeyInfo{
			Table:     fk.TableName,
			Column:    fk.ColumnName,
			RefTable:  fk.ReferencedTable,
			RefColumn: fk.ReferencedColumn,
		})
	}

	return connector.AssembleSchema(tableInfos, colInfos, keyInfos, fkInfos), nil
}

func (c *PostgresConnector) fetchTables(ctx context.Context) ([]tableRow, error) {
	const query = `SELECT t.table_name, t.table_type,
			obj_description(format('%I.%I', t.table_schema, t.table_name)::regclass, 'pg_class') AS table_comment
		FROM information_schema.tables t
		WHERE t.table_schema = $1
		ORDER BY t.table_name`

	var rows []tableRow
	if err := c.DB().SelectContext(ctx, &rows, query, c.SchemaName); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *PostgresConnector) fetchColumns(ctx context.Context) ([]columnRow, error) {
	const query = `SELECT
			c.table_name,
			c.column_name,
			c.data_type,
			c.udt_name,
			c.is_nullable,
			c.ordinal_position,
			col_description(format('%I.%I', c.table_schema, c.table_name)::regclass, c.ordinal_position) AS column_comment
		FROM information_schema.columns c
		WHERE c.table_schema = $1
		ORDER BY c.table_name, c.ordinal_position`

	var rows []columnRow
	if err := c.DB().SelectContext(ctx, &rows, query, c.SchemaName); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *PostgresConnector) fetchPrimaryKeys(ctx context.Context) ([]keyRow, error) {
	const query = `SELECT kcu.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = $1`

	var rows []keyRow
	if err := c.DB().SelectContext(ctx, &rows, query, c.SchemaName); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *PostgresConnector) fetchForeignKeys(ctx context.Context) ([]fkRow, error) {
	const query = `SELECT
			tc.table_name,
			kcu.column_name,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1`

	var rows []fkRow
	if err := c.DB().SelectContext(ctx, &rows, query, c.SchemaName); err != nil {
		return nil, err
	}
	return rows, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
