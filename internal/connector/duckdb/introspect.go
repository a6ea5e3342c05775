package duckdb

import (
	"context"
	"fmt"

	"github.com/faucetdb/askdb/internal/connector"
	"github.com/faucetdb/askdb/internal/schema"
)

type tableRow struct {
	Name    string  `db:"table_name"`
	Type    string  `db:"table_type"`
	Comment *string `db:"comment"`
}

type columnRow struct {
	TableName string  `db:"table_name"`
	Name      string  `db:"column_name"`
	DataType  string  `db:"data_type"`
	Nullable  bool    `db:"is_nullable"`
	Position  int     `db:"column_index"`
	Comment   *string `db:"comment"`
}

type constraintRow struct {
	TableName  string `db:"table_name"`
	Column     string `db:"column_name"`
	RefTable   string `db:"ref_table"`
	RefColumn  string `db:"ref_column"`
	Constraint string `db:"constraint_type"`
}

// IntrospectSchema reads tables and views from duckdb_tables() and
// duckdb_views(), columns from duckdb_columns() and keys from
// duckdb_constraints().
func (c *DuckDBConnector) IntrospectSchema(ctx context.Context) (*schema.Schema, error) {
	if c.DB() == nil {
		return nil, connector.ErrNotConnected
	}

	var tables []tableRow
	if err := c.DB().SelectContext(ctx, &tables, `SELECT table_name, 'BASE TABLE' AS table_type, comment
		FROM duckdb_tables() WHERE schema_name = ?
		UNION ALL
		SELECT view_name AS table_name, 'VIEW' AS table_type, comment
		FROM duckdb_views() WHERE schema_name = ? AND NOT internal
		ORDER BY table_name`, c.SchemaName, c.SchemaName); err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}

	var columns []columnRow
	if err := c.DB().SelectContext(ctx, &columns, `SELECT table_name, column_name, data_type,
			is_nullable, column_index, comment
		FROM duckdb_columns()
		WHERE schema_name = ? AND NOT internal
		ORDER BY table_name, column_index`, c.SchemaName); err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}

	// Multi-column keys are unnested so each column pairs with its
	// referenced column by position.
	var constraints []constraintRow
	if err := c.DB().SelectContext(ctx, &constraints, `SELECT table_name, column_name,
			COALESCE(ref_table, '') AS ref_table, COALESCE(ref_column, '') AS ref_column,
			constraint_type
		FROM (
			SELECT table_name,
				unnest(constraint_column_names) AS column_name,
				referenced_table AS ref_table,
				unnest(referenced_column_names) AS ref_column,
				constraint_type
			FROM duckdb_constraints()
			WHERE schema_name = ? AND constraint_type IN ('PRIMARY KEY', 'FOREIGN KEY')
		)`, c.SchemaName); err != nil {
		return nil, fmt.Errorf("introspect constraints: %w", err)
	}

	tableInfos := make([]connector.TableInfo, 0, len(tables))
	for _, t := range tables {
		tableInfos = append(tableInfos, connector.TableInfo{Name: t.Name, View: t.Type == "VIEW", Description: deref(t.Comment)})
	}
	colInfos := make([]connector.ColumnInfo, 0, len(columns))
	for _, col := range columns {
		colInfos = append(colInfos, connector.ColumnInfo{
			Table:       col.TableName,
			Name:        col.Name,
			Type:        col.DataType,
			Nullable:    col.Nullable,
			Position:    col.Position,
			Description: deref(col.Comment),
		})
	}
	var keys []connector.KeyInfo
	var fks []connector.ForeignKeyInfo
	for _, con := range constraints {
		switch con.Constraint {
		case "PRIMARY KEY":
			keys = append(keys, connector.KeyInfo{Table: con.TableName, Column: con.Column})
		case "FOREIGN KEY":
			fks = append(fks, connector.ForeignKeyInfo{Table: con.TableName, Column: con.Column, RefTable: con.RefTable, RefColumn: con.RefColumn})
		}
	}
	return connector.AssembleSchema(tableInfos, colInfos, keys, fks), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
