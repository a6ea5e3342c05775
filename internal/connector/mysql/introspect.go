package mysql

import (
	"context"
	"fmt"

	"github.com/faucetdb/askdb/internal/connector"
	"github.com/faucetdb/askdb/internal/schema"
)

// columnRow holds the result of querying information_schema.columns for MySQL.
type columnRow struct {
	TableName  string `db:"TABLE_NAME"`
	ColumnName string `db:"COLUMN_NAME"`
	ColumnType string `db:"COLUMN_TYPE"`
	IsNullable string `db:"IS_NULLABLE"`
	Position   int    `db:"ORDINAL_POSITION"`
	Comment    string `db:"COLUMN_COMMENT"`
}

// tableRow holds the result of querying information_schema.tables.
type tableRow struct {
	TableName string `db:"TABLE_NAME"`
	TableType string `db:"TABLE_TYPE"`
	Comment   string `db:"TABLE_COMMENT"`
}

// keyRow holds a primary key column mapping.
type keyRow struct {
	TableName  string `db:"TABLE_NAME"`
	ColumnName string `db:"COLUMN_NAME"`
}

// fkRow holds a foreign key relationship.
type fkRow struct {
	TableName        string `db:"TABLE_NAME"`
	ColumnName       string `db:"COLUMN_NAME"`
	ReferencedTable  string `db:"REFERENCED_TABLE_NAME"`
	ReferencedColumn string `db:"REFERENCED_COLUMN_NAME"`
}

// IntrospectSchema returns the tables and views of the configured database.
func (c *MySQLConnector) IntrospectSchema(ctx context.Context) (*schema.Schema, error) {
	if c.DB() == nil {
		return nil, connector.ErrNotConnected
	}

	var tables []tableRow
	if err := c.DB().SelectContext(ctx, &tables, `SELECT TABLE_NAME, TABLE_TYPE, TABLE_COMMENT
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME`, c.SchemaName); err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}

	var columns []columnRow
	if err := c.DB().SelectContext(ctx, &columns, `SELECT TABLE_NAME, COLUMN_NAME, COLUMN_TYPE,
			IS_NULLABLE, ORDINAL_POSITION, COLUMN_COMMENT
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME, ORDINAL_POSITION`, c.SchemaName); err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}

	var pks []keyRow
	if err := c.DB().SelectContext(ctx, &pks, `SELECT TABLE_NAME, COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY TABLE_NAME, ORDINAL_POSITION`, c.SchemaName); err != nil {
		return nil, fmt.Errorf("introspect primary keys: %w", err)
	}

	var fks []fkRow
	if err := c.DB().SelectContext(ctx, &fks, `SELECT TABLE_NAME, COLUMN_NAME,
			REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
			AND REFERENCED_TABLE_NAME IS NOT NULL`, c.SchemaName); err != nil {
		return nil, fmt.Errorf("introspect foreign keys: %w", err)
	}

	tableInfos := make([]connector.TableInfo, 0, len(tables))
	for _, t := range tables {
		tableInfos = append(tableInfos, connector.TableInfo{
			Name:        t.TableName,
			View:        t.TableType == "VIEW",
			Description: t.Comment,
		})
	}
	colInfos := make([]connector.ColumnInfo, 0, len(columns))
	for _, col := range columns {
		colInfos = append(colInfos, connector.ColumnInfo{
			Table:       col.TableName,
			Name:        col.ColumnName,
			Type:        col.ColumnType,
			Nullable:    col.IsNullable == "YES",
			Position:    col.Position,
			Description: col.Comment,
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
