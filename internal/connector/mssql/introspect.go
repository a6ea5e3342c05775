package mssql

import (
	"context"
	"fmt"

	"github.com/faucetdb/askdb/internal/connector"
	"github.com/faucetdb/askdb/internal/schema"
)

// columnRow holds the result of querying information_schema.columns for SQL Server.
type columnRow struct {
	TableName  string  `db:"TABLE_NAME"`
	ColumnName string  `db:"COLUMN_NAME"`
	DataType   string  `db:"DATA_TYPE"`
	IsNullable string  `db:"IS_NULLABLE"`
	Position   int     `db:"ORDINAL_POSITION"`
	Comment    *string `db:"COLUMN_COMMENT"`
}

// tableRow holds the result of querying information_schema.tables.
type tableRow struct {
	TableName string  `db:"TABLE_NAME"`
	TableType string  `db:"TABLE_TYPE"`
	Comment   *string `db:"TABLE_COMMENT"`
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

// IntrospectSchema returns the tables and views of the configured schema.
// Descriptions come from the MS_Description extended property.
func (c *MSSQLConnector) IntrospectSchema(ctx context.Context) (*schema.Schema, error) {
	if c.DB() == nil {
		return nil, connector.ErrNotConnected
	}

	var tables []tableRow
	if err := c.DB().SelectContext(ctx, &tables, `SELECT t.TABLE_NAME, t.TABLE_TYPE,
			CAST(ep.value AS NVARCHAR(4000)) AS TABLE_COMMENT
		FROM INFORMATION_SCHEMA.TABLES t
		LEFT JOIN sys.extended_properties ep
			ON ep.major_id = OBJECT_ID(QUOTENAME(t.TABLE_SCHEMA) + '.' + QUOTENAME(t.TABLE_NAME))
			AND ep.minor_id = 0 AND ep.name = 'MS_Description'
		WHERE t.TABLE_SCHEMA = @p1
		ORDER BY t.TABLE_NAME`, c.SchemaName); err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}

	var columns []columnRow
	if err := c.DB().SelectContext(ctx, &columns, `SELECT c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE,
			c.IS_NULLABLE, c.ORDINAL_POSITION,
			CAST(ep.value AS NVARCHAR(4000)) AS COLUMN_COMMENT
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN sys.extended_properties ep
			ON ep.major_id = OBJECT_ID(QUOTENAME(c.TABLE_SCHEMA) + '.' + QUOTENAME(c.TABLE_NAME))
			AND ep.minor_id = COLUMNPROPERTY(ep.major_id, c.COLUMN_NAME, 'ColumnId')
			AND ep.name = 'MS_Description'
		WHERE c.TABLE_SCHEMA = @p1
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`, c.SchemaName); err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}

	var pks []keyRow
	if err := c.DB().SelectContext(ctx, &pks, `SELECT kcu.TABLE_NAME, kcu.COLUMN_NAME
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
			ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
			AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
		WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
			AND tc.TABLE_SCHEMA = @p1`, c.SchemaName); err != nil {
		return nil, fmt.Errorf("introspect primary keys: %w", err)
	}

	var fks []fkRow
	if err := c.DB().SelectContext(ctx, &fks, `SELECT
			fk_tab.name AS TABLE_NAME,
			fk_col.name AS COLUMN_NAME,
			pk_tab.name AS REFERENCED_TABLE_NAME,
			pk_col.name AS REFERENCED_COLUMN_NAME
		FROM sys.foreign_key_columns fkc
		JOIN sys.tables fk_tab ON fkc.parent_object_id = fk_tab.object_id
		JOIN sys.columns fk_col ON fkc.parent_object_id = fk_col.object_id AND fkc.parent_column_id = fk_col.column_id
		JOIN sys.tables pk_tab ON fkc.referenced_object_id = pk_tab.object_id
		JOIN sys.columns pk_col ON fkc.referenced_object_id = pk_col.object_id AND fkc.referenced_column_id = pk_col.column_id
		JOIN sys.schemas s ON fk_tab.schema_id = s.schema_id
		WHERE s.name = @p1`, c.SchemaName); err != nil {
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
		colInfos = append(colInfos, connector.ColumnInfo{
			Table:       col.TableName,
			Name:        col.ColumnName,
			Type:        col.DataType,
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

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
