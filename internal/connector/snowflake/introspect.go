package snowflake

import (
	"context"
	"fmt"
	"strings"

	"github.com/faucetdb/askdb/internal/connector"
	"github.com/faucetdb/askdb/internal/schema"
)

// columnRow holds the result of querying information_schema.columns for Snowflake.
type columnRow struct {
	TableName  string  `db:"TABLE_NAME"`
	ColumnName string  `db:"COLUMN_NAME"`
	DataType   string  `db:"DATA_TYPE"`
	IsNullable string  `db:"IS_NULLABLE"`
	Position   int     `db:"ORDINAL_POSITION"`
	Comment    *string `db:"COMMENT"`
}

// tableRow holds the result of querying information_schema.tables.
type tableRow struct {
	TableName string  `db:"TABLE_NAME"`
	TableType string  `db:"TABLE_TYPE"`
	Comment   *string `db:"COMMENT"`
}

// IntrospectSchema returns the tables and views of the configured schema.
// Keys come from SHOW PRIMARY KEYS and SHOW IMPORTED KEYS, which return
// lower-case column names and must be read with MapScan.
func (c *SnowflakeConnector) IntrospectSchema(ctx context.Context) (*schema.Schema, error) {
	if c.DB() == nil {
		return nil, connector.ErrNotConnected
	}

	var tables []tableRow
	if err := c.DB().SelectContext(ctx, &tables, `SELECT TABLE_NAME, TABLE_TYPE, COMMENT
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME`, c.SchemaName); err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}

	var columns []columnRow
	if err := c.DB().SelectContext(ctx, &columns, `SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE,
			IS_NULLABLE, ORDINAL_POSITION, COMMENT
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME, ORDINAL_POSITION`, c.SchemaName); err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}

	pks, err := c.showKeys(ctx, "PRIMARY KEYS", func(row map[string]any) connector.ForeignKeyInfo {
		return connector.ForeignKeyInfo{Table: str(row["table_name"]), Column: str(row["column_name"])}
	})
	if err != nil {
		return nil, fmt.Errorf("introspect primary keys: %w", err)
	}
	fks, err := c.showKeys(ctx, "IMPORTED KEYS", func(row map[string]any) connector.ForeignKeyInfo {
		return connector.ForeignKeyInfo{
			Table:     str(row["fk_table_name"]),
			Column:    str(row["fk_column_name"]),
			RefTable:  str(row["pk_table_name"]),
			RefColumn: str(row["pk_column_name"]),
		}
	})
	if err != nil {
		return nil, fmt.Errorf("introspect foreign keys: %w", err)
	}

	tableInfos := make([]connector.TableInfo, 0, len(tables))
	for _, t := range tables {
		tableInfos = append(tableInfos, connector.TableInfo{
			Name:        t.TableName,
			View:        strings.Contains(t.TableType, "VIEW"),
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
		keyInfos = append(keyInfos, connector.KeyInfo{Table: pk.Table, Column: pk.Column})
	}
	return connector.AssembleSchema(tableInfos, colInfos, keyInfos, fks), nil
}

// showKeys runs SHOW <what> IN SCHEMA and maps each row with fn.
func (c *SnowflakeConnector) showKeys(ctx context.Context, what string, fn func(map[string]any) connector.ForeignKeyInfo) ([]connector.ForeignKeyInfo, error) {
	query := fmt.Sprintf(`SHOW %s IN SCHEMA %s`, what, c.QuoteIdentifier(c.SchemaName))
	rows, err := c.DB().QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []connector.ForeignKeyInfo
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		out = append(out, fn(row))
	}
	return out, rows.Err()
}

func str(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
