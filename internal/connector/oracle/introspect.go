package oracle

import (
	"context"
	"fmt"

	"github.com/faucetdb/askdb/internal/connector"
	"github.com/faucetdb/askdb/internal/schema"
)

type tableRow struct {
	Name    string  `db:"NAME"`
	Kind    string  `db:"KIND"`
	Comment *string `db:"TABLE_COMMENT"`
}

type columnRow struct {
	TableName  string  `db:"TABLE_NAME"`
	ColumnName string  `db:"COLUMN_NAME"`
	DataType   string  `db:"DATA_TYPE"`
	Nullable   string  `db:"NULLABLE"`
	Position   int     `db:"COLUMN_ID"`
	Comment    *string `db:"COLUMN_COMMENT"`
}

type keyRow struct {
	TableName  string `db:"TABLE_NAME"`
	ColumnName string `db:"COLUMN_NAME"`
}

type fkRow struct {
	TableName  string `db:"TABLE_NAME"`
	ColumnName string `db:"COLUMN_NAME"`
	RefTable   string `db:"REF_TABLE"`
	RefColumn  string `db:"REF_COLUMN"`
}

const tablesQuery = `SELECT t.TABLE_NAME AS NAME, 'TABLE' AS KIND, tc.COMMENTS AS TABLE_COMMENT
	FROM ALL_TABLES t
	LEFT JOIN ALL_TAB_COMMENTS tc ON tc.OWNER = t.OWNER AND tc.TABLE_NAME = t.TABLE_NAME
	WHERE t.OWNER = :1
	UNION ALL
	SELECT v.VIEW_NAME AS NAME, 'VIEW' AS KIND, tc.COMMENTS AS TABLE_COMMENT
	FROM ALL_VIEWS v
	LEFT JOIN ALL_TAB_COMMENTS tc ON tc.OWNER = v.OWNER AND tc.TABLE_NAME = v.VIEW_NAME
	WHERE v.OWNER = :2
	ORDER BY 1`

const columnsQuery = `SELECT c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE, c.NULLABLE, c.COLUMN_ID,
		cc.COMMENTS AS COLUMN_COMMENT
	FROM ALL_TAB_COLUMNS c
	LEFT JOIN ALL_COL_COMMENTS cc
		ON cc.OWNER = c.OWNER AND cc.TABLE_NAME = c.TABLE_NAME AND cc.COLUMN_NAME = c.COLUMN_NAME
	WHERE c.OWNER = :1
	ORDER BY c.TABLE_NAME, c.COLUMN_ID`

const primaryKeysQuery = `SELECT cc.TABLE_NAME, cc.COLUMN_NAME
	FROM ALL_CONSTRAINTS con
	JOIN ALL_CONS_COLUMNS cc ON cc.OWNER = con.OWNER AND cc.CONSTRAINT_NAME = con.CONSTRAINT_NAME
	WHERE con.CONSTRAINT_TYPE = 'P' AND con.OWNER = :1`

const foreignKeysQuery = `SELECT cc.TABLE_NAME, cc.COLUMN_NAME,
		rc.TABLE_NAME AS REF_TABLE, rc.COLUMN_NAME AS REF_COLUMN
	FROM ALL_CONSTRAINTS con
	JOIN ALL_CONS_COLUMNS cc ON cc.OWNER = con.OWNER AND cc.CONSTRAINT_NAME = con.CONSTRAINT_NAME
	JOIN ALL_CONS_COLUMNS rc
		ON rc.OWNER = con.R_OWNER AND rc.CONSTRAINT_NAME = con.R_CONSTRAINT_NAME AND rc.POSITION = cc.POSITION
	WHERE con.CONSTRAINT_TYPE = 'R' AND con.OWNER = :1`

// IntrospectSchema reads the owner's tables, views, columns and keys from
// the ALL_* dictionary views.
func (c *OracleConnector) IntrospectSchema(ctx context.Context) (*schema.Schema, error) {
	if c.DB() == nil {
		return nil, connector.ErrNotConnected
	}
	owner := c.SchemaName

	var tables []tableRow
	if err := c.DB().SelectContext(ctx, &tables, tablesQuery, owner, owner); err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}
	var columns []columnRow
	if err := c.DB().SelectContext(ctx, &columns, columnsQuery, owner); err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}
	var pks []keyRow
	if err := c.DB().SelectContext(ctx, &pks, primaryKeysQuery, owner); err != nil {
		return nil, fmt.Errorf("introspect primary keys: %w", err)
	}
	var fks []fkRow
	if err := c.DB().SelectContext(ctx, &fks, foreignKeysQuery, owner); err != nil {
		return nil, fmt.Errorf("introspect foreign keys: %w", err)
	}

	tableInfos := make([]connector.TableInfo, 0, len(tables))
	for _, t := range tables {
		tableInfos = append(tableInfos, connector.TableInfo{Name: t.Name, View: t.Kind == "VIEW", Description: deref(t.Comment)})
	}
	colInfos := make([]connector.ColumnInfo, 0, len(columns))
	for _, col := range columns {
		colInfos = append(colInfos, connector.ColumnInfo{
			Table:       col.TableName,
			Name:        col.ColumnName,
			Type:        col.DataType,
			Nullable:    col.Nullable == "Y",
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
		fkInfos = append(fkInfos, connector.ForeignKeyInfo{Table: fk.TableName, Column: fk.ColumnName, RefTable: fk.RefTable, RefColumn: fk.RefColumn})
	}
	return connector.AssembleSchema(tableInfos, colInfos, keyInfos, fkInfos), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
