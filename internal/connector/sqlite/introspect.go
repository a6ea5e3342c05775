package sqlite

import (
	"context"
	"fmt"

	"github.com/faucetdb/askdb/internal/connector"
	"github.com/faucetdb/askdb/internal/schema"
)

// masterRow holds a table or view from sqlite_master.
type masterRow struct {
	Name string `db:"name"`
	Type string `db:"type"`
}

// columnRow joins sqlite_master with pragma_table_info.
type columnRow struct {
	TableName string `db:"table_name"`
	CID       int    `db:"cid"`
	Name      string `db:"name"`
	Type      string `db:"type"`
	NotNull   int    `db:"notnull"`
	PK        int    `db:"pk"`
}

// fkRow joins sqlite_master with pragma_foreign_key_list.
type fkRow struct {
	TableName string `db:"table_name"`
	RefTable  string `db:"ref_table"`
	From      string `db:"from_col"`
	To        string `db:"to_col"`
}

// IntrospectSchema returns every user table and view in the database.
func (c *SQLiteConnector) IntrospectSchema(ctx context.Context) (*schema.Schema, error) {
	if c.DB() == nil {
		return nil, connector.ErrNotConnected
	}

	var masters []masterRow
	if err := c.DB().SelectContext(ctx, &masters, `SELECT name, type FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name`); err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}

	var columns []columnRow
	if err := c.DB().SelectContext(ctx, &columns, `SELECT m.name AS table_name,
			p.cid, p.name, p.type, p."notnull", p.pk
		FROM sqlite_master m
		JOIN pragma_table_info(m.name) p
		WHERE m.type IN ('table', 'view') AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, p.cid`); err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}

	var fks []fkRow
	if err := c.DB().SelectContext(ctx, &fks, `SELECT m.name AS table_name,
			f."table" AS ref_table, f."from" AS from_col, COALESCE(f."to", '') AS to_col
		FROM sqlite_master m
		JOIN pragma_foreign_key_list(m.name) f
		WHERE m.type = 'table'
		ORDER BY m.name, f.id, f.seq`); err != nil {
		return nil, fmt.Errorf("introspect foreign keys: %w", err)
	}

	tableInfos := make([]connector.TableInfo, 0, len(masters))
	for _, m := range masters {
		tableInfos = append(tableInfos, connector.TableInfo{Name: m.Name, View: m.Type == "view"})
	}
	colInfos := make([]connector.ColumnInfo, 0, len(columns))
	var keyInfos []connector.KeyInfo
	for _, col := range columns {
		isPK := col.PK > 0
		colInfos = append(colInfos, connector.ColumnInfo{
			Table:    col.TableName,
			Name:     col.Name,
			Type:     col.Type,
			Nullable: col.NotNull == 0 && !isPK,
			Position: col.CID + 1,
		})
		if isPK {
			keyInfos = append(keyInfos, connector.KeyInfo{Table: col.TableName, Column: col.Name})
		}
	}
	fkInfos := make([]connector.ForeignKeyInfo, 0, len(fks))
	for _, fk := range fks {
		fkInfos = append(fkInfos, connector.ForeignKeyInfo{
			Table:     fk.TableName,
			Column:    fk.From,
			RefTable:  fk.RefTable,
			RefColumn: fk.To,
		})
	}
	return connector.AssembleSchema(tableInfos, colInfos, keyInfos, fkInfos), nil
}
