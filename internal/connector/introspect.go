package connector

import (
	"sort"

	"github.com/faucetdb/askdb/internal/schema"
)

// TableInfo is one table or view returned by a driver's catalog query.
type TableInfo struct {
	Name        string
	View        bool
	Description string
}

// ColumnInfo is one column returned by a driver's catalog query.
type ColumnInfo struct {
	Table       string
	Name        string
	Type        string
	Nullable    bool
	Position    int
	Description string
}

// KeyInfo names one primary key column.
type KeyInfo struct {
	Table  string
	Column string
}

// ForeignKeyInfo is one foreign key column and the column it references.
type ForeignKeyInfo struct {
	Table     string
	Column    string
	RefTable  string
	RefColumn string
}

// AssembleSchema joins catalog rows into a schema.Schema. Tables keep the
// order given; columns are sorted by position. Columns of unknown tables
// and foreign keys to unknown tables are dropped.
func AssembleSchema(tables []TableInfo, columns []ColumnInfo, pks []KeyInfo, fks []ForeignKeyInfo) *schema.Schema {
	pkSet := make(map[KeyInfo]bool, len(pks))
	for _, pk := range pks {
		pkSet[pk] = true
	}

	colMap := make(map[string][]ColumnInfo)
	for _, c := range columns {
		colMap[c.Table] = append(colMap[c.Table], c)
	}

	known := make(map[string]bool, len(tables))
	out := &schema.Schema{Tables: make([]schema.Table, 0, len(tables))}
	for _, t := range tables {
		known[t.Name] = true
		cols := colMap[t.Name]
		sort.SliceStable(cols, func(i, j int) bool { return cols[i].Position < cols[j].Position })

		table := schema.Table{
			Name:        t.Name,
			Type:        "table",
			Description: t.Description,
			Columns:     make([]schema.Column, 0, len(cols)),
		}
		if t.View {
			table.Type = "view"
		}
		for _, c := range cols {
			table.Columns = append(table.Columns, schema.Column{
				Name:        c.Name,
				Type:        c.Type,
				Description: c.Description,
				Nullable:    c.Nullable,
				PrimaryKey:  pkSet[KeyInfo{Table: t.Name, Column: c.Name}],
			})
		}
		out.Tables = append(out.Tables, table)
	}

	for _, fk := range fks {
		if !known[fk.Table] || !known[fk.RefTable] {
			continue
		}
		out.Relationships = append(out.Relationships, schema.Relationship{
			FromTable:  fk.Table,
			FromColumn: fk.Column,
			ToTable:    fk.RefTable,
			ToColumn:   fk.RefColumn,
			Type:       "many-to-one",
		})
	}
	return out
}
