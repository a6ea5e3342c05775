// Package schema describes the database a question is asked against and
// renders it into the text context handed to a language model.
//
// A structured Schema carries a Sensitive flag per column. Sensitive columns
// are removed when a Schema is built with New or Sanitize and skipped again by
// Render, so they never reach a prompt.
package schema

import (
	"path"
	"strings"
)

// Schema is the structured description of a target database.
type Schema struct {
	Tables             []Table        `json:"tables"`
	Relationships      []Relationship `json:"relationships,omitempty"`
	CustomInstructions string         `json:"custom_instructions,omitempty"`
}

// Table describes a single table or view.
type Table struct {
	Name        string   `json:"name"`
	Type        string   `json:"type,omitempty"` // "table" or "view"
	Description string   `json:"description,omitempty"`
	Columns     []Column `json:"columns"`
}

// Column describes a single column within a table or view.
type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Nullable    bool   `json:"nullable"`
	PrimaryKey  bool   `json:"primary_key,omitempty"`
	Sensitive   bool   `json:"sensitive,omitempty"`
}

// Relationship is a foreign-key style link between two columns.
type Relationship struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
	Type       string `json:"type,omitempty"` // e.g. "many-to-one"
}

// Text is a pre-rendered schema context.
type Text string

// SchemaContext returns the text unchanged.
func (t Text) SchemaContext() string { return string(t) }

// New builds a Schema and drops every column flagged Sensitive, along with
// relationships that reference a dropped column.
func New(tables []Table, relationships []Relationship, customInstructions string) *Schema {
	s := &Schema{
		Tables:             tables,
		Relationships:      relationships,
		CustomInstructions: strings.TrimSpace(customInstructions),
	}
	return s.Sanitize()
}

// SchemaContext renders the schema. It lets *Schema and Text be used
// interchangeably wherever a schema source is accepted.
func (s *Schema) SchemaContext() string {
	if s == nil {
		return ""
	}
	return s.Render()
}

// Sanitize returns a copy of s without sensitive columns. Relationships
// pointing at a removed column are removed as well.
func (s *Schema) Sanitize() *Schema {
	if s == nil {
		return nil
	}
	out := &Schema{CustomInstructions: s.CustomInstructions}
	hidden := map[string]bool{}
	for _, t := range s.Tables {
		clean := Table{Name: t.Name, Type: t.Type, Description: t.Description}
		for _, c := range t.Columns {
			if c.Sensitive {
				hidden[strings.ToLower(t.Name+"."+c.Name)] = true
				continue
			}
			clean.Columns = append(clean.Columns, c)
		}
		out.Tables = append(out.Tables, clean)
	}
	for _, r := range s.Relationships {
		if hidden[strings.ToLower(r.FromTable+"."+r.FromColumn)] || hidden[strings.ToLower(r.ToTable+"."+r.ToColumn)] {
			continue
		}
		out.Relationships = append(out.Relationships, r)
	}
	return out
}

// MarkSensitive flags columns matching any of the given patterns. A pattern
// is "table.column" where either side may be a shell glob, e.g.
// "users.email", "*.ssn" or "billing.*". A pattern without a dot matches
// the column name in every table. Matching is case-insensitive.
func (s *Schema) MarkSensitive(patterns []string) {
	if s == nil || len(patterns) == 0 {
		return
	}
	for ti := range s.Tables {
		t := &s.Tables[ti]
		for ci := range t.Columns {
			c := &t.Columns[ci]
			for _, p := range patterns {
				if matchColumn(p, t.Name, c.Name) {
					c.Sensitive = true
					break
				}
			}
		}
	}
}

// Table returns the table with the given name, ignoring case.
func (s *Schema) Table(name string) (Table, bool) {
	if s == nil {
		return Table{}, false
	}
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Table{}, false
}

func matchColumn(pattern, table, column string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	tablePattern, columnPattern := "*", pattern
	if i := strings.LastIndex(pattern, "."); i >= 0 {
		tablePattern, columnPattern = pattern[:i], pattern[i+1:]
	}
	tableOK, err := path.Match(tablePattern, strings.ToLower(table))
	if err != nil || !tableOK {
		return false
	}
	columnOK, err := path.Match(columnPattern, strings.ToLower(column))
	return err == nil && columnOK
}
