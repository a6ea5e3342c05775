package schema

import (
	"fmt"
	"strings"
)

// Render produces the schema context text:
//
//	Database Schema:
//
//	Table: orders - Customer orders
//	Columns:
//	  - id (integer, primary key)
//	  - total (numeric, nullable) - Order total in cents
//
//	Relationships:
//	  - orders.customer_id -> customers.id (many-to-one)
//
//	Additional Instructions:
//	Amounts are stored in cents.
//
// Sensitive columns are skipped even if a caller built the Schema by hand.
func (s *Schema) Render() string {
	var b strings.Builder
	b.WriteString("Database Schema:\n")

	for _, t := range s.Tables {
		b.WriteString("\n")
		kind := "Table"
		if t.Type == "view" {
			kind = "View"
		}
		fmt.Fprintf(&b, "%s: %s", kind, t.Name)
		if t.Description != "" {
			fmt.Fprintf(&b, " - %s", t.Description)
		}
		b.WriteString("\nColumns:\n")
		for _, c := range t.Columns {
			if c.Sensitive {
				continue
			}
			fmt.Fprintf(&b, "  - %s (%s)", c.Name, columnAttrs(c))
			if c.Description != "" {
				fmt.Fprintf(&b, " - %s", c.Description)
			}
			b.WriteString("\n")
		}
	}

	hidden := s.sensitiveSet()
	var rels []string
	for _, r := range s.Relationships {
		if hidden[strings.ToLower(r.FromTable+"."+r.FromColumn)] || hidden[strings.ToLower(r.ToTable+"."+r.ToColumn)] {
			continue
		}
		line := fmt.Sprintf("  - %s.%s -> %s.%s", r.FromTable, r.FromColumn, r.ToTable, r.ToColumn)
		if r.Type != "" {
			line += " (" + r.Type + ")"
		}
		rels = append(rels, line)
	}
	if len(rels) > 0 {
		b.WriteString("\nRelationships:\n")
		b.WriteString(strings.Join(rels, "\n"))
		b.WriteString("\n")
	}

	if s.CustomInstructions != "" {
		b.WriteString("\nAdditional Instructions:\n")
		b.WriteString(s.CustomInstructions)
		b.WriteString("\n")
	}
	return b.String()
}

func columnAttrs(c Column) string {
	typ := c.Type
	if typ == "" {
		typ = "unknown"
	}
	attrs := []string{typ}
	if c.PrimaryKey {
		attrs = append(attrs, "primary key")
	}
	if c.Nullable {
		attrs = append(attrs, "nullable")
	}
	return strings.Join(attrs, ", ")
}

func (s *Schema) sensitiveSet() map[string]bool {
	set := map[string]bool{}
	for _, t := range s.Tables {
		for _, c := range t.Columns {
			if c.Sensitive {
				set[strings.ToLower(t.Name+"."+c.Name)] = true
			}
		}
	}
	return set
}
