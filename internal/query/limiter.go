package query

import (
	"strconv"
	"strings"
)

// DefaultMaxRows is the row cap appended when the caller does not pick one.
const DefaultMaxRows = 1000

// AddLimit caps the number of rows a validated query can return. Queries
// that already carry a LIMIT clause or compute a COUNT are treated as
// self-bounding and returned unchanged. Otherwise a single trailing
// semicolon is dropped and " LIMIT <maxRows>" is appended.
//
// AddLimit must only be called on SQL that passed ValidateSQL.
func AddLimit(sql string, maxRows int) string {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	upper := strings.ToUpper(sql)
	if strings.Contains(upper, " LIMIT ") || strings.Contains(upper, "COUNT(") {
		return sql
	}

	trimmed := strings.TrimSpace(sql)
	trimmed = strings.TrimSuffix(trimmed, ";")
	trimmed = strings.TrimRightFunc(trimmed, isSpace)
	return trimmed + " LIMIT " + strconv.Itoa(maxRows)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
