// Package query guards every piece of SQL that reaches a database. It holds
// the read-only policy applied to model-generated statements (ValidateSQL),
// the row-cap rewriter (AddLimit), and validation for identifiers and free
// text that arrive from configuration or HTTP requests.
package query

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierRegex validates SQL identifiers such as service, table and
// column names. Must start with a letter or underscore, followed by
// alphanumeric or underscore.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// MaxQuestionLength bounds the natural-language question forwarded to a model.
const MaxQuestionLength = 4000

// ValidateIdentifier ensures a name used in configuration or a sensitive
// column pattern is a plain SQL identifier.
func ValidateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier is required")
	}
	if len(name) > 128 {
		return fmt.Errorf("invalid identifier %q: too long (max 128 chars)", name)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("invalid identifier %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
	}
	return nil
}

// ValidateIdentifiers validates multiple identifiers, returning the first error found.
func ValidateIdentifiers(names []string) error {
	for _, name := range names {
		if err := ValidateIdentifier(name); err != nil {
			return err
		}
	}
	return nil
}

// SanitizeText removes null bytes, trims surrounding whitespace and enforces
// a maximum length. A maxLen of zero or less means MaxQuestionLength.
func SanitizeText(val string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = MaxQuestionLength
	}
	val = strings.ReplaceAll(val, "\x00", "")
	val = strings.TrimSpace(val)
	if len(val) > maxLen {
		return "", fmt.Errorf("invalid text: too long (max %d chars)", maxLen)
	}
	return val, nil
}
