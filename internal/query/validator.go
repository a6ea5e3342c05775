package query

import (
	"regexp"
	"strings"
)

// ValidationResult is the verdict on a single candidate SQL string. Error is
// empty when Valid is true.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Rejection reasons returned by ValidateSQL. Keyword rejections are built
// from blockedKeywordPrefix plus the keyword itself.
const (
	ReasonRequired          = "SQL query is required"
	ReasonNotSelect         = "Query must be a SELECT statement"
	ReasonSensitiveData     = "Query attempts to access sensitive data"
	ReasonMultipleStatement = "Multiple statements not allowed"
	ReasonComments          = "SQL comments not allowed"

	blockedKeywordPrefix = "Forbidden keyword detected: "
)

// BlockedKeywords lists statements and commands that are never allowed in a
// generated query, even nested inside a SELECT or CTE.
var BlockedKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE",
	"CREATE", "GRANT", "REVOKE", "EXECUTE", "CALL", "VACUUM",
	"REINDEX", "CLUSTER", "COMMENT", "LOCK", "UNLISTEN", "NOTIFY",
}

// SensitivePatterns lists fragments that mark a query as touching
// credentials, billing identifiers or system catalogs.
var SensitivePatterns = []string{
	`password`,
	`stripe_customer`,
	`api_key`,
	`secret`,
	`auth\.users`,
	`pg_catalog`,
	`information_schema`,
}

type keywordRule struct {
	keyword string
	re      *regexp.Regexp
}

var (
	keywordRules    = compileKeywordRules(BlockedKeywords)
	sensitiveRegexp = compileSensitive(SensitivePatterns)
)

func compileKeywordRules(keywords []string) []keywordRule {
	rules := make([]keywordRule, 0, len(keywords))
	for _, kw := range keywords {
		rules = append(rules, keywordRule{
			keyword: kw,
			re:      regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`),
		})
	}
	return rules
}

func compileSensitive(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// ValidateSQL decides whether a model-generated query may be executed. The
// checks run in a fixed order and the first failure wins:
//
//  1. non-empty input
//  2. statement starts with SELECT or WITH
//  3. no blocked keyword as a whole word
//  4. no sensitive table or column pattern
//  5. at most one statement (a single trailing semicolon is fine)
//  6. no SQL comments
//
// ValidateSQL never rewrites its input and has no side effects.
func ValidateSQL(sql string) ValidationResult {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return invalid(ReasonRequired)
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return invalid(ReasonNotSelect)
	}

	for _, rule := range keywordRules {
		if rule.re.MatchString(sql) {
			return invalid(blockedKeywordPrefix + rule.keyword)
		}
	}

	for _, re := range sensitiveRegexp {
		if re.MatchString(sql) {
			return invalid(ReasonSensitiveData)
		}
	}

	if idx := strings.Index(trimmed, ";"); idx >= 0 && idx != len(trimmed)-1 {
		return invalid(ReasonMultipleStatement)
	}

	if strings.Contains(sql, "--") || strings.Contains(sql, "/*") {
		return invalid(ReasonComments)
	}

	return ValidationResult{Valid: true}
}

func invalid(reason string) ValidationResult {
	return ValidationResult{Valid: false, Error: reason}
}
