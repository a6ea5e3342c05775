// Package askdb turns a natural-language question into a validated,
// row-limited, read-only SQL query, runs it through a caller-supplied
// executor and returns the rows together with a prose answer.
//
// The pipeline is strictly linear:
//
//	generate -> validate -> limit -> execute -> format
//
// and the whole run races a single timeout. No stage is retried.
package askdb

import (
	"context"
	"log/slog"
	"time"

	"github.com/faucetdb/askdb/internal/llm"
)

// DefaultTimeout bounds a whole AskDatabase call when Options.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// Rows is the ordered result of an executed query. Each row maps column
// names to values.
type Rows []map[string]any

// Executor runs the exact SQL it is given and returns the rows. It must
// return an error on failure and must not rewrite the statement.
type Executor func(ctx context.Context, sql string) (Rows, error)

// SchemaSource renders the database description handed to the model.
// schema.Text and *schema.Schema both implement it.
type SchemaSource interface {
	SchemaContext() string
}

// Stage names a pipeline state.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageGenerating Stage = "generating"
	StageValidating Stage = "validating"
	StageLimiting   Stage = "limiting"
	StageExecuting  Stage = "executing"
	StageFormatting Stage = "formatting"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Options configures one AskDatabase call.
type Options struct {
	// Question is the user's natural-language question. Required.
	Question string
	// Schema describes the target database. Required.
	Schema SchemaSource

	// Model generates SQL and answers. When nil, APIKey, Provider and
	// ModelName are used to build one through llm.New.
	Model     llm.Model
	APIKey    string
	Provider  string
	ModelName string

	// Execute runs the limited SQL. Required.
	Execute Executor

	// MaxRows is the safety limit appended to unbounded queries (default 1000).
	MaxRows int
	// FormatResults asks the model for a prose answer (default true). When
	// false the deterministic fallback answer is used.
	FormatResults *bool
	// Timeout bounds the whole pipeline (default 30s).
	Timeout time.Duration

	// Dialect is a hint such as "postgres" or "mysql" included in the prompt.
	Dialect string
	Logger  *slog.Logger

	// CancelOnTimeout cancels the context passed to the model and executor
	// once the timeout fires. By default in-flight calls run to completion.
	CancelOnTimeout bool
	// FallbackOnFormatError answers with the deterministic fallback instead
	// of failing when the formatting model call fails.
	FallbackOnFormatError bool

	// OnStage is called from the pipeline goroutine each time a stage
	// finishes, with the time spent in it.
	OnStage func(stage Stage, elapsed time.Duration)
}

// Bool returns a pointer to b, for Options.FormatResults.
func Bool(b bool) *bool { return &b }

// UsageReport splits token usage between the two model calls.
type UsageReport struct {
	SQLGeneration llm.Usage `json:"sqlGeneration"`
	// Formatting is nil when the answer did not come from the model.
	Formatting *llm.Usage `json:"formatting,omitempty"`
	Total      llm.Usage  `json:"total"`
}

// Result is the outcome of a successful AskDatabase call.
type Result struct {
	// SQL is the limited statement that was actually executed.
	SQL             string      `json:"sql"`
	Explanation     string      `json:"explanation"`
	Answer          string      `json:"answer"`
	RawData         Rows        `json:"rawData"`
	ExecutionTimeMs int64       `json:"executionTimeMs"`
	Usage           UsageReport `json:"usage"`
}
