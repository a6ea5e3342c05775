package askdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/faucetdb/askdb/internal/llm"
)

// Candidate is model-produced SQL that has not been validated yet.
type Candidate struct {
	SQL         string
	Explanation string
	Usage       llm.Usage
}

var candidateSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"sql": map[string]any{
			"type":        "string",
			"description": "A single read-only SELECT statement.",
		},
		"explanation": map[string]any{
			"type":        "string",
			"description": "One or two sentences describing what the query does.",
		},
	},
	"required":             []string{"sql", "explanation"},
	"additionalProperties": false,
}

const generatorSystemPrompt = `You are an expert SQL analyst. Write one SQL query that answers the user's question using only the tables and columns in the schema.

Rules:
- Produce a single SELECT statement (a WITH clause is allowed). Never modify data or schema.
- Do not use SQL comments.
- Do not end with more than one statement; a trailing semicolon is optional.
- Never select password, secret, api key or other credential columns.
- Prefer explicit column lists over SELECT *.
- Use aggregate functions when the question asks for counts, totals or averages.`

// GenerateSQL asks model for a candidate query answering question.
func GenerateSQL(ctx context.Context, model llm.Model, question, schemaContext, dialect string) (*Candidate, error) {
	system := generatorSystemPrompt
	if dialect != "" {
		system += "\n- Use " + dialect + " syntax."
	}

	var prompt strings.Builder
	prompt.WriteString(schemaContext)
	prompt.WriteString("\n\nQuestion: ")
	prompt.WriteString(question)

	raw, usage, err := model.GenerateStructured(ctx, llm.StructuredRequest{
		System:     system,
		Prompt:     prompt.String(),
		SchemaName: "sql_query",
		Schema:     candidateSchema,
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		SQL         string `json:"sql"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("malformed model response: %w", err)
	}
	sql := llm.StripMarkdownFence(out.SQL)
	if sql == "" {
		return nil, errors.New("model response did not include SQL")
	}
	return &Candidate{
		SQL:         sql,
		Explanation: strings.TrimSpace(out.Explanation),
		Usage:       usage,
	}, nil
}
