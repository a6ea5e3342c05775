package askdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/faucetdb/askdb/internal/llm"
)

// maxFormatRows caps how many rows are shown to the formatting model.
const maxFormatRows = 100

const formatterSystemPrompt = `You answer questions about data. Given a question and the JSON rows returned by a database query, reply with a short, direct answer in plain prose. Quote exact numbers from the data. Do not mention SQL or the database. If the rows are empty, say that no matching data was found.`

// FormatResults asks model to phrase rows as an answer to question.
func FormatResults(ctx context.Context, model llm.Model, question string, rows Rows) (string, llm.Usage, error) {
	shown := rows
	if len(shown) > maxFormatRows {
		shown = shown[:maxFormatRows]
	}
	data, err := json.Marshal(shown)
	if err != nil {
		return "", llm.Usage{}, fmt.Errorf("encode rows: %w", err)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Question: %s\n\n", question)
	if len(rows) > len(shown) {
		fmt.Fprintf(&prompt, "Results (first %d of %d rows):\n", len(shown), len(rows))
	} else {
		fmt.Fprintf(&prompt, "Results (%d rows):\n", len(rows))
	}
	prompt.Write(data)

	answer, usage, err := model.GenerateText(ctx, llm.TextRequest{
		System: formatterSystemPrompt,
		Prompt: prompt.String(),
	})
	if err != nil {
		return "", usage, err
	}
	return answer, usage, nil
}

// FallbackAnswer describes rows without calling a model.
func FallbackAnswer(rows Rows) string {
	switch {
	case len(rows) == 0:
		return "No results found."
	case len(rows) == 1 && len(rows[0]) == 1:
		for _, v := range rows[0] {
			return "Result: " + scalarString(v)
		}
	}
	return fmt.Sprintf("Found %d result(s).", len(rows))
}

func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case []byte:
		return string(val)
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
