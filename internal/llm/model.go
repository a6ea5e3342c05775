// Package llm is the boundary between askdb and hosted language models.
// The rest of the module depends only on the Model interface; provider
// clients speak each vendor's HTTP API directly.
package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Usage counts the tokens consumed by one model call.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Add returns the elementwise sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// StructuredRequest asks the model for a JSON object matching Schema.
type StructuredRequest struct {
	System     string
	Prompt     string
	SchemaName string
	// Schema is a JSON Schema object describing the expected result.
	Schema map[string]any
}

// TextRequest asks the model for free-form text.
type TextRequest struct {
	System string
	Prompt string
}

// Model is the capability a provider must offer. Implementations must be
// safe for concurrent use.
type Model interface {
	// GenerateStructured returns the raw JSON object produced by the model.
	GenerateStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, Usage, error)
	// GenerateText returns the model's text reply.
	GenerateText(ctx context.Context, req TextRequest) (string, Usage, error)
}

// StripMarkdownFence removes a surrounding ``` fence (optionally tagged
// sql or json) that some models wrap around their output.
func StripMarkdownFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		tag := strings.TrimSpace(trimmed[:nl])
		if tag == "" || isFenceTag(tag) {
			trimmed = trimmed[nl+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func isFenceTag(tag string) bool {
	switch strings.ToLower(tag) {
	case "sql", "json", "postgresql", "mysql", "sqlite":
		return true
	}
	return false
}
