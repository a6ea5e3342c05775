package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const anthropicVersion = "2023-06-01"

// AnthropicConfig configures a Messages API client.
type AnthropicConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Anthropic talks to /v1/messages. Structured output is obtained by forcing
// a single tool whose input schema is the requested result shape.
type Anthropic struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

// NewAnthropic validates cfg and returns a client.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Anthropic{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

type anthropicResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// GenerateStructured forces a tool call and returns the tool input.
func (c *Anthropic) GenerateStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, Usage, error) {
	name := req.SchemaName
	if name == "" {
		name = "result"
	}
	payload := c.payload(req.System, req.Prompt)
	payload["tools"] = []map[string]any{{
		"name":         name,
		"description":  "Return the result in the required structure.",
		"input_schema": req.Schema,
	}}
	payload["tool_choice"] = map[string]any{"type": "tool", "name": name}

	parsed, usage, err := c.send(ctx, payload)
	if err != nil {
		return nil, usage, err
	}
	for _, block := range parsed.Content {
		if block.Type == "tool_use" && block.Name == name && len(block.Input) > 0 {
			return block.Input, usage, nil
		}
	}
	// Fall back to a JSON text block for models that ignore tool_choice.
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text := StripMarkdownFence(block.Text)
			if json.Valid([]byte(text)) {
				return json.RawMessage(text), usage, nil
			}
		}
	}
	return nil, usage, fmt.Errorf("anthropic response contained no %q tool call (stop_reason=%s)", name, parsed.StopReason)
}

// GenerateText concatenates the text blocks of the reply.
func (c *Anthropic) GenerateText(ctx context.Context, req TextRequest) (string, Usage, error) {
	parsed, usage, err := c.send(ctx, c.payload(req.System, req.Prompt))
	if err != nil {
		return "", usage, err
	}
	var parts []string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", usage, fmt.Errorf("anthropic response contained no text")
	}
	return strings.TrimSpace(strings.Join(parts, "")), usage, nil
}

func (c *Anthropic) payload(system, prompt string) map[string]any {
	payload := map[string]any{
		"model":       c.model,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if system != "" {
		payload["system"] = system
	}
	return payload
}

func (c *Anthropic) send(ctx context.Context, payload map[string]any) (anthropicResponse, Usage, error) {
	var parsed anthropicResponse
	err := postJSON(ctx, c.client, "anthropic", c.baseURL+"/v1/messages", map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}, payload, &parsed)
	if err != nil {
		return parsed, Usage{}, err
	}
	return parsed, Usage{InputTokens: parsed.Usage.InputTokens, OutputTokens: parsed.Usage.OutputTokens}, nil
}
