package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAIConfig configures an OpenAI-compatible chat completions client.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	// MaxTokens caps the completion; zero leaves it to the server.
	MaxTokens int
	Timeout   time.Duration
}

// OpenAI talks to /v1/chat/completions. Any server implementing the same
// API (vLLM, Ollama, LiteLLM) works by setting BaseURL.
type OpenAI struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

// NewOpenAI validates cfg and returns a client.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAI{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// GenerateStructured requests a json_schema response format.
func (c *OpenAI) GenerateStructured(ctx context.Context, req StructuredRequest) (json.RawMessage, Usage, error) {
	name := req.SchemaName
	if name == "" {
		name = "result"
	}
	payload := c.payload(req.System, req.Prompt)
	payload["response_format"] = map[string]any{
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   name,
			"schema": req.Schema,
			"strict": true,
		},
	}

	content, usage, err := c.complete(ctx, payload)
	if err != nil {
		return nil, usage, err
	}
	content = StripMarkdownFence(content)
	if !json.Valid([]byte(content)) {
		return nil, usage, fmt.Errorf("openai returned malformed JSON: %.200s", content)
	}
	return json.RawMessage(content), usage, nil
}

// GenerateText requests a plain text reply.
func (c *OpenAI) GenerateText(ctx context.Context, req TextRequest) (string, Usage, error) {
	content, usage, err := c.complete(ctx, c.payload(req.System, req.Prompt))
	if err != nil {
		return "", usage, err
	}
	return strings.TrimSpace(content), usage, nil
}

func (c *OpenAI) payload(system, prompt string) map[string]any {
	messages := make([]map[string]string, 0, 2)
	if system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})
	payload := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
	}
	if c.maxTokens > 0 {
		payload["max_tokens"] = c.maxTokens
	}
	return payload
}

func (c *OpenAI) complete(ctx context.Context, payload map[string]any) (string, Usage, error) {
	var parsed openAIResponse
	err := postJSON(ctx, c.client, "openai", c.baseURL+"/v1/chat/completions", map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}, payload, &parsed)
	if err != nil {
		return "", Usage{}, err
	}
	usage := Usage{InputTokens: parsed.Usage.PromptTokens, OutputTokens: parsed.Usage.CompletionTokens}
	if len(parsed.Choices) == 0 {
		return "", usage, fmt.Errorf("empty chat completion choices")
	}
	msg := parsed.Choices[0].Message
	if msg.Refusal != "" {
		return "", usage, fmt.Errorf("model refused: %s", msg.Refusal)
	}
	return msg.Content, usage, nil
}
