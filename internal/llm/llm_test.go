package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var sqlResultSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"sql":         map[string]any{"type": "string"},
		"explanation": map[string]any{"type": "string"},
	},
	"required":             []string{"sql", "explanation"},
	"additionalProperties": false,
}

// ---------------------------------------------------------------------------
// StripMarkdownFence
// ---------------------------------------------------------------------------

func TestStripMarkdownFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "SELECT 1", "SELECT 1"},
		{"untagged fence", "```\nSELECT 1\n```", "SELECT 1"},
		{"sql fence", "```sql\nSELECT 1\n```", "SELECT 1"},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding space", "  ```sql\nSELECT 1\n```  ", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMarkdownFence(tt.in); got != tt.want {
				t.Errorf("StripMarkdownFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestUsageAdd(t *testing.T) {
	got := Usage{InputTokens: 10, OutputTokens: 3}.Add(Usage{InputTokens: 5, OutputTokens: 2})
	if got.InputTokens != 15 || got.OutputTokens != 5 {
		t.Errorf("Add = %+v, want {15 5}", got)
	}
}

// ---------------------------------------------------------------------------
// OpenAI
// ---------------------------------------------------------------------------

func TestOpenAIGenerateStructured(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "{\"sql\":\"SELECT 1\",\"explanation\":\"one\"}"}}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 30}
		}`))
	}))
	defer srv.Close()

	client, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-test"})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}

	raw, usage, err := client.GenerateStructured(context.Background(), StructuredRequest{
		System:     "sys",
		Prompt:     "How many users?",
		SchemaName: "sql_query",
		Schema:     sqlResultSchema,
	})
	if err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}

	var out struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if out.SQL != "SELECT 1" {
		t.Errorf("sql = %q, want SELECT 1", out.SQL)
	}
	if usage.InputTokens != 120 || usage.OutputTokens != 30 {
		t.Errorf("usage = %+v", usage)
	}
	if gotBody["model"] != "gpt-test" {
		t.Errorf("model = %v", gotBody["model"])
	}
	rf, _ := gotBody["response_format"].(map[string]any)
	if rf["type"] != "json_schema" {
		t.Errorf("response_format.type = %v", rf["type"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("messages = %d, want system + user", len(msgs))
	}
}

func TestOpenAIGenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"content": "  There are 1247 users.  "}}],
			"usage": {"prompt_tokens": 40, "completion_tokens": 8}
		}`))
	}))
	defer srv.Close()

	client, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	text, usage, err := client.GenerateText(context.Background(), TextRequest{Prompt: "summarize"})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "There are 1247 users." {
		t.Errorf("text = %q", text)
	}
	if usage.InputTokens != 40 || usage.OutputTokens != 8 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestOpenAIMaxTokens(t *testing.T) {
	tests := []struct {
		name      string
		maxTokens int
		want      any
	}{
		{"unset", 0, nil},
		{"configured", 512, float64(512)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotBody map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&gotBody)
				_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
			}))
			defer srv.Close()

			m, err := New(Config{Provider: "openai", APIKey: "sk-test", BaseURL: srv.URL, MaxTokens: tt.maxTokens})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if _, _, err := m.GenerateText(context.Background(), TextRequest{Prompt: "hi"}); err != nil {
				t.Fatalf("GenerateText: %v", err)
			}
			if got := gotBody["max_tokens"]; got != tt.want {
				t.Errorf("max_tokens = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpenAIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	client, _ := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-bad"})
	_, _, err := client.GenerateText(context.Background(), TextRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error for 401")
	}
	if !strings.Contains(err.Error(), "status=401") {
		t.Errorf("error = %v, want status=401", err)
	}
}

func TestOpenAIMalformedStructured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "not json"}}]}`))
	}))
	defer srv.Close()

	client, _ := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test"})
	_, _, err := client.GenerateStructured(context.Background(), StructuredRequest{Prompt: "x", Schema: sqlResultSchema})
	if err == nil || !strings.Contains(err.Error(), "malformed JSON") {
		t.Errorf("error = %v, want malformed JSON", err)
	}
}

func TestOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(OpenAIConfig{}); err == nil {
		t.Error("expected error for missing api key")
	}
}

// ---------------------------------------------------------------------------
// Anthropic
// ---------------------------------------------------------------------------

func TestAnthropicGenerateStructured(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "ak-test" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicVersion {
			t.Errorf("anthropic-version = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"content": [{"type": "tool_use", "name": "sql_query", "input": {"sql": "SELECT 2", "explanation": "two"}}],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 90, "output_tokens": 12}
		}`))
	}))
	defer srv.Close()

	client, err := NewAnthropic(AnthropicConfig{BaseURL: srv.URL, APIKey: "ak-test"})
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}
	raw, usage, err := client.GenerateStructured(context.Background(), StructuredRequest{
		System:     "sys",
		Prompt:     "q",
		SchemaName: "sql_query",
		Schema:     sqlResultSchema,
	})
	if err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}
	if !strings.Contains(string(raw), "SELECT 2") {
		t.Errorf("raw = %s", raw)
	}
	if usage.InputTokens != 90 || usage.OutputTokens != 12 {
		t.Errorf("usage = %+v", usage)
	}
	choice, _ := gotBody["tool_choice"].(map[string]any)
	if choice["name"] != "sql_query" {
		t.Errorf("tool_choice = %v", gotBody["tool_choice"])
	}
	if gotBody["system"] != "sys" {
		t.Errorf("system = %v", gotBody["system"])
	}
}

func TestAnthropicStructuredMissingTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "I cannot"}], "stop_reason": "end_turn"}`))
	}))
	defer srv.Close()

	client, _ := NewAnthropic(AnthropicConfig{BaseURL: srv.URL, APIKey: "ak-test"})
	_, _, err := client.GenerateStructured(context.Background(), StructuredRequest{SchemaName: "sql_query", Prompt: "q"})
	if err == nil {
		t.Fatal("expected error when no tool call is returned")
	}
}

func TestAnthropicGenerateText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"content": [{"type": "text", "text": "Hello "}, {"type": "text", "text": "world"}],
			"usage": {"input_tokens": 5, "output_tokens": 2}
		}`))
	}))
	defer srv.Close()

	client, _ := NewAnthropic(AnthropicConfig{BaseURL: srv.URL, APIKey: "ak-test"})
	text, _, err := client.GenerateText(context.Background(), TextRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "Hello world" {
		t.Errorf("text = %q", text)
	}
}

// ---------------------------------------------------------------------------
// New
// ---------------------------------------------------------------------------

func TestNewProviders(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"openai", Config{Provider: "openai", APIKey: "k"}, ""},
		{"default is openai", Config{APIKey: "k"}, ""},
		{"anthropic", Config{Provider: "Anthropic", APIKey: "k"}, ""},
		{"compatible needs base url", Config{Provider: "openai-compatible", APIKey: "k"}, "base URL"},
		{"compatible", Config{Provider: "openai-compatible", APIKey: "k", BaseURL: "http://localhost:11434"}, ""},
		{"unknown", Config{Provider: "cohere", APIKey: "k"}, "invalid provider"},
		{"missing key", Config{Provider: "anthropic"}, "api key is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("New: %v", err)
				}
				if m == nil {
					t.Fatal("New returned nil model")
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
