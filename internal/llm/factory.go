package llm

import (
	"fmt"
	"strings"
	"time"
)

// Supported provider names.
const (
	ProviderOpenAI           = "openai"
	ProviderOpenAICompatible = "openai-compatible"
	ProviderAnthropic        = "anthropic"
)

// Config selects and configures a provider by name.
type Config struct {
	Provider    string        `yaml:"provider" json:"provider"`
	APIKey      string        `yaml:"api_key" json:"-"`
	Model       string        `yaml:"model" json:"model"`
	BaseURL     string        `yaml:"base_url" json:"base_url,omitempty"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens,omitempty"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout,omitempty"`
}

// New builds the Model for cfg.Provider.
func New(cfg Config) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI, "":
		return NewOpenAI(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
	case ProviderOpenAICompatible:
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, fmt.Errorf("base URL is required for provider %q", cfg.Provider)
		}
		return NewOpenAI(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
	case ProviderAnthropic:
		return NewAnthropic(AnthropicConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("invalid provider %q (supported: %s, %s, %s)",
			cfg.Provider, ProviderOpenAI, ProviderOpenAICompatible, ProviderAnthropic)
	}
}
